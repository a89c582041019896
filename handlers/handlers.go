// Package handlers implements the HTTP surface: verification,
// submission, job/queue inspection, cancellation, production promotion,
// catalog upserts, and the history/admin endpoints, wired against the
// Verification Service, Job Store Adapter, Metadata Gateway and Dispatcher.
package handlers

import (
	"context"
	"time"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/pathnorm"
	"github.com/eleven-am/compilation-orchestrator/verify"
)

// JobStore is the subset of clients.JobStore the HTTP surface needs,
// narrowed the way worker.JobStore narrows it for the Worker Pipeline.
type JobStore interface {
	CreateJob(ctx context.Context, job clients.Job, items []clients.JobItem) error
	GetJob(ctx context.Context, jobID string) (clients.Job, error)
	GetJobItems(ctx context.Context, jobID string) ([]clients.JobItem, error)
	CancelJob(ctx context.Context, jobID, reason string, completedAt time.Time) error
	MoveToProduction(ctx context.Context, jobID, productionPath string, movedAt time.Time) error
	QueueStats(ctx context.Context, userID string) (clients.QueueStats, error)
	ListJobsByStatus(ctx context.Context, statuses []clients.JobStatus) ([]clients.Job, error)
}

// Warehouse is the subset of clients.Warehouse the HTTP surface needs.
type Warehouse interface {
	UpsertVideos(ctx context.Context, rows []clients.UpsertRow) []clients.UpsertOutcome
	ProductionRoot(ctx context.Context, channel string) (string, error)
	AllChannels(ctx context.Context) ([]string, error)
	ClearChannelsCache()
	ChannelsCacheStatus() (cached bool, age time.Duration, count int)
}

// Dispatcher is the subset of dispatch.Dispatcher the submit handler needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, enable4K bool, videoCount int, hasTextAnimation bool) (queue, taskID string, err error)
}

// Copier is the subset of clients.Copier the move-to-production handler
// needs to background-copy a finished output into the channel's production
// root.
type Copier interface {
	CopyOne(ctx context.Context, src, dstDir, dstName string) (string, error)
}

// Collection bundles every collaborator the jobs HTTP surface talks to:
// one struct of injected dependencies, one method per route, each
// returning an httprouter.Handle closure.
type Collection struct {
	Store      JobStore
	Warehouse  Warehouse
	Verifier   *verify.Service
	Dispatcher Dispatcher
	Copier     Copier
	Normalizer *pathnorm.Normalizer

	// APIToken is the bearer token middleware.IsAuthorized checks incoming
	// requests against.
	APIToken string

	// Now is the wall clock, overridable in tests.
	Now func() time.Time
}

// New builds a Collection with the real wall clock.
func New(store JobStore, warehouse Warehouse, verifier *verify.Service, dispatcher Dispatcher,
	copier Copier, normalizer *pathnorm.Normalizer, apiToken string) *Collection {
	return &Collection{
		Store:      store,
		Warehouse:  warehouse,
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Copier:     copier,
		Normalizer: normalizer,
		APIToken:   apiToken,
		Now:        time.Now,
	}
}
