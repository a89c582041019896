package dispatch

import (
	"context"
	"time"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/log"
)

// StaleStore is the subset of clients.JobStore the detector depends on.
type StaleStore interface {
	FindStaleJobDetails(ctx context.Context, olderThan time.Time) ([]clients.StaleJobDetail, error)
}

// Detector is the Stale-Job Detector (C7): a periodic scan that
// re-dispatches jobs whose broker task is missing or failed.
type Detector struct {
	Store      StaleStore
	Dispatcher *Dispatcher
	Broker     Broker
	Now        func() time.Time
}

// NewDetector builds a Detector with the real wall clock.
func NewDetector(store StaleStore, dispatcher *Dispatcher, broker Broker) *Detector {
	return &Detector{Store: store, Dispatcher: dispatcher, Broker: broker, Now: time.Now}
}

// Run blocks, scanning every config.StaleScanInterval until ctx is
// cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(config.StaleScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanOnce(ctx)
		}
	}
}

func (d *Detector) scanOnce(ctx context.Context) {
	cutoff := d.Now().Add(-config.StaleJobAge)
	stale, err := d.Store.FindStaleJobDetails(ctx, cutoff)
	if err != nil {
		log.LogNoRequestID("stale-job scan failed", "err", err)
		return
	}

	for _, job := range stale {
		state := StateUnknown
		if job.TaskID.Valid {
			s, err := d.Broker.TaskState(ctx, job.TaskID.String)
			if err != nil {
				log.LogNoRequestID("stale-job task-state lookup failed", "job_id", job.JobID, "err", err)
				continue
			}
			state = s
		}

		if state != StateFailure && state != StateUnknown {
			continue
		}

		queue, taskID, err := d.Dispatcher.Dispatch(ctx, job.JobID, job.Enable4K, job.VideoCount, job.HasTextAnimation)
		if err != nil {
			log.LogNoRequestID("stale-job re-dispatch failed", "job_id", job.JobID, "err", err)
			continue
		}
		log.LogNoRequestID("re-dispatched stale job", "job_id", job.JobID, "queue", queue, "task_id", taskID)
	}
}
