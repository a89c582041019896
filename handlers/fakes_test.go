package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/video"
)

type fakeJobStore struct {
	jobs      map[string]clients.Job
	items     map[string][]clients.JobItem
	cancelled string
	moved     string
	created   []clients.Job
	stats     clients.QueueStats
	listed    []clients.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]clients.Job{}, items: map[string][]clients.JobItem{}}
}

func (s *fakeJobStore) CreateJob(_ context.Context, job clients.Job, items []clients.JobItem) error {
	s.created = append(s.created, job)
	s.jobs[job.JobID] = job
	s.items[job.JobID] = items
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, jobID string) (clients.Job, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return clients.Job{}, sql.ErrNoRows
	}
	return j, nil
}

func (s *fakeJobStore) GetJobItems(_ context.Context, jobID string) ([]clients.JobItem, error) {
	return s.items[jobID], nil
}

func (s *fakeJobStore) CancelJob(_ context.Context, jobID, reason string, completedAt time.Time) error {
	s.cancelled = jobID
	j := s.jobs[jobID]
	j.Status = clients.JobCancelled
	s.jobs[jobID] = j
	return nil
}

func (s *fakeJobStore) MoveToProduction(_ context.Context, jobID, productionPath string, movedAt time.Time) error {
	s.moved = productionPath
	j := s.jobs[jobID]
	j.ProductionPath = sql.NullString{String: productionPath, Valid: true}
	j.MovedToProduction = true
	s.jobs[jobID] = j
	return nil
}

func (s *fakeJobStore) QueueStats(_ context.Context, userID string) (clients.QueueStats, error) {
	return s.stats, nil
}

func (s *fakeJobStore) ListJobsByStatus(_ context.Context, statuses []clients.JobStatus) ([]clients.Job, error) {
	return s.listed, nil
}

type fakeWarehouse struct {
	assets         clients.ChannelAssets
	resolved       map[string]clients.VideoInfo
	productionRoot string
	channels       []string
	upserted       []clients.UpsertRow
	cacheCount     int
}

func (w *fakeWarehouse) ChannelAssets(_ context.Context, channel string) (clients.ChannelAssets, error) {
	return w.assets, nil
}

func (w *fakeWarehouse) ResolveVideos(_ context.Context, ids []string) (map[string]clients.VideoInfo, error) {
	out := make(map[string]clients.VideoInfo, len(ids))
	for _, id := range ids {
		if info, ok := w.resolved[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (w *fakeWarehouse) UpsertVideos(_ context.Context, rows []clients.UpsertRow) []clients.UpsertOutcome {
	w.upserted = append(w.upserted, rows...)
	out := make([]clients.UpsertOutcome, len(rows))
	for i, r := range rows {
		out[i] = clients.UpsertOutcome{VideoID: r.VideoID, Saved: true}
	}
	return out
}

func (w *fakeWarehouse) ProductionRoot(_ context.Context, channel string) (string, error) {
	return w.productionRoot, nil
}

func (w *fakeWarehouse) AllChannels(_ context.Context) ([]string, error) {
	return w.channels, nil
}

func (w *fakeWarehouse) ClearChannelsCache() {
	w.cacheCount = 0
}

func (w *fakeWarehouse) ChannelsCacheStatus() (bool, time.Duration, int) {
	if w.cacheCount == 0 {
		return false, 0, 0
	}
	return true, time.Minute, w.cacheCount
}

type fakeProber struct {
	byPath map[string]video.Info
}

func (p *fakeProber) Probe(_ context.Context, requestID, path string) (video.Info, error) {
	info, ok := p.byPath[path]
	if !ok {
		return video.Info{}, video.ErrMissing
	}
	return info, nil
}

func (p *fakeProber) ProbeMany(ctx context.Context, requestID string, paths []string, _ int) map[string]video.Result {
	out := make(map[string]video.Result, len(paths))
	for _, path := range paths {
		info, err := p.Probe(ctx, requestID, path)
		out[path] = video.Result{Info: info, Err: err}
	}
	return out
}

type fakeDispatcher struct {
	calls []string
	err   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string, enable4K bool, videoCount int, hasTextAnimation bool) (string, string, error) {
	d.calls = append(d.calls, jobID)
	if d.err != nil {
		return "", "", d.err
	}
	return "default_queue", "task-" + jobID, nil
}

type fakeCopier struct {
	dst string
	err error
}

func (c *fakeCopier) CopyOne(_ context.Context, src, dstDir, dstName string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return dstDir + "/" + dstName, nil
}
