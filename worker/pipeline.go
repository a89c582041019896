// Package worker implements the Worker Pipeline (C12): the end-to-end
// sequence that turns one queued job into a rendered, published
// compilation, orchestrating the Metadata Gateway (C4), the
// Copy Engine (C3), the Probe Pool (C2), the Subtitle Synthesizer (C9),
// the Transcoder Command Builder (C10) and the Progress Parser (C11).
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eleven-am/compilation-orchestrator/cache"
	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/dispatch"
	"github.com/eleven-am/compilation-orchestrator/errors"
	"github.com/eleven-am/compilation-orchestrator/log"
	"github.com/eleven-am/compilation-orchestrator/pathnorm"
	"github.com/eleven-am/compilation-orchestrator/progress"
	"github.com/eleven-am/compilation-orchestrator/subtitle"
	"github.com/eleven-am/compilation-orchestrator/transcodecmd"
	"github.com/eleven-am/compilation-orchestrator/video"
)

// JobStore is the subset of clients.JobStore the Worker Pipeline needs.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (clients.Job, error)
	GetJobItems(ctx context.Context, jobID string) ([]clients.JobItem, error)
	Username(ctx context.Context, userID string) (string, error)
	TransitionToProcessing(ctx context.Context, jobID, workerID, queueName string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, jobID string, progress int, message string) error
	SetProgressMessage(ctx context.Context, jobID, message string) error
	CompleteJob(ctx context.Context, jobID, outputPath string, finalDuration float64, completedAt time.Time) error
	FailJob(ctx context.Context, jobID, errMessage string, completedAt time.Time) error
	RecordHistory(ctx context.Context, h clients.HistoryRow) error
}

// Warehouse is the subset of clients.Warehouse the Worker Pipeline needs
// to refresh catalog-id source paths immediately before copying them.
type Warehouse interface {
	ResolveVideos(ctx context.Context, videoIDs []string) (map[string]clients.VideoInfo, error)
}

// Pipeline is the Worker Pipeline component (C12).
type Pipeline struct {
	Store      JobStore
	Warehouse  Warehouse
	Normalizer *pathnorm.Normalizer
	Prober     video.Prober
	Copier     clients.Copier
	Broker     dispatch.Broker

	// GPUAvailable reports whether GPU-accelerated encoding is usable,
	// normally backed by a transcodecmd.CachedGPUProbe.
	GPUAvailable func() bool

	TranscoderBinary string
	ShareOutputRoot  string
	TempRoot         string
	LogRoot          string

	Now func() time.Time

	prefetched *cache.Cache[bool]
}

// New builds a Pipeline with the real wall clock and an empty prefetch
// dedup set.
func New(store JobStore, warehouse Warehouse, normalizer *pathnorm.Normalizer, prober video.Prober,
	copier clients.Copier, broker dispatch.Broker, gpuAvailable func() bool) *Pipeline {
	return &Pipeline{
		Store:        store,
		Warehouse:    warehouse,
		Normalizer:   normalizer,
		Prober:       prober,
		Copier:       copier,
		Broker:       broker,
		GPUAvailable: gpuAvailable,
		Now:          time.Now,
		prefetched:   cache.New[bool](),
	}
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
}

func isImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Run executes one job end-to-end. Errors while loading the job or moving
// it to processing are returned without touching the row; any later error
// marks the job failed (unless it was cooperatively cancelled), attempts
// cleanup, and swallows secondary errors during that cleanup.
func (p *Pipeline) Run(ctx context.Context, jobID, workerID, queueName string) error {
	requestID := "worker-" + jobID

	// Step 1: load.
	job, err := p.Store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	username, err := p.Store.Username(ctx, job.UserID)
	if err != nil {
		username = "unknown"
	}

	tempDir := filepath.Join(p.TempRoot, jobID)
	logDir := filepath.Join(p.LogRoot, p.Now().Format("2006-01-02"), username, "jobs",
		fmt.Sprintf("%s_%s", job.ChannelName, jobID))

	// Step 2: transition to processing.
	if err := p.Store.TransitionToProcessing(ctx, jobID, workerID, queueName, p.Now()); err != nil {
		return fmt.Errorf("transitioning job %s to processing: %w", jobID, err)
	}
	if p.Broker != nil && job.TaskID.Valid {
		_ = p.Broker.MarkState(ctx, job.TaskID.String, dispatch.StateStarted)
	}

	// Step 3: load items.
	items, err := p.Store.GetJobItems(ctx, jobID)
	if err != nil {
		return p.fail(ctx, jobID, tempDir, fmt.Errorf("loading items for job %s: %w", jobID, err))
	}
	if len(items) == 0 {
		return p.fail(ctx, jobID, tempDir, fmt.Errorf("job %s has no items", jobID))
	}

	// Step 4: prefetch probe, fire-and-forget.
	go p.prefetchNext(context.Background(), workerID, jobID)

	// Step 5: batch resolve catalog-id items.
	if err := p.resolveCatalogPaths(ctx, items); err != nil {
		log.Log(requestID, "catalog resolve had errors, continuing with stored paths", "err", err)
	}

	// Step 6: plan copy set.
	copyJobs, itemDest, logoDest := planCopySet(items, p.Normalizer, tempDir)

	// Step 7: parallel copy.
	_ = p.Store.SetProgressMessage(ctx, jobID, "Copying source files...")
	copyResults := p.Copier.CopyMany(ctx, copyJobs, tempDir, 0, clients.CopyHooks{
		IsCancelled: func() bool { return p.isCancelled(ctx, jobID) },
	})
	for name, res := range copyResults {
		if res.Err != nil {
			return p.fail(ctx, jobID, tempDir, fmt.Errorf("copying %s: %w", name, res.Err))
		}
	}
	if p.isCancelled(ctx, jobID) {
		return p.cancelCleanup(ctx, jobID, tempDir)
	}

	// Step 8: probe durations for every non-image item.
	_ = p.Store.SetProgressMessage(ctx, jobID, "Probing media...")
	var probePaths []string
	for _, dst := range itemDest {
		if !isImagePath(dst) {
			probePaths = append(probePaths, dst)
		}
	}
	probeResults := p.Prober.ProbeMany(ctx, requestID, probePaths, 0)

	// Step 9: synthesize subtitles.
	var subtitlePaths = make(map[int]string)
	for _, it := range items {
		if it.ItemType != "video" || !it.TextAnimationText.Valid || it.TextAnimationText.String == "" {
			continue
		}
		dst := itemDest[it.Position]
		duration := it.Duration
		if res, ok := probeResults[dst]; ok && res.Err == nil {
			duration = res.Info.DurationSec
		}
		subtitlePath := filepath.Join(tempDir, fmt.Sprintf("text_%d.ass", it.Position))
		params := subtitle.DefaultParams(it.TextAnimationText.String, duration)
		if err := subtitle.Generate(params, subtitlePath); err != nil {
			return p.fail(ctx, jobID, tempDir, fmt.Errorf("synthesizing subtitle for item %d: %w", it.Position, err))
		}
		subtitlePaths[it.Position] = subtitlePath
	}

	// Step 10: build transcoder argument vector.
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	var totalDuration float64
	var cmdItems []transcodecmd.Item
	outputPath := filepath.Join(tempDir, fmt.Sprintf("%s_%s.mp4", job.ChannelName, jobID))
	for _, it := range items {
		dst := itemDest[it.Position]
		duration := it.Duration
		if res, ok := probeResults[dst]; ok && res.Err == nil {
			duration = res.Info.DurationSec
		}
		totalDuration += duration

		cmdItems = append(cmdItems, transcodecmd.Item{
			ItemType:          it.ItemType,
			Path:              dst,
			Position:          it.Position,
			Duration:          duration,
			LogoPath:          logoDest[it.Position],
			TextAnimationText: it.TextAnimationText.String,
			SubtitlePath:      subtitlePaths[it.Position],
		})
	}

	gpuAvailable := false
	if p.GPUAvailable != nil {
		gpuAvailable = p.GPUAvailable()
	}
	argv := transcodecmd.Build(cmdItems, outputPath, jobID, job.Enable4K, gpuAvailable)
	if p.TranscoderBinary != "" {
		argv[0] = p.TranscoderBinary
	}

	// Step 11: run the transcoder.
	_ = p.Store.SetProgressMessage(ctx, jobID, "Transcoding...")
	result, err := progress.Run(ctx, argv, totalDuration, logDir, progress.Hooks{
		UpdateProgress: func(percent int) error {
			return p.Store.UpdateProgress(ctx, jobID, percent, "Transcoding...")
		},
		IsCancelled: func() bool { return p.isCancelled(ctx, jobID) },
		Prefetch:    func() { go p.prefetchNext(context.Background(), workerID, jobID) },
	})
	if err != nil {
		if errors.IsCancelled(err) {
			return p.cancelCleanup(ctx, jobID, tempDir)
		}
		return p.fail(ctx, jobID, tempDir, fmt.Errorf("running transcoder: %w", err))
	}
	if result.ExitCode != 0 {
		return p.fail(ctx, jobID, tempDir,
			fmt.Errorf("FFmpeg failed with return code %d", result.ExitCode))
	}

	// Step 12: publish output.
	destDir := filepath.Join(p.ShareOutputRoot, username)
	outputFilename := fmt.Sprintf("%s_%s.mp4", job.ChannelName, jobID)
	publishedPath, err := p.Copier.CopyOne(ctx, outputPath, destDir, outputFilename)
	if err != nil {
		return p.fail(ctx, jobID, tempDir, fmt.Errorf("publishing output: %w", err))
	}
	if err := p.Store.CompleteJob(ctx, jobID, publishedPath, totalDuration, p.Now()); err != nil {
		return p.fail(ctx, jobID, tempDir, fmt.Errorf("marking job completed: %w", err))
	}
	if p.Broker != nil && job.TaskID.Valid {
		_ = p.Broker.MarkState(ctx, job.TaskID.String, dispatch.StateSuccess)
	}

	// Step 13: report analytics, best-effort.
	videoCount := 0
	for _, it := range items {
		if it.ItemType == "video" {
			videoCount++
		}
	}
	if err := p.Store.RecordHistory(ctx, clients.HistoryRow{
		JobID:          jobID,
		UserID:         job.UserID,
		ChannelName:    job.ChannelName,
		VideoCount:     videoCount,
		TotalDuration:  totalDuration,
		OutputFilename: outputFilename,
	}); err != nil {
		log.Log(requestID, "recording analytics history failed", "err", err)
	}

	// Step 14: cleanup.
	if err := os.RemoveAll(tempDir); err != nil {
		log.Log(requestID, "temp tree cleanup failed", "dir", tempDir, "err", err)
	}

	return nil
}

// fail marks the job failed (unless it was already cancelled underneath
// us) and cleans up the temp tree, swallowing secondary errors.
func (p *Pipeline) fail(ctx context.Context, jobID, tempDir string, cause error) error {
	if p.isCancelled(ctx, jobID) {
		return p.cancelCleanup(ctx, jobID, tempDir)
	}
	if err := p.Store.FailJob(ctx, jobID, cause.Error(), p.Now()); err != nil {
		log.Log("worker-"+jobID, "failed to record job failure", "err", err)
	}
	if err := os.RemoveAll(tempDir); err != nil {
		log.Log("worker-"+jobID, "temp tree cleanup failed after job failure", "dir", tempDir, "err", err)
	}
	return cause
}

// cancelCleanup handles the already-cancelled path: the row is left as
// cancelled (never overwritten to failed), only the temp tree is removed.
func (p *Pipeline) cancelCleanup(ctx context.Context, jobID, tempDir string) error {
	if err := os.RemoveAll(tempDir); err != nil {
		log.Log("worker-"+jobID, "temp tree cleanup failed after cancellation", "dir", tempDir, "err", err)
	}
	return errors.Cancelled
}

func (p *Pipeline) isCancelled(ctx context.Context, jobID string) bool {
	job, err := p.Store.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == clients.JobCancelled
}

// resolveCatalogPaths overwrites each catalog-id item's stored path with
// the freshly resolved one from the warehouse, falling back to the
// stored path when the id is no longer resolvable.
func (p *Pipeline) resolveCatalogPaths(ctx context.Context, items []clients.JobItem) error {
	var ids []string
	for _, it := range items {
		if it.VideoID.Valid && it.VideoID.String != "" {
			ids = append(ids, it.VideoID.String)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	resolved, err := p.Warehouse.ResolveVideos(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].VideoID.Valid {
			if info, ok := resolved[items[i].VideoID.String]; ok {
				items[i].Path = info.Path
			}
		}
	}
	return nil
}

// planCopySet computes the destination filename for every item (and its
// logo, if any) following the `<type>_<position>.<ext>` naming convention.
// itemDest/logoDest hold the full path under tempDir the file will land at
// once copied, since that's what the prober and transcoder command builder
// need — not the bare name CopyMany was given.
func planCopySet(items []clients.JobItem, normalizer *pathnorm.Normalizer, tempDir string) ([]clients.CopyJob, map[int]string, map[int]string) {
	var jobs []clients.CopyJob
	itemDest := make(map[int]string, len(items))
	logoDest := make(map[int]string, len(items))

	for _, it := range items {
		src := normalizer.One(it.Path)
		ext := filepath.Ext(src)
		dstName := fmt.Sprintf("%s_%d%s", it.ItemType, it.Position, ext)
		jobs = append(jobs, clients.CopyJob{Src: src, DstName: dstName})
		itemDest[it.Position] = filepath.Join(tempDir, dstName)

		if it.LogoPath.Valid && it.LogoPath.String != "" {
			logoName := fmt.Sprintf("logo_%d.png", it.Position)
			jobs = append(jobs, clients.CopyJob{Src: normalizer.One(it.LogoPath.String), DstName: logoName})
			logoDest[it.Position] = filepath.Join(tempDir, logoName)
		}
	}
	return jobs, itemDest, logoDest
}

// prefetchNext is a fire-and-forget, idempotent background copy of the
// next reserved job's items, never reporting failure to the current job.
func (p *Pipeline) prefetchNext(ctx context.Context, workerID, currentJobID string) {
	if p.Broker == nil {
		return
	}
	reserved, err := p.Broker.ReservedJobs(ctx, workerID)
	if err != nil {
		log.LogNoRequestID("prefetch: listing reserved jobs failed", "err", err)
		return
	}

	for _, jobID := range reserved {
		if jobID == currentJobID {
			continue
		}
		if p.prefetched.Get(jobID) {
			continue
		}
		p.prefetched.Store(jobID, true)

		p.prefetchJobItems(ctx, jobID)
		return
	}
}

func (p *Pipeline) prefetchJobItems(ctx context.Context, jobID string) {
	items, err := p.Store.GetJobItems(ctx, jobID)
	if err != nil {
		log.LogNoRequestID("prefetch: loading items failed", "job_id", jobID, "err", err)
		return
	}
	if len(items) == 0 {
		return
	}
	if err := p.resolveCatalogPaths(ctx, items); err != nil {
		log.LogNoRequestID("prefetch: catalog resolve failed", "job_id", jobID, "err", err)
	}

	tempDir := filepath.Join(p.TempRoot, jobID)
	jobs, _, _ := planCopySet(items, p.Normalizer, tempDir)

	results := p.Copier.CopyMany(ctx, jobs, tempDir, 0, clients.CopyHooks{})
	for name, res := range results {
		if res.Err != nil {
			log.LogNoRequestID("prefetch: copy failed", "job_id", jobID, "file", name, "err", res.Err)
		}
	}
}
