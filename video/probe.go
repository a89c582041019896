// Package video implements the Probe Pool: a bounded-concurrency wrapper
// around ffprobe that extracts the handful of fields the compilation
// pipeline actually needs (duration, resolution, 4K flag) and never aborts a
// batch because one file failed.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/log"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// ErrMissing is returned (wrapped) when the path does not exist, or ffprobe
// could not extract a usable video stream from it.
var ErrMissing = errors.New("video: file missing or unprobeable")

// Info is the result of a successful probe.
type Info struct {
	DurationSec float64
	Width       int64
	Height      int64
	Is4K        bool
}

// Prober is the interface the Worker Pipeline and Verification Service
// depend on, so tests can substitute a fake.
type Prober interface {
	Probe(ctx context.Context, requestID, path string) (Info, error)
	ProbeMany(ctx context.Context, requestID string, paths []string, parallelism int) map[string]Result
}

// Result is one entry of a ProbeMany batch: either Info is populated, or Err
// explains why the file was treated as missing.
type Result struct {
	Info Info
	Err  error
}

// Pool is the default Prober, invoking the real ffprobe binary.
type Pool struct{}

func wrapMissing(path string, cause error) error {
	return fmt.Errorf("%s: %w: %w", path, ErrMissing, cause)
}

// sizeTimeout returns the probe timeout proportional to file size but never
// under config.MinProbeTimeout.
func sizeTimeout(sizeBytes int64) time.Duration {
	const perGB = 30 * time.Second
	d := time.Duration(sizeBytes) * perGB / (1024 * 1024 * 1024)
	if d < config.MinProbeTimeout {
		return config.MinProbeTimeout
	}
	return d
}

// Probe runs ffprobe against a single (already-normalized) path.
func (Pool) Probe(ctx context.Context, requestID, path string) (Info, error) {
	fi, statErr := statWithWarning(requestID, path)
	if statErr != nil {
		return Info{}, wrapMissing(path, statErr)
	}

	timeout := sizeTimeout(fi.Size())
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 2)); err != nil {
		log.Log(requestID, "probe failed", "path", path, "err", err)
		return Info{}, wrapMissing(path, err)
	}

	return parseProbeData(data, path)
}

func parseProbeData(data *ffprobe.ProbeData, path string) (Info, error) {
	stream := data.FirstVideoStream()
	if stream == nil || data.Format == nil {
		return Info{}, wrapMissing(path, errors.New("no video stream in probe output"))
	}

	duration := data.Format.DurationSeconds
	width := int64(stream.Width)
	height := int64(stream.Height)

	return Info{
		DurationSec: duration,
		Width:       width,
		Height:      height,
		Is4K:        width >= 3840 && height >= 2160,
	}, nil
}

// statWithWarning performs a dual-purpose existence check: it wakes a
// stale SMB handle and fails fast for a missing file. A check slower
// than 2s is logged as a network warning, grounded on the original's
// video_utils.py:get_video_info.
func statWithWarning(requestID, path string) (os.FileInfo, error) {
	start := time.Now()
	fi, err := os.Stat(path)
	elapsed := time.Since(start)
	if elapsed > 2*time.Second {
		log.Log(requestID, "slow path check, network may be degraded", "path", path, "elapsed", elapsed)
	}
	return fi, err
}

// ProbeMany drains paths through a bounded worker pool; individual failures
// never abort the batch.
func (p Pool) ProbeMany(ctx context.Context, requestID string, paths []string, parallelism int) map[string]Result {
	if parallelism <= 0 {
		parallelism = config.DefaultProbeParallelism
	}
	results := make(map[string]Result, len(paths))
	var mu sync.Mutex

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				info, err := p.Probe(ctx, requestID, path)
				mu.Lock()
				results[path] = Result{Info: info, Err: err}
				mu.Unlock()
			}
		}()
	}
	for _, path := range paths {
		jobs <- path
	}
	close(jobs)
	wg.Wait()

	return results
}
