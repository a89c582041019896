// Package clients holds the Copy Engine (C3), the Metadata Gateway (C4) and
// the Job Store Adapter (C5): the three collaborators the Worker Pipeline
// and HTTP handlers talk to across process/network boundaries.
package clients

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/log"
)

// CopyHooks lets callers observe and cooperatively cancel a copy_many batch.
type CopyHooks struct {
	Progress    func(completed, total int)
	IsCancelled func() bool
}

// CopyJob is one requested copy for copy_many: a normalized source path and
// the destination filename to place it under dstDir.
type CopyJob struct {
	Src     string
	DstName string
}

// CopyResult is one entry of a copy_many batch outcome.
type CopyResult struct {
	Path string
	Err  error
}

// Copier is the Copy Engine interface the Worker Pipeline depends on.
type Copier interface {
	CopyOne(ctx context.Context, src, dstDir, dstName string) (string, error)
	CopyMany(ctx context.Context, jobs []CopyJob, dstDir string, parallelism int, hooks CopyHooks) map[string]CopyResult
}

// FileCopier is the default Copier, shelling out to an OS-appropriate
// fallback chain, grounded on the original's
// services/storage.py:copy_file_sequential.
type FileCopier struct {
	// RunningInContainer selects the container fallback chain
	// (rsync -> generic cp -> stdlib stream copy) over the direct-access
	// host chain (robocopy-style retrying copy -> stdlib stream copy).
	RunningInContainer bool
}

// CopyOne copies a single file, applying the idempotency short-circuit and
// post-copy rename the fallback chain requires.
func (f FileCopier) CopyOne(ctx context.Context, src, dstDir, dstName string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("creating destination dir %s: %w", dstDir, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("source not found: %s: %w", src, err)
	}

	if dstName == "" {
		dstName = filepath.Base(src)
	}
	dst := filepath.Join(dstDir, dstName)

	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.Size() == srcInfo.Size() {
		log.LogNoRequestID("copy skipped, destination already matches", "dst", dst)
		return dst, nil
	}

	var copyErr error
	if f.RunningInContainer {
		copyErr = f.copyContainerChain(ctx, src, dstDir, dst, srcInfo.Size())
	} else {
		copyErr = f.copyDirectAccessChain(ctx, src, dstDir, dst)
	}
	if copyErr != nil {
		return "", copyErr
	}

	// Some copiers (rsync, robocopy) name the destination by the source's
	// basename even when we asked for dstDir only; detect and rename.
	if _, err := os.Stat(dst); err != nil {
		fallbackDst := filepath.Join(dstDir, filepath.Base(src))
		if _, err := os.Stat(fallbackDst); err == nil && fallbackDst != dst {
			if err := os.Rename(fallbackDst, dst); err != nil {
				return "", fmt.Errorf("renaming %s to %s: %w", fallbackDst, dst, err)
			}
		}
	}

	if _, err := os.Stat(dst); err != nil {
		return "", fmt.Errorf("copy reported success but destination missing: %s", dst)
	}
	return dst, nil
}

func (f FileCopier) copyContainerChain(ctx context.Context, src, dstDir, dst string, sizeBytes int64) error {
	ioTimeout := rsyncTimeout(sizeBytes)

	if commandAvailable("rsync") {
		if err := runCommand(ctx, ioTimeout, "rsync", "-a", "--whole-file", "--timeout="+secondsArg(ioTimeout), src, dst); err == nil {
			return nil
		} else {
			log.LogNoRequestID("rsync failed, trying cp fallback", "src", src, "err", err)
		}
	}

	if commandAvailable("cp") {
		lastErr := backoff.Retry(func() error {
			return runCommand(ctx, 300*time.Second, "cp", src, dst)
		}, backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Second), 2))
		if lastErr == nil {
			return nil
		}
		log.LogNoRequestID("cp failed after 3 attempts, trying stdlib fallback", "src", src, "err", lastErr)
	}

	return streamCopy(src, dst)
}

func (f FileCopier) copyDirectAccessChain(ctx context.Context, src, dstDir, dst string) error {
	srcDir := filepath.Dir(src)
	srcName := filepath.Base(src)
	if err := runCommand(ctx, 300*time.Second, "robocopy", srcDir, dstDir, srcName,
		"/R:3", "/W:5", "/NP", "/NDL", "/NJH", "/NJS"); err == nil {
		return nil
	} else if !isRobocopySuccess(err) {
		log.LogNoRequestID("robocopy failed, trying stdlib fallback", "src", src, "err", err)
	} else {
		return nil
	}
	return streamCopy(src, dst)
}

// rsyncTimeout computes the dynamic I/O timeout:
// max(300s, min(3600s, size_gb*120s)).
func rsyncTimeout(sizeBytes int64) time.Duration {
	sizeGB := float64(sizeBytes) / (1024 * 1024 * 1024)
	t := time.Duration(sizeGB*120) * time.Second
	if t < config.MinCopyTimeout {
		return config.MinCopyTimeout
	}
	if t > config.MaxCopyTimeout {
		return config.MaxCopyTimeout
	}
	return t
}

func secondsArg(d time.Duration) string {
	return fmt.Sprintf("%d", int(d.Seconds()))
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, out)
	}
	return nil
}

// isRobocopySuccess treats robocopy exit codes 0-7 as success, matching
// Windows' convention that non-zero still indicates files were copied.
func isRobocopySuccess(err error) bool {
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode() < 8
	}
	return false
}

func asExitError(err error, target **exec.ExitError) bool {
	for err != nil {
		if e, ok := err.(*exec.ExitError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func streamCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("streaming copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// CopyMany runs CopyOne over a fixed worker pool, reporting progress and
// honoring cooperative cancellation.
func (f FileCopier) CopyMany(ctx context.Context, jobs []CopyJob, dstDir string, parallelism int, hooks CopyHooks) map[string]CopyResult {
	if parallelism <= 0 {
		parallelism = config.DefaultCopyParallelism
	}

	results := make(map[string]CopyResult, len(jobs))
	var mu sync.Mutex
	var completed int
	total := len(jobs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan CopyJob)
	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range in {
				path, err := f.CopyOne(ctx, j.Src, dstDir, j.DstName)

				mu.Lock()
				results[j.DstName] = CopyResult{Path: path, Err: err}
				completed++
				if hooks.Progress != nil {
					hooks.Progress(completed, total)
				}
				cancelled := hooks.IsCancelled != nil && hooks.IsCancelled()
				mu.Unlock()

				if cancelled {
					cancel()
					return
				}
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case in <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(in)
	wg.Wait()

	return results
}
