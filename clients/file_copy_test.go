package clients

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyOne_StreamFallback(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	f := FileCopier{RunningInContainer: false}
	dst, err := f.CopyOne(context.Background(), src, dstDir, "renamed.mp4")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dstDir, "renamed.mp4"), dst)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestCopyOne_IdempotentSkipWhenSizeMatches(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))
	dst := filepath.Join(dstDir, "out.mp4")
	require.NoError(t, os.WriteFile(dst, []byte("xyz"), 0o644))

	f := FileCopier{}
	got, err := f.CopyOne(context.Background(), src, dstDir, "out.mp4")
	require.NoError(t, err)
	require.Equal(t, dst, got)

	contents, _ := os.ReadFile(dst)
	require.Equal(t, "xyz", string(contents), "same-size destination should be left untouched")
}

func TestCopyOne_SizeMismatchRecopies(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("a longer source body"), 0o644))
	dst := filepath.Join(dstDir, "out.mp4")
	require.NoError(t, os.WriteFile(dst, []byte("x"), 0o644))

	f := FileCopier{}
	_, err := f.CopyOne(context.Background(), src, dstDir, "out.mp4")
	require.NoError(t, err)

	contents, _ := os.ReadFile(dst)
	require.Equal(t, "a longer source body", string(contents))
}

func TestCopyOne_MissingSourceErrors(t *testing.T) {
	f := FileCopier{}
	_, err := f.CopyOne(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), t.TempDir(), "out.mp4")
	require.Error(t, err)
}

func TestCopyMany_ReportsProgress(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	var jobs []CopyJob
	for i := 0; i < 4; i++ {
		name := string(rune('a'+i)) + ".mp4"
		src := filepath.Join(srcDir, name)
		require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))
		jobs = append(jobs, CopyJob{Src: src, DstName: name})
	}

	var progressCalls int
	f := FileCopier{}
	results := f.CopyMany(context.Background(), jobs, dstDir, 2, CopyHooks{
		Progress: func(completed, total int) { progressCalls++ },
	})

	require.Len(t, results, 4)
	require.Equal(t, 4, progressCalls)
	for _, j := range jobs {
		require.NoError(t, results[j.DstName].Err)
	}
}

func TestRsyncTimeout_BoundsApplied(t *testing.T) {
	require.Equal(t, 300.0, rsyncTimeout(0).Seconds())
	require.Equal(t, 3600.0, rsyncTimeout(100*1024*1024*1024).Seconds())
}
