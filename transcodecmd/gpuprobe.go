package transcodecmd

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// gpuErrorIndicators are the driver-missing error substrings the
// original checks for in ffmpeg's stderr.
var gpuErrorIndicators = []string{
	"Cannot load libcuda",
	"Cannot load libnvidia-encode",
	"minimum required Nvidia driver",
	"No NVENC capable devices found",
}

// ProbeGPU attempts a 0.1s null encode with h264_nvenc and reports
// whether GPU-accelerated encoding is actually usable, not merely
// compiled in. Grounded on the original's is_gpu_available.
func ProbeGPU(ctx context.Context, ffmpegBinary string) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegBinary,
		"-f", "lavfi", "-i", "nullsrc=s=256x256:d=0.1",
		"-c:v", "h264_nvenc", "-f", "null", "-")
	out, _ := cmd.CombinedOutput()
	stderr := string(out)

	for _, indicator := range gpuErrorIndicators {
		if strings.Contains(stderr, indicator) {
			return false
		}
	}
	return true
}

// CachedGPUProbe memoizes ProbeGPU's result across the process lifetime
// — probed once at startup.
type CachedGPUProbe struct {
	once      sync.Once
	available bool
	ffmpeg    string
}

// NewCachedGPUProbe builds a probe bound to a specific ffmpeg binary path.
func NewCachedGPUProbe(ffmpegBinary string) *CachedGPUProbe {
	return &CachedGPUProbe{ffmpeg: ffmpegBinary}
}

// Available returns the memoized probe result, running the real probe on
// first call only.
func (p *CachedGPUProbe) Available(ctx context.Context) bool {
	p.once.Do(func() {
		p.available = ProbeGPU(ctx, p.ffmpeg)
	})
	return p.available
}
