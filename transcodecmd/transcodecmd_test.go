package transcodecmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_TargetsFullHDByDefault(t *testing.T) {
	items := []Item{
		{ItemType: "intro", Path: "/tmp/intro.mp4", Position: 1, Duration: 5},
		{ItemType: "video", Path: "/tmp/video.mp4", Position: 2, Duration: 30},
	}
	cmd := Build(items, "/tmp/out.mp4", "job-1", false, false)
	joined := strings.Join(cmd, " ")

	require.Contains(t, joined, "scale=1920:1080")
	require.Contains(t, joined, "-c:v libx264")
	require.Contains(t, joined, "-crf 20")
	require.Contains(t, joined, "concat=n=2:v=1:a=1")
	require.Contains(t, cmd, "/tmp/out.mp4")
}

func TestBuild_4KUsesHigherBitrateAndResolution(t *testing.T) {
	items := []Item{{ItemType: "video", Path: "/tmp/video.mp4", Duration: 10}}
	cmd := Build(items, "/tmp/out.mp4", "job-1", true, false)
	joined := strings.Join(cmd, " ")

	require.Contains(t, joined, "scale=3840:2160")
	require.Contains(t, joined, "-crf 18")
}

func TestBuild_GPUAvailableSelectsNVENC(t *testing.T) {
	items := []Item{{ItemType: "video", Path: "/tmp/video.mp4", Duration: 10}}
	cmd := Build(items, "/tmp/out.mp4", "job-1", false, true)
	joined := strings.Join(cmd, " ")

	require.Contains(t, joined, "h264_nvenc")
	require.Contains(t, joined, "-b:v 16M")
}

func TestBuild_LogoAndTextAnimationAddOverlayFilters(t *testing.T) {
	items := []Item{
		{ItemType: "video", Path: "/tmp/video.mp4", Duration: 10, LogoPath: "/tmp/logo.png",
			TextAnimationText: "HELLO", SubtitlePath: "temp/job-1/text_1.ass"},
	}
	cmd := Build(items, "/tmp/out.mp4", "job-1", false, false)
	joined := strings.Join(cmd, " ")

	require.Contains(t, joined, "overlay=W-w-10:10")
	require.Contains(t, joined, "subtitles=temp/job-1/text_1.ass")
	require.Contains(t, cmd, "/tmp/logo.png")
}

func TestBuild_ImageItemGetsLoopAndSilentAudio(t *testing.T) {
	items := []Item{{ItemType: "image", Path: "/tmp/still.png", Duration: 5}}
	cmd := Build(items, "/tmp/out.mp4", "job-1", false, false)
	joined := strings.Join(cmd, " ")

	require.Contains(t, joined, "-loop 1")
	require.Contains(t, joined, "anullsrc=channel_layout=stereo:sample_rate=44100")
}
