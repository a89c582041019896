// Package transcodecmd implements the Transcoder Command Builder (C10):
// a pure function from an ordered, already-localized item list to the
// external transcoder's argument vector.
package transcodecmd

import (
	"fmt"
	"strings"
)

// Item is one processed job item ready for command assembly — paths
// already localized by the Copy Engine, durations already resolved by
// the Probe Pool, subtitle files already synthesized by C9.
type Item struct {
	ItemType          string // intro | video | transition | outro | image
	Path              string
	Position          int
	Duration          float64
	LogoPath          string
	TextAnimationText string
	SubtitlePath      string // set iff TextAnimationText != ""
}

// GPUProbe decides whether GPU-accelerated encoding is available,
// cached by the caller across the process lifetime — probed once at
// startup.
type GPUProbe func() bool

// Build assembles the ffmpeg argument vector for a unified compilation.
// jobID does not appear in the generated arguments; filter-graph labels
// are keyed on item index only.
func Build(items []Item, outputPath, jobID string, enable4K bool, gpuAvailable bool) []string {
	cmd := []string{"ffmpeg"}

	targetWidth, targetHeight := 1920, 1080
	if enable4K {
		targetWidth, targetHeight = 3840, 2160
	}

	inputIndex := 0
	itemInputIndex := make([]int, len(items))

	for i, item := range items {
		if item.ItemType == "image" {
			duration := item.Duration
			if duration <= 0 {
				duration = 5
			}
			cmd = append(cmd, "-loop", "1", "-t", formatFloat(duration), "-i", item.Path)
		} else {
			cmd = append(cmd, "-i", item.Path)
		}
		itemInputIndex[i] = inputIndex
		inputIndex++
	}

	var filters []string
	for i, item := range items {
		idx := itemInputIndex[i]
		var videoStream string

		if item.ItemType == "image" {
			duration := item.Duration
			if duration <= 0 {
				duration = 5
			}
			filters = append(filters, fmt.Sprintf(
				"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,fps=30[v%d_scaled]",
				idx, targetWidth, targetHeight, targetWidth, targetHeight, i))
			filters = append(filters, fmt.Sprintf(
				"anullsrc=channel_layout=stereo:sample_rate=44100,atrim=duration=%s[a%d]",
				formatFloat(duration), i))
			videoStream = fmt.Sprintf("[v%d_scaled]", i)
		} else {
			filters = append(filters, fmt.Sprintf(
				"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black[v%d_scaled]",
				idx, targetWidth, targetHeight, targetWidth, targetHeight, i))
			videoStream = fmt.Sprintf("[v%d_scaled]", i)
		}

		if item.ItemType == "video" && item.LogoPath != "" {
			cmd = append(cmd, "-i", item.LogoPath)
			logoIdx := inputIndex
			inputIndex++
			filters = append(filters, fmt.Sprintf("%s[%d:v]overlay=W-w-10:10[v%d_logo]", videoStream, logoIdx, i))
			videoStream = fmt.Sprintf("[v%d_logo]", i)
		}

		if item.ItemType == "video" && item.TextAnimationText != "" {
			filters = append(filters, fmt.Sprintf(
				"%ssubtitles=%s:force_style='Alignment=9,MarginR=40,MarginV=40'[v%d_text]",
				videoStream, item.SubtitlePath, i))
			videoStream = fmt.Sprintf("[v%d_text]", i)
		}

		filters = append(filters, fmt.Sprintf("%snull[v%d]", videoStream, i))

		if item.ItemType != "image" {
			filters = append(filters, fmt.Sprintf("[%d:a]anull[a%d]", idx, i))
		}
	}

	var concatInputs strings.Builder
	for i := range items {
		fmt.Fprintf(&concatInputs, "[v%d][a%d]", i, i)
	}
	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", concatInputs.String(), len(items)))

	cmd = append(cmd, "-filter_complex", strings.Join(filters, ";"))
	cmd = append(cmd, "-map", "[outv]", "-map", "[outa]")
	cmd = append(cmd, encodingArgs(enable4K, gpuAvailable)...)
	cmd = append(cmd, "-movflags", "+faststart", "-y", outputPath)

	return cmd
}

// encodingArgs picks the video+audio encoder flags from the resolution's
// bitrate/CRF table: 1080p -> 16M VBR/CRF20, 2160p -> 40M VBR/CRF18.
func encodingArgs(enable4K, gpuAvailable bool) []string {
	var args []string
	if enable4K {
		if gpuAvailable {
			args = []string{
				"-c:v", "h264_nvenc", "-preset", "p5", "-tune", "hq", "-rc", "vbr",
				"-b:v", "40M", "-maxrate", "50M", "-bufsize", "60M",
				"-profile:v", "high", "-level", "5.1", "-pix_fmt", "yuv420p",
				"-spatial-aq", "1", "-temporal-aq", "1",
			}
		} else {
			args = []string{
				"-c:v", "libx264", "-preset", "medium", "-crf", "18",
				"-profile:v", "high", "-level", "5.1", "-pix_fmt", "yuv420p",
			}
		}
	} else {
		if gpuAvailable {
			args = []string{
				"-c:v", "h264_nvenc", "-preset", "p5", "-tune", "hq", "-rc", "vbr",
				"-b:v", "16M", "-maxrate", "20M", "-bufsize", "24M",
				"-profile:v", "main", "-level", "4.1", "-pix_fmt", "yuv420p",
				"-spatial-aq", "1", "-temporal-aq", "1",
			}
		} else {
			args = []string{
				"-c:v", "libx264", "-preset", "medium", "-crf", "20",
				"-profile:v", "main", "-level", "4.1", "-pix_fmt", "yuv420p",
			}
		}
	}
	return append(args, "-c:a", "aac", "-b:a", "320k", "-ar", "48000", "-ac", "2")
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", f), "0"), ".")
}
