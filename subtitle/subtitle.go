// Package subtitle implements the Subtitle Synthesizer (C9): generation
// of the styled ASS subtitle file that drives per-item text animation
// burn-in.
package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Params bundles the reveal animation's tunables.
type Params struct {
	Text            string
	VideoDurationS  float64
	LetterDelayS    float64
	CycleDurationS  float64
	VisibleDuration float64
}

// DefaultParams applies the standard reveal tunables: letter_delay=0.1s,
// cycle=20s, visible=10s.
func DefaultParams(text string, videoDuration float64) Params {
	return Params{
		Text:            text,
		VideoDurationS:  videoDuration,
		LetterDelayS:    0.1,
		CycleDurationS:  20.0,
		VisibleDuration: 10.0,
	}
}

const header = `[Script Info]
Title: Animated Text
ScriptType: v4.00+
WrapStyle: 0
PlayResX: 1920
PlayResY: 1080

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Impact,50,&H00FFFF,&H000000FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,4,3,9,40,40,40,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// Generate renders the ASS document described in the and writes it
// to outputPath, creating parent directories as needed.
func Generate(p Params, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating subtitle dir: %w", err)
	}

	content := Render(p)
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing subtitle file %s: %w", outputPath, err)
	}
	return nil
}

// Render builds the ASS document body as a string, letter-by-letter per
// reveal cycle, clamped to the video's duration.
func Render(p Params) string {
	var b strings.Builder
	b.WriteString(header)

	if p.Text == "" || p.VideoDurationS <= 0 {
		return b.String()
	}

	letters := []rune(p.Text)
	numCycles := int(p.VideoDurationS/p.CycleDurationS) + 1

	for cycle := 0; cycle < numCycles; cycle++ {
		cycleStart := float64(cycle) * p.CycleDurationS

		for i := 1; i <= len(letters); i++ {
			substring := string(letters[:i])
			startTime := cycleStart + float64(i-1)*p.LetterDelayS

			var endTime float64
			if i == len(letters) {
				endTime = cycleStart + p.VisibleDuration
			} else {
				endTime = cycleStart + float64(i)*p.LetterDelayS
			}

			if startTime >= p.VideoDurationS {
				break
			}
			if endTime > p.VideoDurationS {
				endTime = p.VideoDurationS
			}

			fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,{\\fad(150,0)}%s\\N\n",
				formatTime(startTime), formatTime(endTime), substring)
		}
	}

	return b.String()
}

// formatTime renders seconds as ASS's H:MM:SS.cc.
func formatTime(seconds float64) string {
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := seconds - float64(h*3600+m*60)
	return fmt.Sprintf("%d:%02d:%05.2f", h, m, s)
}
