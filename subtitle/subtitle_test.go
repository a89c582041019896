package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_ClampsToVideoDuration(t *testing.T) {
	p := DefaultParams("HI", 0.25)
	out := Render(p)

	require.Contains(t, out, "[V4+ Styles]")
	require.Contains(t, out, "Style: Default,Impact,50")

	lines := dialogueLines(out)
	require.NotEmpty(t, lines)
	for _, line := range lines {
		require.NotContains(t, line, "0:00:10.00")
	}
}

func TestRender_RepeatsAcrossCycles(t *testing.T) {
	p := DefaultParams("A", 45)
	out := Render(p)
	lines := dialogueLines(out)

	// cycle=20s, video=45s -> cycles at 0s, 20s, 40s => 3 reveal events for a 1-letter string.
	require.Len(t, lines, 3)
}

func TestRender_EmptyTextProducesNoDialogue(t *testing.T) {
	p := DefaultParams("", 30)
	out := Render(p)
	require.Empty(t, dialogueLines(out))
}

func TestGenerate_WritesFileAndCreatesParents(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "nested", "text_1.ass")

	require.NoError(t, Generate(DefaultParams("HELLO", 12), outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(got), "\\fad(150,0)")
}

func dialogueLines(ass string) []string {
	var lines []string
	for _, l := range strings.Split(ass, "\n") {
		if strings.HasPrefix(l, "Dialogue:") {
			lines = append(lines, l)
		}
	}
	return lines
}
