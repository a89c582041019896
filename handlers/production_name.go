package handlers

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var nonWordRe = regexp.MustCompile(`\W+`)

// sanitizeProductionName strips the extension, NFKD-normalizes, drops
// non-ASCII runes, replaces runs of non-word characters with `_`, and
// lowercases — the filename rule `POST /jobs/{id}/move-to-production` uses,
// grounded on the original's `utils/string_utils.py:sanitize_filename`.
func sanitizeProductionName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	decomposed := norm.NFKD.String(name)

	var ascii strings.Builder
	for _, r := range decomposed {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}

	sanitized := nonWordRe.ReplaceAllString(ascii.String(), "_")
	return strings.ToLower(strings.Trim(sanitized, "_"))
}
