// Package pathnorm canonicalizes network-share paths coming from any of the
// conventions clients use to refer to them (SMB URL, macOS volume mount,
// Windows drive letter, Windows UNC) into the one form this deployment's
// host actually needs: a container bind-mount path when running inside an
// isolated-network container, or a UNC path when running with direct access
// to the shares. It does no I/O.
package pathnorm

import (
	"strings"

	"github.com/eleven-am/compilation-orchestrator/config"
)

// Normalizer holds the share<->drive<->mount table and target-host settings
// needed to rewrite a path. Construct one with New and reuse it; it carries
// no mutable state.
type Normalizer struct {
	mappings  []config.ShareMapping
	byDrive   map[string]config.ShareMapping
	byShare   map[string]config.ShareMapping
	host      string
	container bool
}

// New builds a Normalizer from the given share mapping table. host is the
// UNC host to re-emit network-target paths against; container selects the
// container-mount target form over the UNC target form.
func New(mappings []config.ShareMapping, host string, container bool) *Normalizer {
	n := &Normalizer{
		mappings:  mappings,
		byDrive:   make(map[string]config.ShareMapping, len(mappings)),
		byShare:   make(map[string]config.ShareMapping, len(mappings)),
		host:      host,
		container: container,
	}
	for _, m := range mappings {
		if m.DriveLetter != "" {
			n.byDrive[strings.ToUpper(m.DriveLetter)] = m
		}
		n.byShare[strings.ToLower(m.Share)] = m
	}
	return n
}

// One normalizes a single path, trying each recognized input form in
// turn: smb:// URL, macOS volume mount, Windows drive letter, UNC.
func (n *Normalizer) One(path string) string {
	if path == "" {
		return path
	}
	path = strings.Trim(strings.TrimSpace(path), `"'`)

	switch {
	case strings.HasPrefix(path, "smb://"):
		rest := strings.TrimPrefix(path, "smb://")
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 2 {
			return path
		}
		share := parts[1]
		tail := ""
		if len(parts) == 3 {
			tail = parts[2]
		}
		return n.target(share, tail)

	case strings.HasPrefix(path, "/Volumes/"):
		rest := strings.TrimPrefix(path, "/Volumes/")
		share, tail := splitFirstSegment(rest)
		return n.target(share, tail)

	case len(path) >= 2 && path[1] == ':':
		drive := strings.ToUpper(path[:2])
		mapping, ok := n.byDrive[drive]
		if !ok {
			return path
		}
		tail := strings.TrimLeft(path[2:], `\/`)
		return n.target(mapping.Share, tail)

	case strings.HasPrefix(path, `\\`):
		parts := strings.Split(path, `\`)
		if len(parts) < 4 {
			return path
		}
		share := parts[3]
		tail := strings.Join(parts[4:], `\`)
		return n.target(share, tail)

	default:
		return path
	}
}

// Many normalizes a batch of paths, preserving input order.
func (n *Normalizer) Many(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = n.One(p)
	}
	return out
}

func (n *Normalizer) target(share, tail string) string {
	mapping, ok := n.byShare[strings.ToLower(share)]
	if n.container && ok && mapping.ContainerDir != "" {
		return mapping.ContainerDir + "/" + toSlash(tail)
	}
	canonicalShare := share
	if ok {
		canonicalShare = mapping.Share
	}
	return `\\` + n.host + `\` + canonicalShare + `\` + toBackslash(tail)
}

func splitFirstSegment(s string) (head, rest string) {
	s = strings.TrimPrefix(s, "/")
	idx := strings.Index(s, "/")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

func toSlash(s string) string {
	return strings.ReplaceAll(s, `\`, "/")
}

func toBackslash(s string) string {
	return strings.ReplaceAll(s, "/", `\`)
}
