// Package verify implements the Verification Service (C13): assembling
// the proposed item sequence for a compilation request and validating
// reachability of every file it references, without persisting anything
//.
package verify

import (
	"context"
	"fmt"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/pathnorm"
	"github.com/eleven-am/compilation-orchestrator/video"
)

// Warehouse is the subset of clients.Warehouse the Verification Service
// needs.
type Warehouse interface {
	ChannelAssets(ctx context.Context, channel string) (clients.ChannelAssets, error)
	ResolveVideos(ctx context.Context, videoIDs []string) (map[string]clients.VideoInfo, error)
}

// Request mirrors the body of `POST /jobs/verify`.
type Request struct {
	ChannelName  string
	VideoIDs     []string
	ManualPaths  []string
	IncludeIntro bool
	IncludeOutro bool
	EnableLogos  bool
}

// Item is one proposed compilation item with its verification outcome.
type Item struct {
	Position      int
	ItemType      string // intro | video | transition | outro
	VideoID       string
	Title         string
	Path          string
	PathAvailable bool
	Duration      float64
	Resolution    string
	Is4K          bool
	LogoPath      string
	Error         string
}

// Result is the full response the Verification Service returns.
type Result struct {
	DefaultLogoPath string
	TotalDuration   float64
	Items           []Item
}

// Service is the Verification Service component (C13).
type Service struct {
	Warehouse  Warehouse
	Normalizer *pathnorm.Normalizer
	Prober     video.Prober
}

// New builds a Service from its three collaborators.
func New(warehouse Warehouse, normalizer *pathnorm.Normalizer, prober video.Prober) *Service {
	return &Service{Warehouse: warehouse, Normalizer: normalizer, Prober: prober}
}

// Verify runs the six steps: fetch channel assets, resolve
// catalog ids, build the ordered item list, normalize+probe the unique
// source paths, fan results back, and compute total duration.
func (s *Service) Verify(ctx context.Context, requestID string, req Request) (Result, error) {
	// Step 1: channel assets, masked by the caller's flags.
	assets, err := s.Warehouse.ChannelAssets(ctx, req.ChannelName)
	if err != nil {
		return Result{}, fmt.Errorf("fetching channel assets for %s: %w", req.ChannelName, err)
	}

	var introPath, outroPath, logoPath string
	if req.IncludeIntro {
		introPath = assets.Intro
	}
	if req.IncludeOutro {
		outroPath = assets.Outro
	}
	if req.EnableLogos {
		logoPath = assets.Logo
	}

	// Step 2: batch resolve catalog ids.
	resolved, err := s.Warehouse.ResolveVideos(ctx, req.VideoIDs)
	if err != nil {
		return Result{}, fmt.Errorf("resolving video ids: %w", err)
	}

	// Step 3: build the ordered item list.
	items := buildItemList(req, introPath, outroPath, logoPath, resolved)

	// Step 4: collect unique source paths (first-seen order), normalize, probe.
	var uniquePaths []string
	seen := make(map[string]bool)
	for _, it := range items {
		if it.Path == "" || seen[it.Path] {
			continue
		}
		seen[it.Path] = true
		uniquePaths = append(uniquePaths, it.Path)
	}

	normalized := s.Normalizer.Many(uniquePaths)
	probeResults := s.Prober.ProbeMany(ctx, requestID, normalized, 0)

	infoByOriginal := make(map[string]video.Result, len(uniquePaths))
	for i, original := range uniquePaths {
		infoByOriginal[original] = probeResults[normalized[i]]
	}

	// Step 5: fan results back to each item.
	var totalDuration float64
	for i := range items {
		if items[i].Path == "" {
			continue
		}
		res, ok := infoByOriginal[items[i].Path]
		if !ok || res.Err != nil {
			items[i].PathAvailable = false
			continue
		}
		items[i].PathAvailable = true
		items[i].Duration = res.Info.DurationSec
		items[i].Resolution = fmt.Sprintf("%dx%d", res.Info.Width, res.Info.Height)
		items[i].Is4K = res.Info.Is4K
		totalDuration += res.Info.DurationSec
	}

	return Result{
		DefaultLogoPath: logoPath,
		TotalDuration:   totalDuration,
		Items:           items,
	}, nil
}

// PathCheckResult is the outcome of VerifyPath, serving `POST
// /jobs/verify-path`'s single-path check.
type PathCheckResult struct {
	PathAvailable bool
	Duration      float64
	Resolution    string
	Is4K          bool
}

// VerifyPath normalizes and probes a single path, independent of any job
// or channel context.
func (s *Service) VerifyPath(ctx context.Context, requestID, path string) PathCheckResult {
	normalized := s.Normalizer.One(path)
	info, err := s.Prober.Probe(ctx, requestID, normalized)
	if err != nil {
		return PathCheckResult{}
	}
	return PathCheckResult{
		PathAvailable: true,
		Duration:      info.DurationSec,
		Resolution:    fmt.Sprintf("%dx%d", info.Width, info.Height),
		Is4K:          info.Is4K,
	}
}

// Revalidate reruns steps 4-6 of the over a caller-supplied,
// possibly user-edited item list (`POST /jobs/revalidate`) rather than
// rebuilding the list from the catalog.
func (s *Service) Revalidate(ctx context.Context, requestID string, items []Item) Result {
	var uniquePaths []string
	seen := make(map[string]bool)
	for _, it := range items {
		if it.Path == "" || seen[it.Path] {
			continue
		}
		seen[it.Path] = true
		uniquePaths = append(uniquePaths, it.Path)
	}

	normalized := s.Normalizer.Many(uniquePaths)
	probeResults := s.Prober.ProbeMany(ctx, requestID, normalized, 0)

	infoByOriginal := make(map[string]video.Result, len(uniquePaths))
	for i, original := range uniquePaths {
		infoByOriginal[original] = probeResults[normalized[i]]
	}

	var totalDuration float64
	var logo string
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].LogoPath != "" {
			logo = out[i].LogoPath
		}
		if out[i].Path == "" {
			continue
		}
		res, ok := infoByOriginal[out[i].Path]
		if !ok || res.Err != nil {
			out[i].PathAvailable = false
			continue
		}
		out[i].PathAvailable = true
		out[i].Duration = res.Info.DurationSec
		out[i].Resolution = fmt.Sprintf("%dx%d", res.Info.Width, res.Info.Height)
		out[i].Is4K = res.Info.Is4K
		totalDuration += res.Info.DurationSec
	}

	return Result{DefaultLogoPath: logo, TotalDuration: totalDuration, Items: out}
}

// buildItemList assembles intro -> videos (in request order) -> manual
// paths (as transition) -> outro, assigning positions 1..N. Missing catalog ids produce a placeholder item carrying Error.
func buildItemList(req Request, introPath, outroPath, logoPath string, resolved map[string]clients.VideoInfo) []Item {
	var items []Item
	position := 1

	if introPath != "" {
		items = append(items, Item{Position: position, ItemType: "intro", Title: "Intro", Path: introPath})
		position++
	}

	for _, id := range req.VideoIDs {
		info, ok := resolved[id]
		if !ok {
			items = append(items, Item{
				Position: position,
				ItemType: "video",
				VideoID:  id,
				Title:    fmt.Sprintf("Video %s", id),
				Error:    "Video ID not found",
				LogoPath: logoPath,
			})
			position++
			continue
		}
		items = append(items, Item{
			Position: position,
			ItemType: "video",
			VideoID:  id,
			Title:    info.Title,
			Path:     info.Path,
			LogoPath: logoPath,
		})
		position++
	}

	for _, p := range req.ManualPaths {
		items = append(items, Item{Position: position, ItemType: "transition", Title: "Transition", Path: p})
		position++
	}

	if outroPath != "" {
		items = append(items, Item{Position: position, ItemType: "outro", Title: "Outro", Path: outroPath})
	}

	return items
}
