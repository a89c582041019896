package clients

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/lib/pq"
)

// VideoInfo is one row resolved from the warehouse path table.
type VideoInfo struct {
	Path  string
	Title string
}

// ChannelAssets is the branding bundle for a channel.
type ChannelAssets struct {
	Intro string
	Outro string
	Logo  string
}

// UpsertRow is one row of a bulk upsert request.
type UpsertRow struct {
	VideoID string
	Path    string
	Title   string
}

// UpsertOutcome reports per-row results of an upsert_videos call.
type UpsertOutcome struct {
	VideoID string
	Saved   bool
	Updated bool
	Err     error
}

// Warehouse is the Metadata Gateway (C4): a batch, read-mostly interface
// over the external analytics warehouse, backed by database/sql + lib/pq
// rather than a BigQuery SDK (none available).
type Warehouse struct {
	db *sql.DB

	channelsMu       sync.Mutex
	channelsCache    []string
	channelsCachedAt time.Time
}

// NewWarehouse wraps an already-opened *sql.DB handle against the warehouse
// DSN.
func NewWarehouse(db *sql.DB) *Warehouse {
	return &Warehouse{db: db}
}

// ResolveVideos fetches {path,title} for a batch of catalog ids in a single
// IN-list query. Missing ids are simply absent from the result.
func (w *Warehouse) ResolveVideos(ctx context.Context, videoIDs []string) (map[string]VideoInfo, error) {
	out := make(map[string]VideoInfo, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT video_id, path_nyt, video_title
		FROM ybh_assest_path.path
		WHERE video_id = ANY($1)
	`, pq.Array(videoIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, path, title string
		if err := rows.Scan(&id, &path, &title); err != nil {
			return nil, err
		}
		out[id] = VideoInfo{Path: path, Title: title}
	}
	return out, rows.Err()
}

// ChannelAssets returns the intro/outro/logo bundle for a channel: one row
// per channel; an unknown channel returns the zero value, not an error.
func (w *Warehouse) ChannelAssets(ctx context.Context, channel string) (ChannelAssets, error) {
	var assets ChannelAssets
	row := w.db.QueryRowContext(ctx, `
		SELECT logo, intro_packaging, end_packaging
		FROM ybh_assest_path.branding_assets
		WHERE channel_name = $1
	`, channel)

	var logo, intro, outro sql.NullString
	if err := row.Scan(&logo, &intro, &outro); err != nil {
		if err == sql.ErrNoRows {
			return ChannelAssets{}, nil
		}
		return ChannelAssets{}, err
	}
	assets.Logo = logo.String
	assets.Intro = intro.String
	assets.Outro = outro.String
	return assets, nil
}

// ProductionRoot returns the production output path configured for a
// channel, or "" if none is set.
func (w *Warehouse) ProductionRoot(ctx context.Context, channel string) (string, error) {
	var path sql.NullString
	err := w.db.QueryRowContext(ctx, `
		SELECT output_path FROM ybh_assest_path.branding_assets WHERE channel_name = $1
	`, channel).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return path.String, nil
}

// AllChannels returns every known channel name, backed by an in-process
// TTL cache. Grounded on the original's
// services/bigquery.py:get_all_channels / _channels_cache dict.
func (w *Warehouse) AllChannels(ctx context.Context) ([]string, error) {
	w.channelsMu.Lock()
	if w.channelsCache != nil && time.Since(w.channelsCachedAt) < config.ChannelCacheTTL {
		defer w.channelsMu.Unlock()
		return w.channelsCache, nil
	}
	w.channelsMu.Unlock()

	channels, err := w.fetchChannels(ctx)
	w.channelsMu.Lock()
	defer w.channelsMu.Unlock()
	if err != nil {
		if w.channelsCache != nil {
			return w.channelsCache, nil
		}
		return nil, err
	}
	w.channelsCache = channels
	w.channelsCachedAt = time.Now()
	return channels, nil
}

func (w *Warehouse) fetchChannels(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT DISTINCT channel_name FROM ybh_assest_path.branding_assets ORDER BY channel_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		channels = append(channels, name)
	}
	return channels, rows.Err()
}

// ClearChannelsCache manually invalidates the channel-name cache.
func (w *Warehouse) ClearChannelsCache() {
	w.channelsMu.Lock()
	defer w.channelsMu.Unlock()
	w.channelsCache = nil
	w.channelsCachedAt = time.Time{}
}

// ChannelsCacheStatus reports the cache's age for the admin introspection
// endpoint.
func (w *Warehouse) ChannelsCacheStatus() (cached bool, age time.Duration, count int) {
	w.channelsMu.Lock()
	defer w.channelsMu.Unlock()
	if w.channelsCache == nil {
		return false, 0, 0
	}
	return true, time.Since(w.channelsCachedAt), len(w.channelsCache)
}

// UpsertVideos inserts or updates each row's path/title in the warehouse
// path table: UPDATE when the id already exists, INSERT otherwise.
// Grounded on the original's upsert_videos_bulk, which deliberately
// avoids BigQuery's streaming-insert buffer so a freshly-inserted row can be
// immediately UPDATEd again; a plain SQL INSERT has no such delay, so this
// port keeps a single statement per row rather than reproducing the
// original's two-phase exists-check.
func (w *Warehouse) UpsertVideos(ctx context.Context, rows []UpsertRow) []UpsertOutcome {
	outcomes := make([]UpsertOutcome, 0, len(rows))
	for _, r := range rows {
		res, err := w.db.ExecContext(ctx, `
			UPDATE ybh_assest_path.path SET path_nyt = $2, video_title = $3 WHERE video_id = $1
		`, r.VideoID, r.Path, r.Title)
		if err != nil {
			outcomes = append(outcomes, UpsertOutcome{VideoID: r.VideoID, Err: err})
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			outcomes = append(outcomes, UpsertOutcome{VideoID: r.VideoID, Saved: true, Updated: true})
			continue
		}

		_, err = w.db.ExecContext(ctx, `
			INSERT INTO ybh_assest_path.path (video_id, path_nyt, video_title) VALUES ($1, $2, $3)
		`, r.VideoID, r.Path, r.Title)
		if err != nil {
			outcomes = append(outcomes, UpsertOutcome{VideoID: r.VideoID, Err: err})
			continue
		}
		outcomes = append(outcomes, UpsertOutcome{VideoID: r.VideoID, Saved: true})
	}
	return outcomes
}
