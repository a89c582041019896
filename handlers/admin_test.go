package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eleven-am/compilation-orchestrator/video"
)

func TestCacheStatus_ReportsWarehouseState(t *testing.T) {
	wh := &fakeWarehouse{cacheCount: 12}
	d := newTestCollection(newFakeJobStore(), wh, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.CacheStatus(), http.MethodGet, "/admin/cache-status", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var out CacheStatusResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.True(t, out.Cached)
	require.Equal(t, 12, out.ChannelsN)
}

func TestClearChannelsCache_ResetsWarehouseCache(t *testing.T) {
	wh := &fakeWarehouse{cacheCount: 5}
	d := newTestCollection(newFakeJobStore(), wh, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.ClearChannelsCache(), http.MethodPost, "/admin/clear-channels-cache", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 0, wh.cacheCount)
}

func TestListChannels_ReturnsWarehouseChannels(t *testing.T) {
	wh := &fakeWarehouse{channels: []string{"news", "sports"}}
	d := newTestCollection(newFakeJobStore(), wh, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.ListChannels(), http.MethodGet, "/admin/channels", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var out []string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, []string{"news", "sports"}, out)
}
