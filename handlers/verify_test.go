package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/pathnorm"
	"github.com/eleven-am/compilation-orchestrator/verify"
	"github.com/eleven-am/compilation-orchestrator/video"
)

func testNormalizer() *pathnorm.Normalizer {
	return pathnorm.New(config.ShareMappings, "192.168.1.6", false)
}

func newTestCollection(store *fakeJobStore, wh *fakeWarehouse, prober *fakeProber, dispatcher *fakeDispatcher, copier *fakeCopier) *Collection {
	return New(store, wh, verify.New(wh, testNormalizer(), prober), dispatcher, copier, testNormalizer(), "test-token")
}

func doRequest(t *testing.T, handle httprouter.Handle, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	resp := httptest.NewRecorder()
	handle(resp, req, nil)
	return resp
}

func TestVerifyJob_ReturnsOrderedItemsWithAvailability(t *testing.T) {
	wh := &fakeWarehouse{
		assets: clients.ChannelAssets{Intro: "/Volumes/Share/intro.mp4", Logo: "/mnt/share/logo.png"},
		resolved: map[string]clients.VideoInfo{
			"v1": {Path: "/Volumes/Share/video1.mp4", Title: "Video One"},
		},
	}
	prober := &fakeProber{byPath: map[string]video.Info{
		`\\192.168.1.6\Share\intro.mp4`:  {DurationSec: 5},
		`\\192.168.1.6\Share\video1.mp4`: {DurationSec: 100, Width: 1920, Height: 1080},
	}}

	d := newTestCollection(newFakeJobStore(), wh, prober, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.VerifyJob(), http.MethodPost, "/jobs/verify", VerifyRequest{
		ChannelName:  "news",
		VideoIDs:     []string{"v1"},
		IncludeIntro: true,
	})

	require.Equal(t, http.StatusOK, resp.Code)

	var out VerifyResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Items, 2)
	require.Equal(t, "intro", out.Items[0].ItemType)
	require.True(t, out.Items[0].PathAvailable)
	require.Equal(t, "video", out.Items[1].ItemType)
	require.Equal(t, float64(105), out.TotalDuration)
}

func TestVerifyJob_RejectsMissingChannelName(t *testing.T) {
	d := newTestCollection(newFakeJobStore(), &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.VerifyJob(), http.MethodPost, "/jobs/verify", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestVerifyPath_UnknownPathReturnsUnavailable(t *testing.T) {
	d := newTestCollection(newFakeJobStore(), &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.VerifyPath(), http.MethodPost, "/jobs/verify-path", VerifyPathRequest{Path: "/mnt/share/missing.mp4"})
	require.Equal(t, http.StatusOK, resp.Code)

	var out VerifyPathResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.False(t, out.PathAvailable)
}
