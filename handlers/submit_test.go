package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/video"
)

func TestSubmitJob_PersistsAndDispatches(t *testing.T) {
	store := newFakeJobStore()
	dispatcher := &fakeDispatcher{}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, dispatcher, &fakeCopier{})

	resp := doRequest(t, d.SubmitJob(), http.MethodPost, "/jobs/submit", SubmitJobRequest{
		UserID:      "user-1",
		ChannelName: "news",
		Items: []SubmitItemRequest{
			{Position: 0, ItemType: "intro", Path: "/mnt/share/intro.mp4", Duration: 5},
			{Position: 1, ItemType: "video", VideoID: "v1", Path: "/mnt/share/video1.mp4", Duration: 100},
		},
	})

	require.Equal(t, http.StatusOK, resp.Code)

	var out SubmitJobResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, clients.JobQueued, out.Status)
	require.Len(t, store.created, 1)
	require.Equal(t, out.JobID, store.created[0].JobID)
	require.Len(t, store.items[out.JobID], 2)
	require.Equal(t, []string{out.JobID}, dispatcher.calls)
}

func TestSubmitJob_RejectsEmptyItems(t *testing.T) {
	d := newTestCollection(newFakeJobStore(), &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.SubmitJob(), http.MethodPost, "/jobs/submit", SubmitJobRequest{
		UserID:      "user-1",
		ChannelName: "news",
		Items:       []SubmitItemRequest{},
	})

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitJob_RejectsItemWithoutPath(t *testing.T) {
	d := newTestCollection(newFakeJobStore(), &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.SubmitJob(), http.MethodPost, "/jobs/submit", SubmitJobRequest{
		UserID:      "user-1",
		ChannelName: "news",
		Items: []SubmitItemRequest{
			{Position: 0, ItemType: "video", Path: ""},
		},
	})

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitJob_DispatchFailureReportsFailedStatus(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("broker unreachable")}
	d := newTestCollection(newFakeJobStore(), &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, dispatcher, &fakeCopier{})

	resp := doRequest(t, d.SubmitJob(), http.MethodPost, "/jobs/submit", SubmitJobRequest{
		UserID:      "user-1",
		ChannelName: "news",
		Items: []SubmitItemRequest{
			{Position: 0, ItemType: "video", Path: "/mnt/share/video1.mp4", Duration: 10},
		},
	})

	require.Equal(t, http.StatusOK, resp.Code)

	var out SubmitJobResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, clients.JobFailed, out.Status)
}
