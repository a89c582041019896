package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/video"
)

func doRequestWithParams(t *testing.T, handle httprouter.Handle, method, path string, ps httprouter.Params) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	handle(resp, req, ps)
	return resp
}

func TestGetJob_ReturnsJob(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = clients.Job{JobID: "job-1", UserID: "user-1", ChannelName: "news", Status: clients.JobProcessing, Progress: 42}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.GetJob(), http.MethodGet, "/jobs/job-1", httprouter.Params{{Key: "id", Value: "job-1"}})
	require.Equal(t, http.StatusOK, resp.Code)

	var out JobResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, "job-1", out.JobID)
	require.Equal(t, 42, out.Progress)
}

func TestGetJob_UnknownJobReturns404(t *testing.T) {
	d := newTestCollection(newFakeJobStore(), &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.GetJob(), http.MethodGet, "/jobs/missing", httprouter.Params{{Key: "id", Value: "missing"}})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCancelJob_CancelsQueuedJob(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = clients.Job{JobID: "job-1", Status: clients.JobQueued}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.CancelJob(), http.MethodPost, "/jobs/job-1/cancel", httprouter.Params{{Key: "id", Value: "job-1"}})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "job-1", store.cancelled)
}

func TestCancelJob_RejectsAlreadyTerminalJob(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = clients.Job{JobID: "job-1", Status: clients.JobCompleted}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.CancelJob(), http.MethodPost, "/jobs/job-1/cancel", httprouter.Params{{Key: "id", Value: "job-1"}})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMoveToProduction_RejectsJobWithNoOutput(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = clients.Job{JobID: "job-1", Status: clients.JobProcessing}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.MoveToProduction(), http.MethodPost, "/jobs/job-1/move-to-production", httprouter.Params{{Key: "id", Value: "job-1"}})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMoveToProduction_RejectsChannelWithNoProductionRoot(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = clients.Job{
		JobID:      "job-1",
		Status:     clients.JobCompleted,
		OutputPath: nullString("/tmp/job-1/out.mp4"),
	}
	d := newTestCollection(store, &fakeWarehouse{productionRoot: ""}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.MoveToProduction(), http.MethodPost, "/jobs/job-1/move-to-production", httprouter.Params{{Key: "id", Value: "job-1"}})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMoveToProduction_AcceptsCompletedJob(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = clients.Job{
		JobID:      "job-1",
		Status:     clients.JobCompleted,
		OutputPath: nullString("/tmp/job-1/out.mp4"),
	}
	d := newTestCollection(store, &fakeWarehouse{productionRoot: "/mnt/production"}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequestWithParams(t, d.MoveToProduction(), http.MethodPost, "/jobs/job-1/move-to-production", httprouter.Params{{Key: "id", Value: "job-1"}})
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestQueueStats_ComputesAvailableSlots(t *testing.T) {
	store := newFakeJobStore()
	store.stats = clients.QueueStats{
		TotalInQueue: 3,
		UserJobs: []clients.UserQueuePosition{
			{JobID: "job-1", IsProcessing: true},
			{JobID: "job-2", IsProcessing: false},
		},
	}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.QueueStats(), http.MethodGet, "/jobs/queue/stats", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var out QueueStatsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Equal(t, 1, out.ActiveWorkers)
	require.Equal(t, config.MaxJobsInFlight-1, out.AvailableSlots)
}

func TestListJobs_DefaultsToActiveStatuses(t *testing.T) {
	store := newFakeJobStore()
	store.listed = []clients.Job{{JobID: "job-1", Status: clients.JobProcessing}}
	d := newTestCollection(store, &fakeWarehouse{}, &fakeProber{byPath: map[string]video.Info{}}, &fakeDispatcher{}, &fakeCopier{})

	resp := doRequest(t, d.ListJobs(), http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var out []JobResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "job-1", out[0].JobID)
}
