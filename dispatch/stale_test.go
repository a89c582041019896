package dispatch

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/stretchr/testify/require"
)

type fakeStaleStore struct {
	jobs []clients.StaleJobDetail
}

func (f *fakeStaleStore) FindStaleJobDetails(ctx context.Context, olderThan time.Time) ([]clients.StaleJobDetail, error) {
	return f.jobs, nil
}

func TestScanOnce_RedispatchesFailedAndUnknownTasks(t *testing.T) {
	store := &fakeStaleStore{jobs: []clients.StaleJobDetail{
		{JobID: "failed-job", TaskID: sql.NullString{String: "t1", Valid: true}, VideoCount: 5},
		{JobID: "unknown-job", TaskID: sql.NullString{}, VideoCount: 3},
		{JobID: "pending-job", TaskID: sql.NullString{String: "t3", Valid: true}, VideoCount: 2},
	}}
	broker := &fakeBroker{taskID: "new-task", states: map[string]TaskState{
		"t1": StateFailure,
		"t3": StatePending,
	}}
	jobStore := &fakeJobStore{}
	dispatcher := New(broker, jobStore)
	dispatcher.RetryDelay = time.Millisecond

	d := NewDetector(store, dispatcher, broker)
	d.scanOnce(context.Background())

	require.Equal(t, "new-task", jobStore.taskIDs["failed-job"])
	require.Equal(t, "new-task", jobStore.taskIDs["unknown-job"])
	require.NotContains(t, jobStore.taskIDs, "pending-job")
}
