package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestCreateJob_InsertsJobAndItemsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO job_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO job_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := NewJobStore(db)
	err = s.CreateJob(context.Background(), Job{
		JobID:       "job-1",
		UserID:      "user-1",
		ChannelName: "ChannelA",
		Status:      JobQueued,
		CreatedAt:   time.Now(),
	}, []JobItem{
		{JobID: "job-1", Position: 1, ItemType: "intro", Path: "/x/intro.mp4"},
		{JobID: "job-1", Position: 2, ItemType: "video", Path: "/x/video.mp4"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJob_RollsBackOnItemFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO job_items").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	s := NewJobStore(db)
	err = s.CreateJob(context.Background(), Job{JobID: "job-1"}, []JobItem{
		{JobID: "job-1", Position: 1, ItemType: "intro", Path: "/x/intro.mp4"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStaleJobDetails_FiltersByAge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(-5 * time.Minute)
	mock.ExpectQuery("SELECT j.job_id, j.task_id, j.enable_4k").
		WithArgs(string(JobQueued), cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "task_id", "enable_4k", "video_count", "has_text_animation"}).
			AddRow("stale-1", "old-task", false, 3, false))

	s := NewJobStore(db)
	stale, err := s.FindStaleJobDetails(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "stale-1", stale[0].JobID)
	require.Equal(t, 3, stale[0].VideoCount)
}

func TestQueueStats_CountsOnlyRequestingUsersJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT job_id, user_id, status FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "user_id", "status"}).
			AddRow("j1", "other", string(JobQueued)).
			AddRow("j2", "me", string(JobQueued)).
			AddRow("j3", "me", string(JobProcessing)))

	s := NewJobStore(db)
	stats, err := s.QueueStats(context.Background(), "me")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalInQueue)
	require.Len(t, stats.UserJobs, 2)
	require.Equal(t, 1, stats.UserJobs[0].WaitingCount)
	require.False(t, stats.UserJobs[0].IsProcessing)
	require.True(t, stats.UserJobs[1].IsProcessing)
}

func TestUsername_UnknownUserFallsBackToUnknown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT username FROM profiles").WillReturnRows(sqlmock.NewRows([]string{"username"}))

	s := NewJobStore(db)
	username, err := s.Username(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "unknown", username)
}
