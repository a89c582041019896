package clients

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// JobStatus enumerates the lifecycle states a Job may occupy.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job mirrors one row of the `jobs` table.
type Job struct {
	JobID             string
	UserID            string
	ChannelName       string
	Status            JobStatus
	Progress          int
	ProgressMessage   string
	Enable4K          bool
	DefaultLogoPath   sql.NullString
	OutputPath        sql.NullString
	ProductionPath    sql.NullString
	MovedToProduction bool
	ProductionMovedAt sql.NullTime
	FinalDuration     sql.NullFloat64
	ErrorMessage      sql.NullString
	WorkerID          sql.NullString
	QueueName         sql.NullString
	TaskID            sql.NullString
	CreatedAt         time.Time
	StartedAt         sql.NullTime
	CompletedAt       sql.NullTime
	QueuePosition     sql.NullInt64
}

// JobItem mirrors one row of the `job_items` table.
type JobItem struct {
	JobID             string
	Position          int
	ItemType          string
	VideoID           sql.NullString
	Title             string
	Path              string
	LogoPath          sql.NullString
	Duration          float64
	Resolution        string
	Is4K              bool
	TextAnimationText sql.NullString
}

// HistoryRow mirrors one row of `compilation_history`.
type HistoryRow struct {
	JobID          string
	UserID         string
	ChannelName    string
	VideoCount     int
	TotalDuration  float64
	OutputFilename string
}

// JobStore is the Job Store Adapter (C5): typed CRUD over the relational
// store's job, job-items, profile and history tables.
type JobStore struct {
	db *sql.DB
}

// NewJobStore wraps an already-opened *sql.DB handle against the
// relational store DSN.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// CreateJob inserts a new job row and its items in a single transaction
//.
func (s *JobStore) CreateJob(ctx context.Context, job Job, items []JobItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, user_id, channel_name, status, progress, progress_message,
			enable_4k, default_logo_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.JobID, job.UserID, job.ChannelName, job.Status, job.Progress, job.ProgressMessage,
		job.Enable4K, job.DefaultLogoPath, job.CreatedAt)
	if err != nil {
		return err
	}

	for _, it := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_items (job_id, position, item_type, video_id, title, path,
				logo_path, duration, resolution, is_4k, text_animation_text)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, it.JobID, it.Position, it.ItemType, it.VideoID, it.Title, it.Path,
			it.LogoPath, it.Duration, it.Resolution, it.Is4K, it.TextAnimationText)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetJob fetches a single job row by id.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	var j Job
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, user_id, channel_name, status, progress, progress_message, enable_4k,
			default_logo_path, output_path, production_path, moved_to_production,
			production_moved_at, final_duration, error_message, worker_id, queue_name,
			task_id, created_at, started_at, completed_at, queue_position
		FROM jobs WHERE job_id = $1
	`, jobID).Scan(
		&j.JobID, &j.UserID, &j.ChannelName, &j.Status, &j.Progress, &j.ProgressMessage, &j.Enable4K,
		&j.DefaultLogoPath, &j.OutputPath, &j.ProductionPath, &j.MovedToProduction,
		&j.ProductionMovedAt, &j.FinalDuration, &j.ErrorMessage, &j.WorkerID, &j.QueueName,
		&j.TaskID, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.QueuePosition,
	)
	return j, err
}

// GetJobItems fetches a job's items ordered by position.
func (s *JobStore) GetJobItems(ctx context.Context, jobID string) ([]JobItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, position, item_type, video_id, title, path, logo_path, duration,
			resolution, is_4k, text_animation_text
		FROM job_items WHERE job_id = $1 ORDER BY position
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []JobItem
	for rows.Next() {
		var it JobItem
		if err := rows.Scan(&it.JobID, &it.Position, &it.ItemType, &it.VideoID, &it.Title,
			&it.Path, &it.LogoPath, &it.Duration, &it.Resolution, &it.Is4K,
			&it.TextAnimationText); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Username resolves a user id to its profiles.username, the "User
// profile" entity used for per-user filesystem-safe output/log paths.
func (s *JobStore) Username(ctx context.Context, userID string) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM profiles WHERE id = $1`, userID).Scan(&username)
	if err == sql.ErrNoRows {
		return "unknown", nil
	}
	return username, err
}

// TransitionToProcessing marks a job as processing and records which
// worker/queue picked it up.
func (s *JobStore) TransitionToProcessing(ctx context.Context, jobID, workerID, queueName string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, progress_message = 'Starting...', started_at = $3,
			worker_id = $4, queue_name = $5
		WHERE job_id = $1
	`, jobID, JobProcessing, startedAt, workerID, queueName)
	return err
}

// UpdateProgress sets the progress percent and message.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = $2, progress_message = $3 WHERE job_id = $1
	`, jobID, progress, message)
	return err
}

// SetProgressMessage updates only the human-readable message, leaving the
// numeric progress untouched.
func (s *JobStore) SetProgressMessage(ctx context.Context, jobID, message string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET progress_message = $2 WHERE job_id = $1`, jobID, message)
	return err
}

// CompleteJob marks a job completed with its final duration and output
// path.
func (s *JobStore) CompleteJob(ctx context.Context, jobID, outputPath string, finalDuration float64, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, progress = 100, progress_message = 'Completed',
			output_path = $3, final_duration = $4, completed_at = $5
		WHERE job_id = $1
	`, jobID, JobCompleted, outputPath, finalDuration, completedAt)
	return err
}

// FailJob marks a job failed with an explanatory error message.
func (s *JobStore) FailJob(ctx context.Context, jobID, errMessage string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, progress_message = 'Failed', error_message = $3, completed_at = $4
		WHERE job_id = $1
	`, jobID, JobFailed, errMessage, completedAt)
	return err
}

// CancelJob marks a job cancelled.
func (s *JobStore) CancelJob(ctx context.Context, jobID, reason string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, progress_message = 'Cancelled', error_message = $3, completed_at = $4
		WHERE job_id = $1
	`, jobID, JobCancelled, reason, completedAt)
	return err
}

// SetTaskID records the broker-assigned task id, used both by the
// Dispatcher (C6) on first submission and the Stale-Job Detector (C7) on
// re-dispatch.
func (s *JobStore) SetTaskID(ctx context.Context, jobID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET task_id = $2 WHERE job_id = $1`, jobID, taskID)
	return err
}

// MoveToProduction records the production path once the background copy
// from `POST /jobs/{id}/move-to-production` completes.
func (s *JobStore) MoveToProduction(ctx context.Context, jobID, productionPath string, movedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET production_path = $2, moved_to_production = true, production_moved_at = $3
		WHERE job_id = $1
	`, jobID, productionPath, movedAt)
	return err
}

// StaleJobDetail is a queued-but-unclaimed row returned by
// FindStaleJobDetails, carrying the fields the Stale-Job Detector needs
// to re-run the Dispatcher's queue-classification policy.
type StaleJobDetail struct {
	JobID            string
	TaskID           sql.NullString
	Enable4K         bool
	VideoCount       int
	HasTextAnimation bool
}

// FindStaleJobDetails returns jobs matching the Stale-Job Detector's
// criteria: status == queued, worker_id is null, created_at
// older than olderThan, joined against job_items to recover the
// quantities ClassifyQueue needs to re-dispatch.
func (s *JobStore) FindStaleJobDetails(ctx context.Context, olderThan time.Time) ([]StaleJobDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.job_id, j.task_id, j.enable_4k,
			COUNT(*) FILTER (WHERE i.item_type = 'video') AS video_count,
			BOOL_OR(i.text_animation_text IS NOT NULL AND i.text_animation_text != '') AS has_text_animation
		FROM jobs j
		LEFT JOIN job_items i ON i.job_id = j.job_id
		WHERE j.status = $1 AND j.worker_id IS NULL AND j.created_at < $2
		GROUP BY j.job_id, j.task_id, j.enable_4k
	`, JobQueued, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []StaleJobDetail
	for rows.Next() {
		var sj StaleJobDetail
		if err := rows.Scan(&sj.JobID, &sj.TaskID, &sj.Enable4K, &sj.VideoCount, &sj.HasTextAnimation); err != nil {
			return nil, err
		}
		stale = append(stale, sj)
	}
	return stale, rows.Err()
}

// QueueStats is the aggregate returned by `GET /jobs/queue/stats`.
type QueueStats struct {
	TotalInQueue int
	UserJobs     []UserQueuePosition
}

// UserQueuePosition is one user's job within the queue ordering.
type UserQueuePosition struct {
	JobID        string
	Position     int
	IsProcessing bool
	WaitingCount int
}

// QueueStats orders every non-terminal job by created_at and reports the
// requesting user's positions within it.
func (s *JobStore) QueueStats(ctx context.Context, userID string) (QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, user_id, status FROM jobs
		WHERE status IN ($1, $2) ORDER BY created_at
	`, JobQueued, JobProcessing)
	if err != nil {
		return QueueStats{}, err
	}
	defer rows.Close()

	var stats QueueStats
	position := 0
	waitingAhead := 0
	for rows.Next() {
		var jobID, jUserID string
		var status JobStatus
		if err := rows.Scan(&jobID, &jUserID, &status); err != nil {
			return QueueStats{}, err
		}
		position++
		stats.TotalInQueue++
		if jUserID == userID {
			stats.UserJobs = append(stats.UserJobs, UserQueuePosition{
				JobID:        jobID,
				Position:     position,
				IsProcessing: status == JobProcessing,
				WaitingCount: waitingAhead,
			})
		}
		if status == JobQueued {
			waitingAhead++
		}
	}
	return stats, rows.Err()
}

// ListJobsByStatus returns jobs whose status is one of statuses, newest
// first, backing the supplemented `GET /jobs?status=...` listing (the
// original's list_jobs/get_job_history split between active and historical
// statuses).
func (s *JobStore) ListJobsByStatus(ctx context.Context, statuses []JobStatus) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, user_id, channel_name, status, progress, progress_message, enable_4k,
			default_logo_path, output_path, production_path, moved_to_production,
			production_moved_at, final_duration, error_message, worker_id, queue_name,
			task_id, created_at, started_at, completed_at, queue_position
		FROM jobs WHERE status = ANY($1) ORDER BY created_at DESC
	`, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(
			&j.JobID, &j.UserID, &j.ChannelName, &j.Status, &j.Progress, &j.ProgressMessage, &j.Enable4K,
			&j.DefaultLogoPath, &j.OutputPath, &j.ProductionPath, &j.MovedToProduction,
			&j.ProductionMovedAt, &j.FinalDuration, &j.ErrorMessage, &j.WorkerID, &j.QueueName,
			&j.TaskID, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.QueuePosition,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RecordHistory inserts a row into compilation_history,
// the supplemented analytics trail the original wrote to BigQuery via
// insert_compilation_result and this port keeps in the relational store.
func (s *JobStore) RecordHistory(ctx context.Context, h HistoryRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compilation_history (job_id, user_id, channel_name, video_count,
			total_duration, output_filename)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.JobID, h.UserID, h.ChannelName, h.VideoCount, h.TotalDuration, h.OutputFilename)
	return err
}
