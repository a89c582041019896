package handlers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/errors"
	"github.com/eleven-am/compilation-orchestrator/log"
	"github.com/eleven-am/compilation-orchestrator/requests"
)

// JobResponse mirrors the subset of a `jobs` row the returns from
// `GET /jobs/{id}`.
type JobResponse struct {
	JobID           string  `json:"job_id"`
	UserID          string  `json:"user_id"`
	ChannelName     string  `json:"channel_name"`
	Status          string  `json:"status"`
	Progress        int     `json:"progress"`
	ProgressMessage string  `json:"progress_message"`
	Enable4K        bool    `json:"enable_4k"`
	OutputPath      string  `json:"output_path,omitempty"`
	ProductionPath  string  `json:"production_path,omitempty"`
	MovedToProd     bool    `json:"moved_to_production"`
	FinalDuration   float64 `json:"final_duration,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

func toJobResponse(j clients.Job) JobResponse {
	return JobResponse{
		JobID:           j.JobID,
		UserID:          j.UserID,
		ChannelName:     j.ChannelName,
		Status:          string(j.Status),
		Progress:        j.Progress,
		ProgressMessage: j.ProgressMessage,
		Enable4K:        j.Enable4K,
		OutputPath:      j.OutputPath.String,
		ProductionPath:  j.ProductionPath.String,
		MovedToProd:     j.MovedToProduction,
		FinalDuration:   j.FinalDuration.Float64,
		ErrorMessage:    j.ErrorMessage.String,
	}
}

// GetJob handles `GET /jobs/{id}`.
func (d *Collection) GetJob() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestId(req)
		job, err := d.Store.GetJob(req.Context(), ps.ByName("id"))
		if err != nil {
			errors.WriteHTTPNotFound(w, "job not found", err)
			return
		}
		writeJSON(w, requestID, http.StatusOK, toJobResponse(job))
	}
}

// JobItemResponse mirrors one `job_items` row.
type JobItemResponse struct {
	Position   int     `json:"position"`
	ItemType   string  `json:"item_type"`
	VideoID    string  `json:"video_id,omitempty"`
	Title      string  `json:"title"`
	Path       string  `json:"path"`
	LogoPath   string  `json:"logo_path,omitempty"`
	Duration   float64 `json:"duration"`
	Resolution string  `json:"resolution,omitempty"`
	Is4K       bool    `json:"is_4k"`
}

// GetJobItems handles `GET /jobs/{id}/items`.
func (d *Collection) GetJobItems() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestId(req)
		items, err := d.Store.GetJobItems(req.Context(), ps.ByName("id"))
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to load job items", err)
			return
		}

		out := make([]JobItemResponse, len(items))
		for i, it := range items {
			out[i] = JobItemResponse{
				Position:   it.Position,
				ItemType:   it.ItemType,
				VideoID:    it.VideoID.String,
				Title:      it.Title,
				Path:       it.Path,
				LogoPath:   it.LogoPath.String,
				Duration:   it.Duration,
				Resolution: it.Resolution,
				Is4K:       it.Is4K,
			}
		}
		writeJSON(w, requestID, http.StatusOK, out)
	}
}

// CancelJob handles `POST /jobs/{id}/cancel`: a cooperative
// cancel request. Cancelling an already-terminal job is a 400, not a
// silent no-op, per the input-error taxonomy.
func (d *Collection) CancelJob() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestId(req)
		jobID := ps.ByName("id")

		job, err := d.Store.GetJob(req.Context(), jobID)
		if err != nil {
			errors.WriteHTTPNotFound(w, "job not found", err)
			return
		}
		if job.Status == clients.JobCompleted || job.Status == clients.JobFailed || job.Status == clients.JobCancelled {
			errors.WriteHTTPBadRequest(w, "job is already in a terminal state", nil)
			return
		}

		if err := d.Store.CancelJob(req.Context(), jobID, "cancelled by user", d.Now()); err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to cancel job", err)
			return
		}
		writeJSON(w, requestID, http.StatusOK, map[string]string{"job_id": jobID, "status": string(clients.JobCancelled)})
	}
}

// MoveToProduction handles `POST /jobs/{id}/move-to-production`:
// copies the finished output to
// {production_root}/{YYYY}/{mon-lowercase}/{sanitized-name}.mp4 in the
// background and returns immediately.
func (d *Collection) MoveToProduction() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestId(req)
		jobID := ps.ByName("id")

		job, err := d.Store.GetJob(req.Context(), jobID)
		if err != nil {
			errors.WriteHTTPNotFound(w, "job not found", err)
			return
		}
		if job.Status != clients.JobCompleted || !job.OutputPath.Valid {
			errors.WriteHTTPBadRequest(w, "job has no completed output to promote", nil)
			return
		}

		productionRoot, err := d.Warehouse.ProductionRoot(req.Context(), job.ChannelName)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to resolve production root", err)
			return
		}
		if productionRoot == "" {
			errors.WriteHTTPNotFound(w, "channel has no production root configured", nil)
			return
		}

		now := d.Now()
		destDir := filepath.Join(productionRoot, fmt.Sprintf("%04d", now.Year()), strings.ToLower(now.Month().String()[:3]))
		destName := sanitizeProductionName(filepath.Base(job.OutputPath.String)) + ".mp4"

		go func() {
			bgCtx := context.Background()
			path, err := d.Copier.CopyOne(bgCtx, job.OutputPath.String, destDir, destName)
			if err != nil {
				log.Log(requestID, "move-to-production copy failed", "job_id", jobID, "err", err)
				return
			}
			if err := d.Store.MoveToProduction(bgCtx, jobID, path, d.Now()); err != nil {
				log.Log(requestID, "recording production path failed", "job_id", jobID, "err", err)
			}
		}()

		writeJSON(w, requestID, http.StatusOK, map[string]string{"job_id": jobID, "status": "promoting"})
	}
}

// QueueStatsResponse is the body of `GET /jobs/queue/stats`.
type QueueStatsResponse struct {
	TotalInQueue   int                         `json:"total_in_queue"`
	ActiveWorkers  int                         `json:"active_workers"`
	UserJobs       []clients.UserQueuePosition `json:"user_jobs"`
	AvailableSlots int                         `json:"available_slots"`
}

// QueueStats handles `GET /jobs/queue/stats?user_id=...`.
func (d *Collection) QueueStats() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		userID := req.URL.Query().Get("user_id")

		stats, err := d.Store.QueueStats(req.Context(), userID)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to compute queue stats", err)
			return
		}

		activeWorkers := 0
		for _, uj := range stats.UserJobs {
			if uj.IsProcessing {
				activeWorkers++
			}
		}

		availableSlots := config.MaxJobsInFlight - activeWorkers
		if availableSlots < 0 {
			availableSlots = 0
		}

		writeJSON(w, requestID, http.StatusOK, QueueStatsResponse{
			TotalInQueue:   stats.TotalInQueue,
			ActiveWorkers:  activeWorkers,
			UserJobs:       stats.UserJobs,
			AvailableSlots: availableSlots,
		})
	}
}

// ListJobs handles `GET /jobs?status=active|history`, carried from the
// original's list_jobs/get_job_history split.
func (d *Collection) ListJobs() httprouter.Handle {
	activeStatuses := []clients.JobStatus{clients.JobQueued, clients.JobProcessing}
	historyStatuses := []clients.JobStatus{clients.JobCompleted, clients.JobFailed, clients.JobCancelled}

	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)

		statuses := activeStatuses
		if req.URL.Query().Get("status") == "history" {
			statuses = historyStatuses
		}

		jobs, err := d.Store.ListJobsByStatus(req.Context(), statuses)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to list jobs", err)
			return
		}

		out := make([]JobResponse, len(jobs))
		for i, j := range jobs {
			out[i] = toJobResponse(j)
		}
		writeJSON(w, requestID, http.StatusOK, out)
	}
}
