package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/errors"
	"github.com/eleven-am/compilation-orchestrator/requests"
)

// SubmitItemRequest is one item of a `POST /jobs/submit` body: the item
// list a prior `/jobs/verify` call (possibly user-reordered) produced.
type SubmitItemRequest struct {
	Position          int     `json:"position"`
	ItemType          string  `json:"item_type"`
	VideoID           string  `json:"video_id,omitempty"`
	Title             string  `json:"title"`
	Path              string  `json:"path"`
	LogoPath          string  `json:"logo_path,omitempty"`
	Duration          float64 `json:"duration"`
	Resolution        string  `json:"resolution,omitempty"`
	Is4K              bool    `json:"is_4k"`
	TextAnimationText string  `json:"text_animation_text,omitempty"`
}

// SubmitJobRequest is the body of `POST /jobs/submit`.
type SubmitJobRequest struct {
	UserID          string              `json:"user_id"`
	ChannelName     string              `json:"channel_name"`
	Enable4K        bool                `json:"enable_4k"`
	DefaultLogoPath string              `json:"default_logo_path,omitempty"`
	Items           []SubmitItemRequest `json:"items"`
}

var SubmitJobRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"user_id": {"type": "string"},
		"channel_name": {"type": "string"},
		"enable_4k": {"type": "boolean"},
		"default_logo_path": {"type": "string"},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"position": {"type": "integer"},
					"item_type": {"type": "string"},
					"video_id": {"type": "string"},
					"title": {"type": "string"},
					"path": {"type": "string"},
					"logo_path": {"type": "string"},
					"duration": {"type": "number"},
					"resolution": {"type": "string"},
					"is_4k": {"type": "boolean"},
					"text_animation_text": {"type": "string"}
				},
				"required": ["position", "item_type", "path"]
			}
		}
	},
	"required": ["user_id", "channel_name", "items"]
}`

// SubmitJobResponse is the body of `POST /jobs/submit`'s response.
type SubmitJobResponse struct {
	JobID  string            `json:"job_id"`
	Status clients.JobStatus `json:"status"`
}

// SubmitJob handles `POST /jobs/submit`: rejects the job if any item has an
// empty path (paths are not probed here), persists the job and its items,
// classifies and dispatches it onto the right broker queue, and returns
// immediately.
func (d *Collection) SubmitJob() httprouter.Handle {
	schema := inputSchemasCompiled["SubmitJob"]

	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)

		payload, err := io.ReadAll(req.Body)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "cannot read body", err)
			return
		}
		result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "body schema validation failed", err)
			return
		}
		if !result.Valid() {
			errors.WriteHTTPBadBodySchema("SubmitJob", w, result.Errors())
			return
		}

		var body SubmitJobRequest
		if err := json.Unmarshal(payload, &body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}
		if len(body.Items) == 0 {
			errors.WriteHTTPBadRequest(w, "job has no items", nil)
			return
		}

		var unavailablePositions []int
		for _, it := range body.Items {
			if it.Path == "" {
				unavailablePositions = append(unavailablePositions, it.Position)
			}
		}
		if len(unavailablePositions) > 0 {
			errors.WriteHTTPBadRequest(w, fmt.Sprintf("items at positions %v have no available path", unavailablePositions), nil)
			return
		}

		videoCount := 0
		hasTextAnimation := false
		items := make([]clients.JobItem, len(body.Items))
		jobID := uuid.NewString()
		for i, it := range body.Items {
			if it.ItemType == "video" {
				videoCount++
			}
			if it.TextAnimationText != "" {
				hasTextAnimation = true
			}
			items[i] = clients.JobItem{
				JobID:             jobID,
				Position:          it.Position,
				ItemType:          it.ItemType,
				VideoID:           nullString(it.VideoID),
				Title:             it.Title,
				Path:              it.Path,
				LogoPath:          nullString(it.LogoPath),
				Duration:          it.Duration,
				Resolution:        it.Resolution,
				Is4K:              it.Is4K,
				TextAnimationText: nullString(it.TextAnimationText),
			}
		}

		job := clients.Job{
			JobID:           jobID,
			UserID:          body.UserID,
			ChannelName:     body.ChannelName,
			Status:          clients.JobQueued,
			Enable4K:        body.Enable4K,
			DefaultLogoPath: nullString(body.DefaultLogoPath),
			CreatedAt:       d.Now(),
		}
		if err := d.Store.CreateJob(req.Context(), job, items); err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to persist job", err)
			return
		}

		if _, _, err := d.Dispatcher.Dispatch(req.Context(), jobID, body.Enable4K, videoCount, hasTextAnimation); err != nil {
			// Dispatch already marked the job failed; report it, the row
			// already reflects the true outcome.
			writeJSON(w, requestID, http.StatusOK, SubmitJobResponse{JobID: jobID, Status: clients.JobFailed})
			return
		}

		writeJSON(w, requestID, http.StatusOK, SubmitJobResponse{JobID: jobID, Status: clients.JobQueued})
	}
}
