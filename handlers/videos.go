package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/errors"
	"github.com/eleven-am/compilation-orchestrator/requests"
)

// UpsertVideoRequest is one row of a `POST /jobs/videos` bulk upsert.
type UpsertVideoRequest struct {
	VideoID string `json:"video_id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
}

// UpsertVideosRequest is the body of `POST /jobs/videos`.
type UpsertVideosRequest struct {
	Rows []UpsertVideoRequest `json:"rows"`
}

var UpsertVideosRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"rows": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"video_id": {"type": "string"},
					"path": {"type": "string"},
					"title": {"type": "string"}
				},
				"required": ["video_id", "path"]
			}
		}
	},
	"required": ["rows"]
}`

// UpsertVideoOutcomeResponse reports one row's upsert outcome.
type UpsertVideoOutcomeResponse struct {
	VideoID string `json:"video_id"`
	Saved   bool   `json:"saved"`
	Updated bool   `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// UpsertVideos handles `POST /jobs/videos`: a bulk upsert into
// the warehouse path table, enumerating per-row outcomes.
func (d *Collection) UpsertVideos() httprouter.Handle {
	schema := inputSchemasCompiled["UpsertVideos"]

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
			errors.WriteHTTPBadBodySchema("UpsertVideos", w, result.Errors())
			return
		}

		var body UpsertVideosRequest
		if err := json.Unmarshal(payload, &body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}

		rows := make([]clients.UpsertRow, len(body.Rows))
		for i, r := range body.Rows {
			rows[i] = clients.UpsertRow{VideoID: r.VideoID, Path: d.Normalizer.One(r.Path), Title: r.Title}
		}

		outcomes := d.Warehouse.UpsertVideos(req.Context(), rows)
		out := make([]UpsertVideoOutcomeResponse, len(outcomes))
		for i, o := range outcomes {
			resp := UpsertVideoOutcomeResponse{VideoID: o.VideoID, Saved: o.Saved, Updated: o.Updated}
			if o.Err != nil {
				resp.Error = o.Err.Error()
			}
			out[i] = resp
		}

		writeJSON(w, requestID, http.StatusOK, out)
	}
}
