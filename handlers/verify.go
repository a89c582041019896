package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/eleven-am/compilation-orchestrator/errors"
	"github.com/eleven-am/compilation-orchestrator/requests"
	"github.com/eleven-am/compilation-orchestrator/verify"
)

// VerifyRequest mirrors the body of `POST /jobs/verify`.
type VerifyRequest struct {
	ChannelName  string   `json:"channel_name"`
	VideoIDs     []string `json:"video_ids"`
	ManualPaths  []string `json:"manual_paths"`
	IncludeIntro bool     `json:"include_intro"`
	IncludeOutro bool     `json:"include_outro"`
	EnableLogos  bool     `json:"enable_logos"`
}

var VerifyRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"channel_name": {"type": "string"},
		"video_ids": {"items": {"type": "string"}, "type": "array"},
		"manual_paths": {"items": {"type": "string"}, "type": "array"},
		"include_intro": {"type": "boolean"},
		"include_outro": {"type": "boolean"},
		"enable_logos": {"type": "boolean"}
	},
	"required": ["channel_name"]
}`

// VerifyItemResponse is one item of a verification response.
type VerifyItemResponse struct {
	Position      int     `json:"position"`
	ItemType      string  `json:"item_type"`
	VideoID       string  `json:"video_id,omitempty"`
	Title         string  `json:"title"`
	Path          string  `json:"path,omitempty"`
	PathAvailable bool    `json:"path_available"`
	Duration      float64 `json:"duration"`
	Resolution    string  `json:"resolution,omitempty"`
	Is4K          bool    `json:"is_4k"`
	LogoPath      string  `json:"logo_path,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// VerifyResponse is the body of `POST /jobs/verify`'s response.
type VerifyResponse struct {
	DefaultLogoPath string               `json:"default_logo_path,omitempty"`
	TotalDuration   float64              `json:"total_duration"`
	Items           []VerifyItemResponse `json:"items"`
}


func toVerifyItemResponses(items []verify.Item) []VerifyItemResponse {
	out := make([]VerifyItemResponse, len(items))
	for i, it := range items {
		out[i] = VerifyItemResponse{
			Position:      it.Position,
			ItemType:      it.ItemType,
			VideoID:       it.VideoID,
			Title:         it.Title,
			Path:          it.Path,
			PathAvailable: it.PathAvailable,
			Duration:      it.Duration,
			Resolution:    it.Resolution,
			Is4K:          it.Is4K,
			LogoPath:      it.LogoPath,
			Error:         it.Error,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, requestID string, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errors.WriteHTTPInternalServerError(w, "failed to encode response", err)
	}
}

// VerifyJob handles `POST /jobs/verify?user_id=...`.
func (d *Collection) VerifyJob() httprouter.Handle {
	schema := inputSchemasCompiled["VerifyJob"]

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
			errors.WriteHTTPBadBodySchema("VerifyJob", w, result.Errors())
			return
		}

		var body VerifyRequest
		if err := json.Unmarshal(payload, &body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}

		res, err := d.Verifier.Verify(req.Context(), requestID, verify.Request{
			ChannelName:  body.ChannelName,
			VideoIDs:     body.VideoIDs,
			ManualPaths:  body.ManualPaths,
			IncludeIntro: body.IncludeIntro,
			IncludeOutro: body.IncludeOutro,
			EnableLogos:  body.EnableLogos,
		})
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "verification failed", err)
			return
		}

		writeJSON(w, requestID, http.StatusOK, VerifyResponse{
			DefaultLogoPath: res.DefaultLogoPath,
			TotalDuration:   res.TotalDuration,
			Items:           toVerifyItemResponses(res.Items),
		})
	}
}

// VerifyPathRequest is the body of `POST /jobs/verify-path`.
type VerifyPathRequest struct {
	Path string `json:"path"`
}

// VerifyPathResponse is the body of `POST /jobs/verify-path`'s response.
type VerifyPathResponse struct {
	PathAvailable bool    `json:"path_available"`
	Duration      float64 `json:"duration"`
	Resolution    string  `json:"resolution,omitempty"`
	Is4K          bool    `json:"is_4k"`
}

// VerifyPath handles `POST /jobs/verify-path`: a single-path
// availability check with no channel or catalog context.
func (d *Collection) VerifyPath() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)

		var body VerifyPathRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}
		if body.Path == "" {
			errors.WriteHTTPBadRequest(w, "path is required", nil)
			return
		}

		res := d.Verifier.VerifyPath(req.Context(), requestID, body.Path)
		writeJSON(w, requestID, http.StatusOK, VerifyPathResponse{
			PathAvailable: res.PathAvailable,
			Duration:      res.Duration,
			Resolution:    res.Resolution,
			Is4K:          res.Is4K,
		})
	}
}

// RevalidateRequest is the body of `POST /jobs/revalidate`: a caller-edited
// item list to re-check.
type RevalidateRequest struct {
	Items []VerifyItemResponse `json:"items"`
}

// Revalidate handles `POST /jobs/revalidate`.
func (d *Collection) Revalidate() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)

		var body RevalidateRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}

		items := make([]verify.Item, len(body.Items))
		for i, it := range body.Items {
			items[i] = verify.Item{
				Position: it.Position,
				ItemType: it.ItemType,
				VideoID:  it.VideoID,
				Title:    it.Title,
				Path:     it.Path,
				LogoPath: it.LogoPath,
			}
		}

		res := d.Verifier.Revalidate(req.Context(), requestID, items)
		writeJSON(w, requestID, http.StatusOK, VerifyResponse{
			DefaultLogoPath: res.DefaultLogoPath,
			TotalDuration:   res.TotalDuration,
			Items:           toVerifyItemResponses(res.Items),
		})
	}
}
