package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/eleven-am/compilation-orchestrator/errors"
	"github.com/eleven-am/compilation-orchestrator/requests"
)

// CacheStatusResponse is the body of `GET /admin/cache-status`, carried
// from the original's api/routes/admin.py.
type CacheStatusResponse struct {
	Cached    bool    `json:"cached"`
	AgeSecs   float64 `json:"age_seconds"`
	ChannelsN int     `json:"channels_count"`
}

// CacheStatus handles `GET /admin/cache-status`.
func (d *Collection) CacheStatus() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		cached, age, count := d.Warehouse.ChannelsCacheStatus()
		writeJSON(w, requestID, http.StatusOK, CacheStatusResponse{
			Cached:    cached,
			AgeSecs:   age.Seconds(),
			ChannelsN: count,
		})
	}
}

// ClearChannelsCache handles `POST /admin/clear-channels-cache`.
func (d *Collection) ClearChannelsCache() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		d.Warehouse.ClearChannelsCache()
		writeJSON(w, requestID, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

// ListChannels handles `GET /admin/channels`.
func (d *Collection) ListChannels() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		channels, err := d.Warehouse.AllChannels(req.Context())
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to list channels", err)
			return
		}
		writeJSON(w, requestID, http.StatusOK, channels)
	}
}
