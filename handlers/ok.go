package handlers

import (
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/eleven-am/compilation-orchestrator/config"
)

func (d *Collection) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if _, err := io.WriteString(w, "OK"); err != nil {
			_ = config.Logger.Log("error", "Failed to write HTTP response for "+req.URL.RawPath)
		}
	}
}
