package middleware

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/eleven-am/compilation-orchestrator/errors"
)

func IsAuthorized(apiToken string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		authHeader := r.Header.Get("Authorization")

		if authHeader == "" {
			errors.WriteHTTPUnauthorized(w, "No authorization header", errors.UnauthorisedError)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		if token != apiToken {
			errors.WriteHTTPUnauthorized(w, "Invalid Token", errors.UnauthorisedError)
			return
		}

		next(w, r, ps)
	}
}
