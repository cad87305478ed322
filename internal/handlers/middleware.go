package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"site-registry/pkg/logging"
)

// RequestIDHeader carries the request identifier in and out of the API
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an identifier that the logger attaches
// to each entry written while serving it. A client-supplied header is reused.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
