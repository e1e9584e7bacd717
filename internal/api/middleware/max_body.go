package middleware

import (
	"net/http"

	"github.com/askbase/askbase/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. A declared Content-Length
// over the limit is rejected up front with 413; chunked bodies are capped by
// a MaxBytesReader so the handler fails on read instead.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			// ContentLength is -1 when unknown, which never trips this check.
			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body exceeds the upload limit")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
