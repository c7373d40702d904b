package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/notevault/internal/logutil"
	"github.com/kuitang/notevault/internal/obs"
)

// APIKeyHeader is the header carrying the caller's key.
const APIKeyHeader = "X-API-Key"

// requireAPIKey rejects requests whose key header does not match the
// configured secret. Comparison is constant-time over sha256 digests.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied := r.Header.Get(APIKeyHeader)
		if supplied == "" || !keysEqual(supplied, h.apiKey) {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func keysEqual(supplied, configured string) bool {
	suppliedHash := sha256.Sum256([]byte(supplied))
	configuredHash := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(suppliedHash[:], configuredHash[:]) == 1
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogging assigns a request id, stores it in the context, and logs
// each request with redacted headers.
func RequestLogging(next http.Handler) http.Handler {
	log := obs.Pkg("api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := obs.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		log.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"headers", logutil.FormatHeadersForLog(r.Header),
		)
	})
}

// Recovery converts panics into a 500 response instead of killing the
// connection.
func Recovery(next http.Handler) http.Handler {
	log := obs.Pkg("api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
