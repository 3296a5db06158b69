package middleware

import (
	"net/http"
	"strconv"
	"time"

	"mastodon-to-sqlite/internal/metrics"
)

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Instrument records request count and latency for an endpoint of the
// metrics server
func Instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.statusCode)
		metrics.HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	})
}
