package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/fpang/returns-docintel/internal/metrics"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// withMetrics emits per-request EMF metrics: RequestLatencyMs and
// RequestCount with an Endpoint dimension.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		metrics.New().
			Dimension("Endpoint", normalizeEndpoint(r.URL.Path)).
			Timing("RequestLatencyMs", start).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", sr.statusCode).
			Property("path", r.URL.Path).
			Flush()
	})
}

// normalizeEndpoint maps request paths to low-cardinality endpoint names to
// avoid creating excessive CloudWatch metric dimensions.
func normalizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/documents/analyses/"):
		return "/api/documents/analyses/{id}"
	case path == "/api/documents/analyze",
		path == "/api/documents/pending-review",
		path == "/api/health":
		return path
	default:
		return "other"
	}
}
