// Package myhttp wraps http.ServeMux with the tracing, metrics, profiling
// and logging middleware shared by every route of the capture server.
package myhttp

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
)

// NewServerMux records the duration of every route registered through the
// *WithMiddleware methods in httpRequestsDurationMicroSeconds.
func NewServerMux(logger *slog.Logger, httpRequestsDurationMicroSeconds metric.Int64Histogram) *myRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &myRouter{
		ServeMux:                         http.NewServeMux(),
		logger:                           logger,
		httpRequestsDurationMicroSeconds: httpRequestsDurationMicroSeconds,
	}
}
