// Package metrics provides the HTTP API handler exposing update flow metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler is an HTTP handle for serving metric data.
type Handler struct {
	Path   string
	Handle http.HandlerFunc
}

// New creates a handler serving the given gatherer in the Prometheus text format.
// A nil gatherer serves the default registry.
func New(gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	return &Handler{
		Path:   "GET /v1/metrics",
		Handle: handler.ServeHTTP,
	}
}
