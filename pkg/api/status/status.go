// Package status provides the HTTP API handler reporting the update flow state.
package status

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/flow"
)

// Source returns the controller to report on, or nil when none is live.
type Source func() *flow.Controller

// Handler serves GET /v1/status.
type Handler struct {
	Path   string
	source Source
}

// New creates a status handler.
//
// Parameters:
//   - source: Lookup of the live controller, usually flow.Guard.Current.
//
// Returns:
//   - *Handler: Initialized handler.
func New(source Source) *Handler {
	return &Handler{
		Path:   "GET /v1/status",
		source: source,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Debug("Received status request")

	response := map[string]any{
		"api_version": "v1",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	if controller := h.source(); controller != nil {
		response["flow"] = controller.Snapshot()
	} else {
		response["flow"] = nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(response); err != nil {
		logrus.WithError(err).Error("Failed to encode status response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(buf.Bytes()); err != nil {
		logrus.WithError(err).Error("Failed to write status response")
	}
}
