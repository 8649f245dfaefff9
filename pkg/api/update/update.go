package update

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/flow"
)

// ResumeHandler triggers a foreground resume.
type ResumeHandler struct {
	Path string
	fn   func(ctx context.Context)
}

// NewResume creates the resume handler.
//
// Parameters:
//   - resumeFn: Function forwarding the resume, usually lifecycle.Bridge.HostResumed.
//
// Returns:
//   - *ResumeHandler: Initialized handler.
func NewResume(resumeFn func(ctx context.Context)) *ResumeHandler {
	return &ResumeHandler{Path: "POST /v1/resume", fn: resumeFn}
}

// Handle processes resume requests and answers 202 Accepted.
func (h *ResumeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Info("Received HTTP API resume request")

	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		logrus.WithError(err).Debug("Failed to read request body")
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)

		return
	}

	// The resume outlives the request; its re-query runs on the controller.
	h.fn(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":    true,
		"api_version": "v1",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// FinalizeHandler applies a downloaded update.
type FinalizeHandler struct {
	Path string
	fn   func(ctx context.Context) error
	lock chan bool
}

// NewFinalize creates the finalize handler.
//
// Parameters:
//   - finalizeFn: Function applying the update, usually flow.Controller.FinalizeUpdate.
//   - finalizeLock: Optional lock channel; if nil, a new one is created.
//
// Returns:
//   - *FinalizeHandler: Initialized handler.
func NewFinalize(finalizeFn func(ctx context.Context) error, finalizeLock chan bool) *FinalizeHandler {
	lock := finalizeLock
	if lock == nil {
		lock = make(chan bool, 1)
		lock <- true

		logrus.Debug("Initialized new finalize lock channel")
	}

	return &FinalizeHandler{Path: "POST /v1/finalize", fn: finalizeFn, lock: lock}
}

// Handle processes finalize requests.
//
// It answers 200 once the update was applied, 409 if nothing is downloaded yet,
// 410 once the flow was torn down, 429 while another finalize runs and 500 if
// the service failed.
func (h *FinalizeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Info("Received HTTP API finalize request")

	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		logrus.WithError(err).Debug("Failed to read request body")
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)

		return
	}

	select {
	case chanValue := <-h.lock:
		defer func() { h.lock <- chanValue }()
	default:
		logrus.Debug("Skipped finalize, another finalize already in progress")
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, errorBody("another finalize is already running"))

		return
	}

	startTime := time.Now()
	err := h.fn(r.Context())
	duration := time.Since(startTime)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"finalized": true,
			"timing": map[string]any{
				"duration_ms": duration.Milliseconds(),
				"duration":    duration.String(),
			},
			"api_version": "v1",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	case errors.Is(err, flow.ErrNotDownloaded):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, flow.ErrDestroyed):
		writeJSON(w, http.StatusGone, errorBody(err.Error()))
	default:
		logrus.WithError(err).Error("Finalize request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

func errorBody(message string) map[string]any {
	return map[string]any{
		"error":       message,
		"api_version": "v1",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(buf.Bytes()); err != nil {
		logrus.WithError(err).Error("Failed to write response")
	}
}
