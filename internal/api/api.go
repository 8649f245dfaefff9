// Package api provides application-specific HTTP API orchestration for updateflow, wiring the
// status, resume, finalize and metrics endpoints to the running update flow.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/api"
	metricsAPI "github.com/nicholas-fedor/updateflow/pkg/api/metrics"
	"github.com/nicholas-fedor/updateflow/pkg/api/status"
	"github.com/nicholas-fedor/updateflow/pkg/api/update"
	"github.com/nicholas-fedor/updateflow/pkg/flow"
	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Resumer forwards foreground resumes to the flow, usually a lifecycle.Bridge.
type Resumer interface {
	HostResumed(ctx context.Context)
}

// NewAPI builds the HTTP API for the configured address with every endpoint registered.
//
// Parameters:
//   - config: Run configuration providing the address and token.
//   - guard: Guard owning the live controller.
//   - resumer: Receives resumes posted to the API.
//   - gatherer: Prometheus gatherer served on the metrics endpoint.
//   - lock: Channel serializing host triggers, shared with the resume scheduler.
//   - server: Optional HTTP server replacing the default one.
//
// Returns:
//   - *api.API: API ready to start.
func NewAPI(
	config types.RunConfig,
	guard *flow.Guard,
	resumer Resumer,
	gatherer prometheus.Gatherer,
	lock chan bool,
	server ...api.HTTPServer,
) *api.API {
	if lock == nil {
		lock = make(chan bool, 1)
		lock <- true
	}

	httpAPI := api.New(config.APIToken, api.GetAPIAddr(config.APIHost, config.APIPort), server...)

	statusHandler := status.New(guard.Current)
	httpAPI.RegisterHandler(statusHandler.Path, statusHandler)

	resumeHandler := update.NewResume(func(ctx context.Context) {
		v := <-lock
		defer func() { lock <- v }()

		resumer.HostResumed(ctx)
	})
	httpAPI.RegisterFunc(resumeHandler.Path, resumeHandler.Handle)

	finalizeHandler := update.NewFinalize(func(ctx context.Context) error {
		controller := guard.Current()
		if controller == nil {
			return flow.ErrDestroyed
		}

		return controller.FinalizeUpdate(ctx)
	}, lock)
	httpAPI.RegisterFunc(finalizeHandler.Path, finalizeHandler.Handle)

	metricsHandler := metricsAPI.New(gatherer)
	httpAPI.RegisterFunc(metricsHandler.Path, metricsHandler.Handle)

	return httpAPI
}

// SetupAndStartAPI builds the HTTP API and starts it in the background if enabled by configuration.
// The server shuts down when ctx is cancelled.
//
// Returns:
//   - error: An error if the API fails to start, nil otherwise.
func SetupAndStartAPI(
	ctx context.Context,
	config types.RunConfig,
	guard *flow.Guard,
	resumer Resumer,
	gatherer prometheus.Gatherer,
	lock chan bool,
	server ...api.HTTPServer,
) error {
	if !config.EnableAPI {
		logrus.Debug("HTTP API disabled")

		return nil
	}

	httpAPI := NewAPI(config, guard, resumer, gatherer, lock, server...)

	if err := httpAPI.Start(ctx, false); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("Failed to start API")

		return fmt.Errorf("failed to start HTTP API: %w", err)
	}

	return nil
}
