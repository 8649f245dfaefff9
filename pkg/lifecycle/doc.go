// Package lifecycle translates host lifecycle signals into update flow controller calls.
// It owns the current host handle and passes it to every controller operation that
// needs one.
//
// Key components:
//   - Bridge: Holds the controller and the attached host.
//   - Controller: The subset of the flow controller driven by the host lifecycle.
//
// Usage example:
//
//	bridge := lifecycle.NewBridge(controller, host)
//	if err := bridge.HostStarted(ctx); err != nil {
//	    logrus.WithError(err).Error("Failed to start update flow")
//	}
//	bridge.HostResumed(ctx)
//	bridge.HostDestroyed()
//
// Once destroyed, the handle reports itself unavailable, so strategy requests still
// in flight fail with types.ErrHostUnavailable.
package lifecycle
