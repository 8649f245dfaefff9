package types

import "context"

// InstallStateListener receives install state changes from the update service.
type InstallStateListener func(state InstallState)

// ListenerRegistration is the revocable capability returned when a listener is registered.
type ListenerRegistration interface {
	// Unregister stops delivery to the listener. Calling it more than once is safe.
	Unregister()
}

// UpdateService is the external update-delivery service.
//
// Implementations may block; callers run these methods off their own lock.
type UpdateService interface {
	// QueryUpdateInfo returns the current metadata for the host.
	QueryUpdateInfo(ctx context.Context) (UpdateMetadata, error)

	// ExecuteStrategy starts, or resumes, the given strategy for a pending update.
	//
	// Parameters:
	//   - ctx: Request context.
	//   - host: Host handle presenting the update UI.
	//   - metadata: Metadata snapshot the request is based on.
	//   - strategy: Strategy to run.
	//   - token: Correlation token of the current attempt.
	//
	// Returns:
	//   - error: Non-nil if the request could not be dispatched.
	ExecuteStrategy(
		ctx context.Context,
		host Host,
		metadata UpdateMetadata,
		strategy Strategy,
		token string,
	) error

	// RegisterProgressListener subscribes fn to install state changes.
	RegisterProgressListener(fn InstallStateListener) (ListenerRegistration, error)

	// FinalizeInstalledUpdate applies a downloaded update.
	FinalizeInstalledUpdate(ctx context.Context) error
}

// Host is the handle of the host application instance that presents update UI.
type Host interface {
	Name() string    // Identifier used in logs.
	Available() bool // False once the host is gone.
}

// Observer receives download progress. It is the consumer-facing callback.
type Observer interface {
	OnDownloadProgress(bytesDownloaded, totalBytes uint64)
}

// EventObserver extends Observer with lifecycle events of an attempt.
type EventObserver interface {
	Observer
	OnDownloadStarted()
	OnDownloadCompleted()
	OnUpdateFailed(err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(bytesDownloaded, totalBytes uint64)

// OnDownloadProgress calls f.
func (f ObserverFunc) OnDownloadProgress(bytesDownloaded, totalBytes uint64) {
	f(bytesDownloaded, totalBytes)
}
