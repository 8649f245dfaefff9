package flow

import "errors"

// Errors returned by the controller and its guard. Runtime failures of an attempt are
// absorbed and logged instead; these only report misuse of the API.
var (
	// ErrControllerExists indicates the guard already owns a live controller.
	ErrControllerExists = errors.New("an update flow controller already exists for this process")
	// ErrAlreadyStarted indicates Start was called more than once.
	ErrAlreadyStarted = errors.New("update flow already started")
	// ErrConfigurationLocked indicates a configuration change after Start.
	ErrConfigurationLocked = errors.New("update configuration is fixed once the flow has started")
	// ErrDestroyed indicates the controller was torn down.
	ErrDestroyed = errors.New("update flow destroyed")
	// ErrNotDownloaded indicates finalization was requested before the update was downloaded.
	ErrNotDownloaded = errors.New("update not downloaded")
	// ErrInvalidConfiguration indicates an unknown strategy or a negative staleness threshold.
	ErrInvalidConfiguration = errors.New("invalid update configuration")
	// ErrInstallFailed indicates the update service reported a failed install.
	ErrInstallFailed = errors.New("update service reported install failure")
	// ErrListenerRegistration indicates the progress listener could not be registered.
	ErrListenerRegistration = errors.New("failed to register progress listener")
)
