package flow

// State is the position of the controller in the update attempt.
type State int

// Controller states.
const (
	StateIdle State = iota
	StateChecking
	StateNoUpdate
	StateExecuting
	StateDownloading
	StateDownloaded
	StateCompleted
	StateFailed
	StateDestroyed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateNoUpdate:
		return "no_update"
	case StateExecuting:
		return "executing"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition, other than teardown, can happen.
func (s State) Terminal() bool {
	switch s {
	case StateNoUpdate, StateCompleted, StateFailed, StateDestroyed:
		return true
	default:
		return false
	}
}

// resumable reports whether a foreground resume re-queries the service in this state.
func (s State) resumable() bool {
	return s == StateExecuting || s == StateDownloading || s == StateDownloaded
}

// acceptsProgress reports whether progress events are processed in this state.
func (s State) acceptsProgress() bool {
	return s == StateExecuting || s == StateDownloading
}
