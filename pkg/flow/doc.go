// Package flow implements the update flow controller.
//
// A Controller owns one update attempt. Start registers the install state
// listener (silent preference only), queries the update service, applies the
// policy and, when an update is due, asks the service to execute the chosen
// strategy. Progress and install status events then move the attempt through
// downloading and downloaded until the user finalizes it or the host tears
// the controller down.
//
// Controllers are created through a Guard, which keeps at most one live
// controller per process.
//
// Key components:
//   - Guard: Per-process factory of controllers.
//   - Controller: State machine of one attempt.
//   - State: Position of the controller in the attempt.
//   - Snapshot: Read-only copy of the controller state.
package flow
