// Package update provides the HTTP API handlers acting on the update flow.
//
// Endpoints:
//   - POST /v1/resume: forwards a foreground resume, as if the host regained focus.
//   - POST /v1/finalize: applies a downloaded update; concurrent requests get 429.
package update
