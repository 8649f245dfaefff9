// Package httpservice implements types.UpdateService against an update-delivery
// endpoint speaking JSON over HTTP.
//
// Endpoints, relative to the base URL:
//   - GET  /v1/update-info: current update metadata.
//   - POST /v1/execute: request execution of a strategy for the attempt token.
//   - GET  /v1/install-state: current install state, polled for listeners.
//   - POST /v1/finalize: apply a downloaded update.
//
// When the running version is known, a reported release that is not newer is
// treated as no update.
package httpservice
