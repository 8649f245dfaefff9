// Package api provides the HTTP server for the update flow API endpoints.
// Every registered endpoint requires a bearer token; /health is always open.
//
// Key components:
//   - API: Manages server setup and endpoint registration.
//   - RequireToken: Wraps HTTP handlers with token validation.
//
// Usage example:
//
//	httpAPI := api.New("secure-token", ":8080")
//	httpAPI.RegisterHandler(statusHandler.Path, statusHandler)
//	if err := httpAPI.Start(ctx, true); err != nil {
//	    logrus.WithError(err).Error("API start failed")
//	}
package api
