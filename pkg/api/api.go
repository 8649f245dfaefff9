package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// HealthPath is the unauthenticated liveness endpoint.
const HealthPath = "/health"

// Errors for API server startup.
var (
	// errMissingToken indicates the API was started without a token.
	errMissingToken = errors.New("API token is empty or unset")
)

// API represents the HTTP API server.
type API struct {
	Token      string
	Addr       string
	registered bool
	mux        *http.ServeMux // Custom mux to avoid global collisions
	server     HTTPServer     // Optional injected server for testing
}

// New is a factory function creating a new API instance.
// The server parameter is optional and allows dependency injection for testing.
func New(token, addr string, server ...HTTPServer) *API {
	var injectedServer HTTPServer
	if len(server) > 0 {
		injectedServer = server[0]
	}

	api := &API{
		Token:  token,
		Addr:   addr,
		mux:    http.NewServeMux(),
		server: injectedServer,
	}

	api.mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	logrus.WithField("addr", api.Addr).Debug("Initialized new API instance")

	return api
}

// GetAPIAddr formats the API address string based on host and port.
func GetAPIAddr(host, port string) string {
	if host != "" && strings.Contains(host, ":") && net.ParseIP(host) != nil {
		return "[" + host + "]:" + port
	}

	return host + ":" + port
}

// Handler returns the mux serving all registered endpoints.
func (a *API) Handler() http.Handler {
	return a.mux
}

// RegisterFunc registers a token-protected HTTP handler function for the given pattern.
func (a *API) RegisterFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	a.mux.Handle(pattern, a.RequireToken(handler))
	a.registered = true
}

// RegisterHandler registers a token-protected HTTP handler for the given pattern.
func (a *API) RegisterHandler(pattern string, handler http.Handler) {
	a.mux.Handle(pattern, a.RequireToken(handler.ServeHTTP))
	a.registered = true
}

// Start starts the HTTP API server.
// If block is true, it runs in the foreground until ctx is cancelled.
// If block is false, it runs in the background and shuts down when ctx is cancelled.
//
// Returns:
//   - error: errMissingToken without a token, or the server error when blocking.
func (a *API) Start(ctx context.Context, block bool) error {
	if !a.registered {
		logrus.Info("No handlers registered, skipping API start")

		return nil
	}

	if a.Token == "" {
		return errMissingToken
	}

	server := a.server
	if server == nil {
		server = &http.Server{
			Addr:              a.Addr,
			Handler:           a.mux,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}
	}

	logrus.WithField("addr", a.Addr).Info("Starting HTTP API server")

	if block {
		return RunHTTPServer(ctx, server)
	}

	go func() {
		if err := RunHTTPServer(ctx, server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server failed")
		}
	}()

	return nil
}

// RequireToken wraps a handler function with bearer token authentication.
func (a *API) RequireToken(handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")

		token, found := strings.CutPrefix(auth, "Bearer ")
		if !found || a.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.Token)) != 1 {
			logrus.WithField("path", r.URL.Path).Debug("Rejected unauthorized API request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)

			return
		}

		handler(w, r)
	}
}

// HTTPServer interface for RunHTTPServer.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// RunHTTPServer starts the HTTP server and handles graceful shutdown.
func RunHTTPServer(ctx context.Context, server HTTPServer) error {
	errChan := make(chan error, 1)

	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		return nil
	}
}
