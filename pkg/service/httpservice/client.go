package httpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// UserAgent identifies the client to the update service. It can be set at build time.
var UserAgent = "updateflow/unknown"

// Endpoint paths relative to the base URL.
const (
	pathUpdateInfo   = "/v1/update-info"
	pathExecute      = "/v1/execute"
	pathInstallState = "/v1/install-state"
	pathFinalize     = "/v1/finalize"
)

// DefaultPollInterval is the install state polling period when none is configured.
const DefaultPollInterval = 2 * time.Second

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// Errors for update service requests.
var (
	// errInvalidBaseURL indicates the configured service URL cannot be used.
	errInvalidBaseURL = errors.New("invalid update service URL")
	// errFailedCreateRequest indicates a failure to construct an HTTP request.
	errFailedCreateRequest = errors.New("failed to create request")
	// errFailedExecuteRequest indicates a failure to execute an HTTP request.
	errFailedExecuteRequest = errors.New("failed to execute request")
	// errUnexpectedStatus indicates a non-2xx response.
	errUnexpectedStatus = errors.New("unexpected response status")
	// errFailedDecodeResponse indicates a malformed response body.
	errFailedDecodeResponse = errors.New("failed to decode response")
	// errInvalidCurrentVersion indicates the running version is not a valid version string.
	errInvalidCurrentVersion = errors.New("invalid current version")
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithPollInterval sets the install state polling period.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithCurrentVersion sets the running version used to discard releases that are not newer.
func WithCurrentVersion(version *goversion.Version) Option {
	return func(c *Client) {
		c.currentVersion = version
	}
}

// Client is a types.UpdateService backed by an HTTP endpoint.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	pollInterval   time.Duration
	currentVersion *goversion.Version
}

var _ types.UpdateService = (*Client)(nil)

// New creates a client for the service at baseURL.
//
// Parameters:
//   - baseURL: Absolute http(s) URL of the update service.
//   - opts: Optional settings.
//
// Returns:
//   - *Client: Configured client.
//   - error: Non-nil if baseURL is not an absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBaseURL, err)
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidBaseURL, baseURL)
	}

	client := &Client{
		baseURL:      parsed,
		http:         &http.Client{Timeout: 30 * time.Second},
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ParseCurrentVersion parses the running version. An empty string yields nil.
func ParseCurrentVersion(value string) (*goversion.Version, error) {
	if value == "" {
		return nil, nil //nolint:nilnil
	}

	version, err := goversion.NewVersion(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidCurrentVersion, err)
	}

	return version, nil
}

// QueryUpdateInfo implements types.UpdateService.
func (c *Client) QueryUpdateInfo(ctx context.Context) (types.UpdateMetadata, error) {
	var info updateInfo
	if err := c.do(ctx, http.MethodGet, pathUpdateInfo, nil, &info); err != nil {
		return types.UpdateMetadata{}, err
	}

	metadata, err := info.toMetadata()
	if err != nil {
		return types.UpdateMetadata{}, fmt.Errorf("%w: %w", errFailedDecodeResponse, err)
	}

	return c.filterVersion(metadata), nil
}

// filterVersion downgrades a release that is not newer than the running version to no update.
func (c *Client) filterVersion(metadata types.UpdateMetadata) types.UpdateMetadata {
	if c.currentVersion == nil || metadata.AvailableVersion == "" ||
		metadata.Availability != types.AvailabilityAvailable {
		return metadata
	}

	available, err := goversion.NewVersion(metadata.AvailableVersion)
	if err != nil {
		// Left for query validation to reject.
		return metadata
	}

	if available.GreaterThan(c.currentVersion) {
		return metadata
	}

	logrus.WithFields(logrus.Fields{
		"current_version":   c.currentVersion.String(),
		"available_version": available.String(),
	}).Info("Reported release is not newer than the running version")

	metadata.Availability = types.AvailabilityNoUpdate

	return metadata
}

// ExecuteStrategy implements types.UpdateService.
func (c *Client) ExecuteStrategy(
	ctx context.Context,
	host types.Host,
	metadata types.UpdateMetadata,
	strategy types.Strategy,
	token string,
) error {
	body := executeRequest{
		Strategy: strategy.String(),
		Token:    token,
		Version:  metadata.AvailableVersion,
	}

	if host != nil {
		body.Host = host.Name()
	}

	return c.do(ctx, http.MethodPost, pathExecute, body, nil)
}

// FinalizeInstalledUpdate implements types.UpdateService.
func (c *Client) FinalizeInstalledUpdate(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, pathFinalize, nil, nil)
}

// InstallState fetches the current install state once.
func (c *Client) InstallState(ctx context.Context) (types.InstallState, error) {
	var state installState
	if err := c.do(ctx, http.MethodGet, pathInstallState, nil, &state); err != nil {
		return types.InstallState{}, err
	}

	result, err := state.toInstallState()
	if err != nil {
		return types.InstallState{}, fmt.Errorf("%w: %w", errFailedDecodeResponse, err)
	}

	return result, nil
}

// RegisterProgressListener implements types.UpdateService. The install state is
// polled until the registration is revoked, and fn is called whenever it changes.
func (c *Client) RegisterProgressListener(fn types.InstallStateListener) (types.ListenerRegistration, error) {
	ctx, cancel := context.WithCancel(context.Background())
	registration := &pollRegistration{cancel: cancel, done: make(chan struct{})}

	go c.poll(ctx, fn, registration.done)

	logrus.WithField("interval", c.pollInterval).Debug("Polling install state")

	return registration, nil
}

func (c *Client) poll(ctx context.Context, fn types.InstallStateListener, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var (
		last    types.InstallState
		hasLast bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, err := c.InstallState(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logrus.WithError(err).Debug("Failed to poll install state")
			}

			continue
		}

		if hasLast && state == last {
			continue
		}

		last, hasLast = state, true

		if state.Status == types.InstallStatusUnknown {
			continue
		}

		if ctx.Err() != nil {
			return
		}

		fn(state)
	}
}

// pollRegistration stops a polling goroutine.
type pollRegistration struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unregister stops polling. It does not wait for the poller, so a listener may
// call it from inside its own callback; no state is delivered once it returns.
func (r *pollRegistration) Unregister() {
	r.once.Do(r.cancel)
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	endpoint := c.baseURL.JoinPath(path)

	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %w", errFailedCreateRequest, err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedCreateRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	clog := logrus.WithFields(logrus.Fields{
		"method": method,
		"url":    endpoint.String(),
	})
	clog.Trace("Sending update service request")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedExecuteRequest, err)
	}
	defer res.Body.Close()

	clog.WithField("status", res.Status).Trace("Received update service response")

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s%s", errUnexpectedStatus, res.Status, errorDetail(res.Body))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", errFailedDecodeResponse, err)
	}

	return nil
}

// errorDetail extracts the message of an error response, if any.
func errorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var response errorResponse
	if err := json.Unmarshal(raw, &response); err == nil && response.Error != "" {
		return ": " + response.Error
	}

	return ": " + strings.TrimSpace(string(raw))
}
