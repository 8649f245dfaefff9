package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/metrics"
	"github.com/nicholas-fedor/updateflow/pkg/policy"
	"github.com/nicholas-fedor/updateflow/pkg/progress"
	"github.com/nicholas-fedor/updateflow/pkg/query"
	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Failure kinds reported to metrics.
const (
	failureQuery    = "query"
	failureStrategy = "strategy"
	failureListener = "listener"
	failureInstall  = "install"
)

// Option configures optional collaborators of a Controller.
type Option func(*Controller)

// WithNotifier sets the progress notifier. A fresh notifier is used otherwise.
func WithNotifier(notifier *progress.Notifier) Option {
	return func(c *Controller) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithMetrics sets the metrics sink. Metrics are not recorded otherwise.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTokenSource replaces the correlation token generator.
func WithTokenSource(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newToken = fn
		}
	}
}

// flowState is the bookkeeping of one attempt. It is only touched under Controller.mu.
type flowState struct {
	currentStrategy           *types.Strategy
	hasUpdateAvailable        bool
	hasAnnouncedDownloadStart bool
	isListenerRegistered      bool
	completionAnnounced       bool
}

// pendingResume is a foreground resume received while a query was in flight.
type pendingResume struct {
	//nolint:containedctx
	ctx  context.Context
	host types.Host
}

// Controller is the state machine owning one update attempt.
//
// All transitions run under mu. Calls into the update service are made on
// goroutines without the lock, and their completions are discarded once the
// controller is destroyed. Observer callbacks are queued under the lock and
// delivered in order after it is released, so observers may call back into
// the controller.
type Controller struct {
	mu sync.Mutex

	service  types.UpdateService
	query    *query.Query
	notifier *progress.Notifier
	metrics  *metrics.Metrics
	guard    *Guard
	newToken func() string

	config   types.UpdateConfiguration
	started  bool
	state    State
	flow     flowState
	metadata types.UpdateMetadata
	token    string
	lastErr  error

	registration    types.ListenerRegistration
	requeryInFlight bool
	pending         *pendingResume

	effects  []func()
	draining bool

	inflight sync.WaitGroup
}

func newController(
	service types.UpdateService,
	config types.UpdateConfiguration,
	opts ...Option,
) *Controller {
	c := &Controller{
		service:  service,
		query:    query.New(service),
		notifier: progress.NewNotifier(),
		newToken: uuid.NewString,
		config:   config,
		state:    StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func validateConfiguration(config types.UpdateConfiguration) error {
	if !config.StrategyPreference.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, config.StrategyPreference)
	}

	if config.StalenessThresholdDays != nil && *config.StalenessThresholdDays < 0 {
		return fmt.Errorf("%w: negative staleness threshold %d", ErrInvalidConfiguration, *config.StalenessThresholdDays)
	}

	return nil
}

// SetObserver attaches (or, with nil, detaches) the observer receiving attempt events.
func (c *Controller) SetObserver(observer types.Observer) {
	c.notifier.SetObserver(observer)
}

// SetStrategyPreference changes the preferred strategy before Start.
//
// Returns:
//   - error: ErrConfigurationLocked after Start, ErrInvalidConfiguration for unknown strategies.
func (c *Controller) SetStrategyPreference(strategy types.Strategy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.config
	next.StrategyPreference = strategy

	return c.reconfigureLocked(next)
}

// SetStalenessThresholdDays changes the escalation threshold before Start. Nil disables escalation.
//
// Returns:
//   - error: ErrConfigurationLocked after Start, ErrInvalidConfiguration for negative values.
func (c *Controller) SetStalenessThresholdDays(days *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.config
	next.StalenessThresholdDays = days

	return c.reconfigureLocked(next)
}

func (c *Controller) reconfigureLocked(next types.UpdateConfiguration) error {
	if c.started || c.state == StateDestroyed {
		logrus.WithFields(logrus.Fields{
			"state":      c.state.String(),
			"preference": c.config.StrategyPreference.String(),
		}).Warn("Ignoring configuration change after update flow started")

		return ErrConfigurationLocked
	}

	if err := validateConfiguration(next); err != nil {
		return err
	}

	c.config = next
	logrus.WithFields(logrus.Fields{
		"preference":     next.StrategyPreference.String(),
		"threshold_days": next.ThresholdString(),
	}).Debug("Update configuration set")

	return nil
}

// Configuration returns the active configuration.
func (c *Controller) Configuration() types.UpdateConfiguration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.config
}

// Start begins the attempt: registers the progress listener for a silent
// preference, then queries the service and applies the policy asynchronously.
//
// Parameters:
//   - ctx: Context for the service calls of this attempt.
//   - host: Host handle used to present update UI.
//
// Returns:
//   - error: ErrAlreadyStarted or ErrDestroyed. Failures of the attempt itself are absorbed.
func (c *Controller) Start(ctx context.Context, host types.Host) error {
	c.mu.Lock()

	if c.state == StateDestroyed {
		c.mu.Unlock()

		return ErrDestroyed
	}

	if c.started {
		c.mu.Unlock()

		return ErrAlreadyStarted
	}

	c.started = true
	c.token = c.newToken()

	clog := c.logLocked()
	clog.WithField("threshold_days", c.config.ThresholdString()).Info("Starting update flow")

	if c.config.StrategyPreference == types.StrategySilent {
		registration, err := c.service.RegisterProgressListener(c.handleInstallState)
		if err != nil {
			c.failLocked(fmt.Errorf("%w: %w", ErrListenerRegistration, err), failureListener)
			c.unlockAndFlush()

			return nil
		}

		c.registration = registration
		c.flow.isListenerRegistered = true

		clog.Debug("Registered install state listener")
	}

	c.transitionLocked(StateChecking)
	c.record(&metrics.Metric{Event: metrics.EventAttempt})
	clog.Info("Checking for update")

	results := c.query.Fetch(ctx)

	c.inflight.Add(1)

	go func() {
		defer c.inflight.Done()

		c.onQuerySettled(ctx, host, <-results)
	}()

	c.unlockAndFlush()

	return nil
}

func (c *Controller) onQuerySettled(ctx context.Context, host types.Host, result query.Result) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.state != StateChecking {
		logrus.WithField("state", c.state.String()).Debug("Discarding settled update query")

		return
	}

	clog := c.logLocked()

	if result.Err != nil {
		clog.WithError(result.Err).Warn("Update query failed, treating as no update")
		c.lastErr = result.Err
		c.record(&metrics.Metric{Event: metrics.EventFailure, Label: failureQuery})
		c.transitionLocked(StateNoUpdate)
		c.dropPendingLocked()

		return
	}

	decision := policy.Decide(result.Metadata, c.config)
	c.flow.hasUpdateAvailable = result.Metadata.Availability == types.AvailabilityAvailable
	c.metadata = result.Metadata

	clog = clog.WithField("decision", decision.String())

	if !decision.Execute {
		c.record(&metrics.Metric{Event: metrics.EventDecision})

		if decision.Disallowed() {
			c.lastErr = fmt.Errorf("%w: %s", types.ErrPolicyDisallowed, decision.Reason)
			clog.Info("Update available but strategy not allowed")
		} else {
			clog.Info("No update available")
		}

		c.transitionLocked(StateNoUpdate)
		c.dropPendingLocked()

		return
	}

	strategy := decision.Strategy
	c.flow.currentStrategy = &strategy
	c.record(&metrics.Metric{Event: metrics.EventDecision, Label: strategy.String()})

	clog.WithField("strategy", strategy.String()).Info("Update available, requesting strategy")
	c.transitionLocked(StateExecuting)
	c.dispatchExecuteLocked(ctx, host, false)
}

// dispatchExecuteLocked requests execution of the current strategy off the lock.
func (c *Controller) dispatchExecuteLocked(ctx context.Context, host types.Host, resumed bool) {
	strategy := *c.flow.currentStrategy
	metadata := c.metadata
	token := c.token

	c.inflight.Add(1)

	go func() {
		defer c.inflight.Done()

		err := c.execute(ctx, host, metadata, strategy, token)
		c.onExecuteSettled(err, resumed)
	}()
}

func (c *Controller) execute(
	ctx context.Context,
	host types.Host,
	metadata types.UpdateMetadata,
	strategy types.Strategy,
	token string,
) error {
	if host == nil || !host.Available() {
		return fmt.Errorf("%w: %w", types.ErrStrategyRequest, types.ErrHostUnavailable)
	}

	if err := c.service.ExecuteStrategy(ctx, host, metadata, strategy, token); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStrategyRequest, err)
	}

	return nil
}

func (c *Controller) onExecuteSettled(err error, resumed bool) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.state == StateDestroyed {
		logrus.Debug("Discarding strategy request result after teardown")

		return
	}

	clog := c.logLocked().WithField("resumed", resumed)

	if err != nil {
		clog.WithError(err).Error("Strategy request failed")
		c.failLocked(err, failureStrategy)

		return
	}

	clog.Info("Strategy request dispatched")
	c.drainPendingLocked()
}

// OnProgressEvent processes a download progress event. It is valid only while
// executing or downloading; the first event announces the download start.
func (c *Controller) OnProgressEvent(event types.ProgressEvent) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	c.progressLocked(event)
}

// OnInstallStatusChanged processes an install status pushed by the service.
func (c *Controller) OnInstallStatusChanged(status types.InstallStatus) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	c.installStatusLocked(status)
}

// handleInstallState is the listener registered with the update service.
func (c *Controller) handleInstallState(state types.InstallState) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if state.Status == types.InstallStatusDownloading {
		c.progressLocked(state.Progress())

		return
	}

	c.installStatusLocked(state.Status)
}

func (c *Controller) progressLocked(event types.ProgressEvent) {
	if !c.state.acceptsProgress() {
		logrus.WithFields(logrus.Fields{
			"state":            c.state.String(),
			"bytes_downloaded": event.BytesDownloaded,
		}).Debug("Discarding progress event")

		return
	}

	if c.state == StateExecuting {
		c.transitionLocked(StateDownloading)
	}

	if !c.flow.hasAnnouncedDownloadStart {
		c.flow.hasAnnouncedDownloadStart = true
		c.enqueue(func() { c.notifier.AnnounceDownloadStart() })
	}

	c.record(&metrics.Metric{
		Event:           metrics.EventProgress,
		BytesDownloaded: event.BytesDownloaded,
		TotalBytes:      event.TotalBytes,
	})
	c.enqueue(func() { c.notifier.Notify(event) })
}

func (c *Controller) installStatusLocked(status types.InstallStatus) {
	switch status {
	case types.InstallStatusDownloaded:
		c.downloadedLocked()
	case types.InstallStatusFailed:
		if c.state.acceptsProgress() || c.state == StateDownloaded {
			c.failLocked(ErrInstallFailed, failureInstall)
		}
	case types.InstallStatusInstalled:
		if c.state.resumable() {
			c.completeLocked()
		}
	case types.InstallStatusDownloading:
		// Progress without counters; the next state carrying bytes is forwarded.
	default:
		logrus.WithField("install_status", status.String()).Debug("Ignoring install status")
	}
}

func (c *Controller) downloadedLocked() {
	if !c.state.resumable() {
		logrus.WithField("state", c.state.String()).Debug("Discarding downloaded status")

		return
	}

	if c.state != StateDownloaded {
		c.transitionLocked(StateDownloaded)
		c.record(&metrics.Metric{Event: metrics.EventDownloaded})
	}

	c.announceCompletionLocked()
}

// announceCompletionLocked emits the completion signal unless an observer already received it.
func (c *Controller) announceCompletionLocked() {
	if c.flow.completionAnnounced {
		logrus.Debug("Completion already announced for this attempt")

		return
	}

	c.flow.completionAnnounced = c.notifier.HasEventObserver()
	c.enqueue(func() { c.notifier.AnnounceDownloaded() })
}

func (c *Controller) completeLocked() {
	c.transitionLocked(StateCompleted)
	c.record(&metrics.Metric{Event: metrics.EventCompleted})
	c.logLocked().Info("Update installed")
}

func (c *Controller) failLocked(err error, kind string) {
	c.lastErr = err
	c.transitionLocked(StateFailed)
	c.record(&metrics.Metric{Event: metrics.EventFailure, Label: kind})
	c.dropPendingLocked()
	c.enqueue(func() { c.notifier.AnnounceFailed(err) })
}

// OnForegroundResume handles the host regaining foreground.
//
// While the initial query is in flight the resume is queued and applied once it
// settles. In executing, downloading or downloaded states the service is
// re-queried: a silent strategy re-announces a downloaded update that was not
// yet seen by an observer, a blocking strategy reissues the strategy request of
// an interrupted in-progress update.
//
// Parameters:
//   - ctx: Context for the re-query.
//   - host: Current host handle.
func (c *Controller) OnForegroundResume(ctx context.Context, host types.Host) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	clog := c.logLocked()

	if !c.started {
		clog.Debug("Ignoring foreground resume before start")

		return
	}

	c.record(&metrics.Metric{Event: metrics.EventResume})

	switch {
	case c.state == StateChecking, c.requeryInFlight:
		clog.Debug("Query in flight, queuing foreground resume")
		c.pending = &pendingResume{ctx: ctx, host: host}
	case c.state.resumable():
		c.requeryLocked(ctx, host)
	default:
		clog.Debug("Nothing to resume")
	}
}

func (c *Controller) requeryLocked(ctx context.Context, host types.Host) {
	c.requeryInFlight = true
	c.logLocked().Debug("Re-querying update service after foreground resume")

	results := c.query.Fetch(ctx)

	c.inflight.Add(1)

	go func() {
		defer c.inflight.Done()

		c.onRequerySettled(ctx, host, <-results)
	}()
}

func (c *Controller) onRequerySettled(ctx context.Context, host types.Host, result query.Result) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	c.requeryInFlight = false

	if !c.state.resumable() {
		logrus.WithField("state", c.state.String()).Debug("Discarding resume query result")

		return
	}

	clog := c.logLocked()

	if result.Err != nil {
		clog.WithError(result.Err).Warn("Resume query failed")
		c.lastErr = result.Err
		c.drainPendingLocked()

		return
	}

	metadata := result.Metadata

	switch {
	case metadata.InstallStatus == types.InstallStatusInstalled:
		c.completeLocked()
	case *c.flow.currentStrategy == types.StrategySilent:
		if metadata.InstallStatus == types.InstallStatusDownloaded {
			clog.Info("Update downloaded while host was in background")
			c.downloadedLocked()
		}
	case metadata.Availability == types.AvailabilityInProgress:
		clog.Info("Resuming interrupted blocking update")
		c.metadata = metadata
		c.dispatchExecuteLocked(ctx, host, true)

		return
	}

	c.drainPendingLocked()
}

// drainPendingLocked applies a queued resume.
func (c *Controller) drainPendingLocked() {
	pending := c.pending
	c.pending = nil

	if pending == nil {
		return
	}

	if !c.state.resumable() {
		logrus.WithField("state", c.state.String()).Debug("Dropping queued foreground resume")

		return
	}

	c.requeryLocked(pending.ctx, pending.host)
}

func (c *Controller) dropPendingLocked() {
	if c.pending != nil {
		logrus.WithField("state", c.state.String()).Debug("Dropping queued foreground resume")
		c.pending = nil
	}
}

// FinalizeUpdate applies a downloaded update through the service. It is the
// explicit action behind the user's confirmation of the completion signal.
//
// Returns:
//   - error: ErrNotDownloaded, ErrDestroyed, or the wrapped service error.
func (c *Controller) FinalizeUpdate(ctx context.Context) error {
	c.mu.Lock()

	switch c.state {
	case StateDownloaded:
	case StateDestroyed:
		c.mu.Unlock()

		return ErrDestroyed
	default:
		state := c.state
		c.mu.Unlock()

		return fmt.Errorf("%w: state %s", ErrNotDownloaded, state)
	}

	c.mu.Unlock()

	logrus.Info("Finalizing downloaded update")

	if err := c.service.FinalizeInstalledUpdate(ctx); err != nil {
		logrus.WithError(err).Error("Failed to finalize update")

		return fmt.Errorf("failed to finalize update: %w", err)
	}

	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.state == StateDownloaded {
		c.completeLocked()
	}

	return nil
}

// OnTeardown unregisters the listener, if any, and moves to StateDestroyed.
// Later events are discarded. Calling it again is a no-op.
func (c *Controller) OnTeardown() {
	c.mu.Lock()

	if c.state == StateDestroyed {
		c.mu.Unlock()

		return
	}

	registration := c.registration
	c.registration = nil
	c.flow.isListenerRegistered = false
	c.pending = nil
	c.effects = nil
	c.transitionLocked(StateDestroyed)
	c.mu.Unlock()

	if c.guard != nil {
		c.guard.release(c)
	}

	if registration != nil {
		registration.Unregister()
		logrus.Debug("Unregistered install state listener")
	}

	logrus.Info("Update flow torn down")
}

// Wait blocks until every in-flight service call of the controller has settled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	State                     State                `json:"-"`
	StateName                 string               `json:"state"`
	Strategy                  string               `json:"strategy,omitempty"`
	Preference                string               `json:"preference"`
	Token                     string               `json:"token,omitempty"`
	HasUpdateAvailable        bool                 `json:"has_update_available"`
	HasAnnouncedDownloadStart bool                 `json:"has_announced_download_start"`
	IsListenerRegistered      bool                 `json:"is_listener_registered"`
	CompletionAnnounced       bool                 `json:"completion_announced"`
	Metadata                  types.UpdateMetadata `json:"-"`
	LastError                 string               `json:"last_error,omitempty"`
}

// Snapshot returns the current state of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := Snapshot{
		State:                     c.state,
		StateName:                 c.state.String(),
		Preference:                c.config.StrategyPreference.String(),
		Token:                     c.token,
		HasUpdateAvailable:        c.flow.hasUpdateAvailable,
		HasAnnouncedDownloadStart: c.flow.hasAnnouncedDownloadStart,
		IsListenerRegistered:      c.flow.isListenerRegistered,
		CompletionAnnounced:       c.flow.completionAnnounced,
		Metadata:                  c.metadata,
	}

	if c.flow.currentStrategy != nil {
		snapshot.Strategy = c.flow.currentStrategy.String()
	}

	if c.lastErr != nil {
		snapshot.LastError = c.lastErr.Error()
	}

	return snapshot
}

// Err returns the last absorbed error of the attempt, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// IsDisallowed reports whether the attempt ended because the service refused the strategy.
func (c *Controller) IsDisallowed() bool {
	return errors.Is(c.Err(), types.ErrPolicyDisallowed)
}

func (c *Controller) transitionLocked(next State) {
	if c.state == next {
		return
	}

	logrus.WithFields(logrus.Fields{
		"from": c.state.String(),
		"to":   next.String(),
	}).Debug("Update flow transition")

	c.state = next
	c.record(&metrics.Metric{Event: metrics.EventState, Label: next.String()})
}

func (c *Controller) logLocked() *logrus.Entry {
	fields := logrus.Fields{
		"state":      c.state.String(),
		"preference": c.config.StrategyPreference.String(),
	}

	if c.token != "" {
		fields["attempt"] = c.token
	}

	if c.flow.currentStrategy != nil {
		fields["strategy"] = c.flow.currentStrategy.String()
	}

	return logrus.WithFields(fields)
}

func (c *Controller) record(metric *metrics.Metric) {
	c.metrics.Register(metric)
}

// enqueue schedules an observer callback for delivery after the lock is released.
func (c *Controller) enqueue(fn func()) {
	c.effects = append(c.effects, fn)
}

// unlockAndFlush releases mu and delivers queued callbacks in order. Only one
// goroutine drains at a time; callbacks queued meanwhile join its queue.
// Each callback is taken under mu, so nothing is delivered once the
// controller is destroyed.
func (c *Controller) unlockAndFlush() {
	if c.draining {
		c.mu.Unlock()

		return
	}

	c.draining = true

	for len(c.effects) > 0 && c.state != StateDestroyed {
		fn := c.effects[0]
		c.effects = c.effects[1:]

		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}

	c.effects = nil

	c.draining = false
	c.mu.Unlock()
}
