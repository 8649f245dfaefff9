package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metrics *Metrics

// Event identifies what a Metric records.
type Event int

// Recorded events.
const (
	EventAttempt Event = iota + 1 // An attempt started checking.
	EventDecision                 // Policy produced a decision; Label is the strategy or "none".
	EventProgress                 // A progress event was forwarded.
	EventDownloaded               // The update finished downloading.
	EventCompleted                // The update was installed or finalized.
	EventFailure                  // The attempt failed; Label is the failure kind.
	EventResume                   // The host regained foreground.
	EventState                    // The controller entered state Label.
)

// Metric is one data point queued by the flow controller.
type Metric struct {
	Event           Event
	Label           string
	BytesDownloaded uint64 // Set for EventProgress.
	TotalBytes      uint64 // Set for EventProgress.
}

// Metrics handles processing and exposing update flow metrics.
type Metrics struct {
	channel         chan *Metric           // Channel for queuing metrics.
	attempts        prometheus.Counter     // Counter for started attempts.
	decisions       *prometheus.CounterVec // Counter for decisions by strategy.
	progress        prometheus.Counter     // Counter for forwarded progress events.
	bytesDownloaded prometheus.Gauge       // Gauge for bytes downloaded in the current attempt.
	totalBytes      prometheus.Gauge       // Gauge for total bytes of the current attempt.
	downloaded      prometheus.Counter     // Counter for finished downloads.
	completed       prometheus.Counter     // Counter for installed updates.
	failures        *prometheus.CounterVec // Counter for failures by kind.
	resumes         prometheus.Counter     // Counter for foreground resumes.
	state           *prometheus.GaugeVec   // Gauge set to 1 for the current state.
	dropped         prometheus.Counter     // Counter for dropped metrics.
	stopCh          chan struct{}          // Channel for shutdown signaling.
	shutdownOnce    sync.Once              // Ensures shutdown is called only once.
	mu              sync.Mutex             // Guards currentState.
	currentState    string                 // Last state label set to 1.
	//nolint:containedctx
	ctx    context.Context    // Context for cancellation.
	cancel context.CancelFunc // Cancel function for the context.
}

// NewWithRegistry creates a new Metrics handler with a custom Prometheus registry.
//
// Parameters:
//   - registry: Prometheus registerer to use for metric registration.
//
// Returns:
//   - (*Metrics, error): Metrics handler with Prometheus metrics and goroutine, or an error if registration fails.
func NewWithRegistry(registry prometheus.Registerer) (*Metrics, error) {
	// channelBufferSize sets the metrics channel capacity.
	const channelBufferSize = 64

	ctx, cancel := context.WithCancel(context.Background())

	metrics := &Metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updateflow_attempts_total",
			Help: "Number of update attempts started",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "updateflow_decisions_total",
			Help: "Number of policy decisions by chosen strategy",
		}, []string{"strategy"}),
		progress: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updateflow_progress_events_total",
			Help: "Number of download progress events forwarded to the observer",
		}),
		bytesDownloaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "updateflow_download_bytes",
			Help: "Bytes downloaded in the current attempt",
		}),
		totalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "updateflow_download_total_bytes",
			Help: "Total bytes of the update in the current attempt",
		}),
		downloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updateflow_downloads_completed_total",
			Help: "Number of updates fully downloaded",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updateflow_updates_installed_total",
			Help: "Number of updates installed",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "updateflow_failures_total",
			Help: "Number of failed attempts by failure kind",
		}, []string{"kind"}),
		resumes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updateflow_resumes_total",
			Help: "Number of host foreground resumes handled",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "updateflow_state",
			Help: "Current update flow state, 1 for the active state",
		}, []string{"state"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updateflow_metrics_dropped_total",
			Help: "Number of metrics dropped due to full channel",
		}),
		channel: make(chan *Metric, channelBufferSize),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Register the metrics with the provided registry.
	// If a metric is already registered, return an error to avoid duplicate collectors.
	metricsList := []prometheus.Collector{
		metrics.attempts,
		metrics.decisions,
		metrics.progress,
		metrics.bytesDownloaded,
		metrics.totalBytes,
		metrics.downloaded,
		metrics.completed,
		metrics.failures,
		metrics.resumes,
		metrics.state,
		metrics.dropped,
	}
	for _, m := range metricsList {
		err := registry.Register(m)
		if err != nil {
			alreadyRegisteredError := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, alreadyRegisteredError) {
				cancel()

				return nil, fmt.Errorf("failed to register metric: %w", err)
			}
		}
	}

	go metrics.HandleUpdate()

	return metrics, nil
}

// QueueIsEmpty checks if the metrics channel is empty.
//
// Returns:
//   - bool: True if empty, false otherwise.
func (m *Metrics) QueueIsEmpty() bool {
	return len(m.channel) == 0
}

// Register attempts to enqueue a metric for processing.
// If the channel is full, the metric is dropped and the dropped counter is incremented.
//
// Parameters:
//   - metric: Metric to register.
func (m *Metrics) Register(metric *Metric) {
	if m == nil || metric == nil {
		return
	}

	select {
	case m.channel <- metric:
	default:
		m.dropped.Inc()
	}
}

// Default initializes or returns the process-wide Metrics handler bound to the default registry.
// It panics on registration failure.
//
// Returns:
//   - *Metrics: Metrics handler with Prometheus metrics and goroutine.
func Default() *Metrics {
	if metrics != nil {
		return metrics
	}

	var err error

	metrics, err = NewWithRegistry(prometheus.DefaultRegisterer)
	if err != nil {
		panic(err)
	}

	return metrics
}

// Shutdown gracefully stops the metrics processing goroutine.
// This method is idempotent and can be called multiple times safely.
func (m *Metrics) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		m.cancel()
	})
}

// HandleUpdate processes metrics from the channel.
func (m *Metrics) HandleUpdate() {
	for {
		select {
		case change, ok := <-m.channel:
			if !ok {
				return
			}

			m.apply(change)
		case <-m.stopCh:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// noneLabel marks a decision with no strategy.
const noneLabel = "none"

func (m *Metrics) apply(change *Metric) {
	switch change.Event {
	case EventAttempt:
		m.attempts.Inc()
		m.bytesDownloaded.Set(0)
		m.totalBytes.Set(0)
	case EventDecision:
		label := change.Label
		if label == "" {
			label = noneLabel
		}

		m.decisions.WithLabelValues(label).Inc()
	case EventProgress:
		m.progress.Inc()
		m.bytesDownloaded.Set(float64(change.BytesDownloaded))
		m.totalBytes.Set(float64(change.TotalBytes))
	case EventDownloaded:
		m.downloaded.Inc()
	case EventCompleted:
		m.completed.Inc()
	case EventFailure:
		m.failures.WithLabelValues(change.Label).Inc()
	case EventResume:
		m.resumes.Inc()
	case EventState:
		m.setState(change.Label)
	}
}

func (m *Metrics) setState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentState != "" {
		m.state.WithLabelValues(m.currentState).Set(0)
	}

	m.state.WithLabelValues(state).Set(1)
	m.currentState = state
}
