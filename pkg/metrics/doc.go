// Package metrics provides tracking and exposure of update flow metrics.
// It integrates with Prometheus to monitor attempts, decisions, download progress and failures.
//
// Key components:
//   - Metrics: Handles metric queuing and updates.
//   - Metric: One queued data point.
//
// Usage example:
//
//	m := metrics.Default()
//	m.Register(&metrics.Metric{Event: metrics.EventDecision, Label: "silent"})
//	if !m.QueueIsEmpty() {
//	    logrus.Debug("Metrics queued")
//	}
//
// The package uses Prometheus for metrics exposure; the flow controller is its only producer.
package metrics
