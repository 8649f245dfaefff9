// Package policy decides which update strategy, if any, applies to a pending update.
// It is a pure function of the service metadata and the caller's configuration.
package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Reason explains why a Decision was taken.
type Reason string

// Decision reasons.
const (
	ReasonNotAvailable    Reason = "update not available"
	ReasonPreferred       Reason = "preferred strategy allowed"
	ReasonStale           Reason = "staleness threshold reached"
	ReasonDisallowed      Reason = "strategy not allowed"
	ReasonStaleDisallowed Reason = "staleness threshold reached but blocking not allowed"
)

// Decision is the outcome of Decide: either no action or execution of one strategy.
type Decision struct {
	Execute  bool
	Strategy types.Strategy // Set only when Execute is true.
	Reason   Reason
}

// NoAction returns a decision that leaves the host untouched.
func NoAction(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Execute returns a decision to run strategy s.
func Execute(s types.Strategy, reason Reason) Decision {
	return Decision{Execute: true, Strategy: s, Reason: reason}
}

// Disallowed reports whether the decision was NoAction because the service refused the strategy.
func (d Decision) Disallowed() bool {
	return !d.Execute && (d.Reason == ReasonDisallowed || d.Reason == ReasonStaleDisallowed)
}

// String renders the decision for logs.
func (d Decision) String() string {
	if !d.Execute {
		return "no action (" + string(d.Reason) + ")"
	}

	return "execute " + d.Strategy.String() + " (" + string(d.Reason) + ")"
}

// Decide maps metadata and configuration to a decision.
//
// Rules are evaluated in order:
//  1. Anything but an available update yields no action.
//  2. A blocking preference runs blocking if allowed.
//  3. A silent preference escalates to blocking once the update has been pending
//     for at least the configured threshold of days.
//  4. Otherwise silent runs if allowed.
//
// Parameters:
//   - metadata: Snapshot returned by the update service.
//   - config: Caller configuration.
//
// Returns:
//   - Decision: The chosen action.
func Decide(metadata types.UpdateMetadata, config types.UpdateConfiguration) Decision {
	clog := logrus.WithFields(logrus.Fields{
		"availability": metadata.Availability.String(),
		"preference":   config.StrategyPreference.String(),
	})

	if metadata.Availability != types.AvailabilityAvailable {
		clog.Debug("No update available")

		return NoAction(ReasonNotAvailable)
	}

	if config.StrategyPreference == types.StrategyBlocking {
		return allowOrRefuse(clog, metadata, types.StrategyBlocking, ReasonPreferred, ReasonDisallowed)
	}

	if isStale(metadata, config) {
		clog.WithFields(logrus.Fields{
			"staleness_days": metadata.StalenessString(),
			"threshold_days": config.ThresholdString(),
		}).Info("Pending update reached staleness threshold, escalating to blocking")

		return allowOrRefuse(clog, metadata, types.StrategyBlocking, ReasonStale, ReasonStaleDisallowed)
	}

	clog.WithFields(logrus.Fields{
		"staleness_days": metadata.StalenessString(),
		"threshold_days": config.ThresholdString(),
	}).Debug("Pending update below staleness threshold")

	return allowOrRefuse(clog, metadata, config.StrategyPreference, ReasonPreferred, ReasonDisallowed)
}

// isStale reports whether escalation applies. The threshold is inclusive.
func isStale(metadata types.UpdateMetadata, config types.UpdateConfiguration) bool {
	if !config.EscalationEnabled() || metadata.StalenessDays == nil {
		return false
	}

	return *metadata.StalenessDays >= *config.StalenessThresholdDays
}

func allowOrRefuse(
	clog *logrus.Entry,
	metadata types.UpdateMetadata,
	strategy types.Strategy,
	allowed Reason,
	refused Reason,
) Decision {
	clog = clog.WithField("strategy", strategy.String())

	if metadata.IsStrategyAllowed(strategy) {
		clog.Debug("Strategy allowed by update service")

		return Execute(strategy, allowed)
	}

	clog.Info("Strategy not allowed by update service")

	return NoAction(refused)
}
