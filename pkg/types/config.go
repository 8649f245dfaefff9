package types

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// UpdateConfiguration holds the caller's update preferences.
//
// It is fixed once a flow starts.
type UpdateConfiguration struct {
	// StrategyPreference is the strategy requested by the caller.
	StrategyPreference Strategy
	// StalenessThresholdDays escalates a silent preference to blocking once an update
	// has been pending for at least this many days. Nil or zero disables escalation.
	StalenessThresholdDays *int
}

// DefaultConfiguration returns the silent preference with no staleness threshold.
func DefaultConfiguration() UpdateConfiguration {
	return UpdateConfiguration{StrategyPreference: StrategySilent}
}

// EscalationEnabled reports whether a positive staleness threshold is configured.
func (c UpdateConfiguration) EscalationEnabled() bool {
	return c.StalenessThresholdDays != nil && *c.StalenessThresholdDays > 0
}

// ThresholdString renders the threshold for log fields.
func (c UpdateConfiguration) ThresholdString() string {
	if c.StalenessThresholdDays == nil {
		return "unset"
	}

	return strconv.Itoa(*c.StalenessThresholdDays)
}

// RunConfig encapsulates the configuration parameters for the CLI run loop.
//
// It aggregates command-line flags and derived settings into a single structure passed
// from the root command into the host runner.
type RunConfig struct {
	// Command is the cobra.Command instance representing the executed command.
	Command *cobra.Command
	// Update is the update preference applied to the flow.
	Update UpdateConfiguration
	// ServiceURL is the base URL of the update-delivery service.
	ServiceURL string
	// CurrentVersion is the version the host is running, reported to the service.
	CurrentVersion string
	// HostName identifies the host handle in logs and requests.
	HostName string
	// PollInterval is how often the HTTP adapter polls the install state.
	PollInterval time.Duration
	// ResumeSchedule is a cron spec emitting simulated foreground resumes, empty to disable.
	ResumeSchedule string
	// NotificationURLs are shoutrrr URLs receiving attempt events.
	NotificationURLs []string
	// EnableAPI enables the HTTP status API.
	EnableAPI bool
	// APIToken is the authentication token for HTTP API access.
	APIToken string
	// APIHost is the host to bind the HTTP API to.
	APIHost string
	// APIPort is the port for the HTTP API server.
	APIPort string
	// RunOnce exits after the first attempt settles instead of waiting for signals.
	RunOnce bool
}
