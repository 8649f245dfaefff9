// Package logging provides functions for logging startup information in updateflow.
// It writes the initial summary of the service connection, the update preferences,
// notification setup, resume schedule and HTTP API status.
package logging

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/updateflow/internal/util"
	"github.com/nicholas-fedor/updateflow/pkg/api"
	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// WriteStartupMessage logs startup information unless --no-startup-message is set.
//
// Parameters:
//   - c: The cobra.Command instance, providing access to flags.
//   - config: The run configuration read from the flags.
//   - nextResume: The first scheduled resume, or zero if no schedule is set.
//   - notifierNames: Names of the configured notification services.
//   - version: The updateflow version string.
func WriteStartupMessage(
	c *cobra.Command,
	config types.RunConfig,
	nextResume time.Time,
	notifierNames []string,
	version string,
) {
	if noStartupMessage, _ := c.PersistentFlags().GetBool("no-startup-message"); noStartupMessage {
		return
	}

	startupLog := logrus.NewEntry(logrus.StandardLogger())

	startupLog.WithField("host", config.HostName).
		Info("updateflow ", version, " using update service ", config.ServiceURL)

	startupLog.WithFields(logrus.Fields{
		"preference":     config.Update.StrategyPreference.String(),
		"threshold_days": config.Update.ThresholdString(),
	}).Info("Update preferences")

	LogNotifierInfo(startupLog, notifierNames)
	LogScheduleInfo(startupLog, c, nextResume)

	if config.EnableAPI {
		startupLog.Info("The HTTP API is enabled at " + api.GetAPIAddr(config.APIHost, config.APIPort) + ".")
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		startupLog.Warn(
			"Trace level enabled: log will include sensitive information as credentials and tokens",
		)
	}
}

// LogNotifierInfo logs the configured notification services, or that there are none.
func LogNotifierInfo(log *logrus.Entry, notifierNames []string) {
	if len(notifierNames) > 0 {
		log.Info("Using notifications: " + strings.Join(notifierNames, ", "))
	} else {
		log.Info("Using no notifications")
	}
}

// LogScheduleInfo logs when the host triggers its next foreground resume.
//
// Parameters:
//   - log: The logrus.Entry used to write the schedule information.
//   - c: The cobra.Command instance, providing access to flags like --run-once.
//   - sched: The first scheduled resume, or zero if no schedule is set.
func LogScheduleInfo(log *logrus.Entry, c *cobra.Command, sched time.Time) {
	runOnce, _ := c.PersistentFlags().GetBool("run-once")
	enableAPI, _ := c.PersistentFlags().GetBool("http-api")

	switch {
	case runOnce:
		log.Info("Running a single check.")
	case !sched.IsZero():
		until := util.FormatDuration(time.Until(sched))
		log.Info("Scheduling first resume: " + sched.Format("2006-01-02 15:04:05 -0700 MST"))
		log.Info("Note that the first resume will be simulated in " + until)
	case enableAPI:
		log.Info("Resumes are triggered by SIGUSR1 or the HTTP API.")
	default:
		log.Info("Resumes are triggered by SIGUSR1.")
	}
}
