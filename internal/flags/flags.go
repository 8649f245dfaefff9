// Package flags manages command-line flags and environment variables for updateflow configuration.
package flags

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// defaultPollInterval is the default install state polling period.
const defaultPollInterval = 2 * time.Second

// unsetStalenessDays is the flag value meaning no staleness threshold.
const unsetStalenessDays = -1

// errInvalidLogFormat indicates an invalid log format was specified.
var errInvalidLogFormat = errors.New("invalid log format specified")

// errInvalidLogLevel indicates an invalid log level was specified.
var errInvalidLogLevel = errors.New("invalid log level specified")

// errOpenFileFailed indicates a failure to open a file for reading secrets.
var errOpenFileFailed = errors.New("failed to open secret file")

// errCloseFileFailed indicates a failure to close a file after reading secrets.
var errCloseFileFailed = errors.New("failed to close secret file")

// errReplaceSliceFailed indicates a failure to replace a slice value in a flag.
var errReplaceSliceFailed = errors.New("failed to replace slice value in flag")

// errReadFileFailed indicates a failure to read a file’s contents.
var errReadFileFailed = errors.New("failed to read secret file")

// errSetFlagFailed indicates a failure to read or set a flag’s value.
var errSetFlagFailed = errors.New("failed to set flag value")

// errInvalidFlagName indicates an invalid flag name was provided.
var errInvalidFlagName = errors.New("invalid flag name provided")

// errNotSliceValue indicates a flag does not support slice values.
var errNotSliceValue = errors.New("flag does not support slice values")

// errInvalidStalenessDays indicates a staleness threshold below the unset marker.
var errInvalidStalenessDays = errors.New("staleness days must be -1 (unset) or a non-negative number")

// errMissingServiceURL indicates no update service endpoint was configured.
var errMissingServiceURL = errors.New("no update service URL configured")

// errUnknownPorcelain indicates an unsupported porcelain version.
var errUnknownPorcelain = errors.New("unknown porcelain version")

// errInvalidPollInterval indicates a non-positive polling interval.
var errInvalidPollInterval = errors.New("poll interval must be positive")

// RegisterSystemFlags adds flags that control the update flow and the process to the root command.
func RegisterSystemFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"service-url",
		"u",
		envString("UPDATEFLOW_SERVICE_URL"),
		"Base URL of the update-delivery service")

	flags.StringP(
		"current-version",
		"",
		envString("UPDATEFLOW_CURRENT_VERSION"),
		"Version of the running application; releases that are not newer are ignored")

	flags.StringP(
		"host-name",
		"",
		envString("UPDATEFLOW_HOST_NAME"),
		"Name of the host handle presented to the update service")

	flags.BoolP(
		"blocking",
		"b",
		envBool("UPDATEFLOW_BLOCKING"),
		"Prefer the blocking strategy over the silent background download")

	flags.IntP(
		"staleness-days",
		"",
		envInt("UPDATEFLOW_STALENESS_DAYS"),
		"Escalate a silent update to blocking once it is this many days old (-1 disables)")

	flags.DurationP(
		"poll-interval",
		"",
		envDuration("UPDATEFLOW_POLL_INTERVAL"),
		"Install state polling interval")

	flags.StringP(
		"resume-schedule",
		"s",
		envString("UPDATEFLOW_RESUME_SCHEDULE"),
		"The cron expression which defines when to simulate a host foreground resume")

	flags.BoolP(
		"run-once",
		"R",
		envBool("UPDATEFLOW_RUN_ONCE"),
		"Run a single check and exit once the attempt settles")

	flags.BoolP(
		"no-startup-message",
		"",
		envBool("UPDATEFLOW_NO_STARTUP_MESSAGE"),
		"Prevents updateflow from logging its startup summary")

	flags.BoolP(
		"http-api",
		"",
		envBool("UPDATEFLOW_HTTP_API"),
		"Runs the HTTP API exposing status, resume, finalize and metrics")

	flags.StringP(
		"http-api-host",
		"",
		envString("UPDATEFLOW_HTTP_API_HOST"),
		"Host to bind the HTTP API to (empty for all interfaces)")

	flags.StringP(
		"http-api-port",
		"",
		envString("UPDATEFLOW_HTTP_API_PORT"),
		"Port for the HTTP API")

	flags.StringP(
		"http-api-token",
		"",
		envString("UPDATEFLOW_HTTP_API_TOKEN"),
		"Sets an authentication token for the HTTP API")

	flags.StringP(
		"log-format",
		"l",
		envString("UPDATEFLOW_LOG_FORMAT"),
		"Sets what logging format to use for console output. Possible values: Auto, LogFmt, Pretty, JSON",
	)

	flags.StringP(
		"log-level",
		"",
		envString("UPDATEFLOW_LOG_LEVEL"),
		"The maximum log level that will be written to STDERR. Possible values: panic, fatal, error, warn, info, debug or trace")

	flags.BoolP(
		"debug",
		"d",
		envBool("UPDATEFLOW_DEBUG"),
		"Enable debug mode with verbose logging")

	flags.BoolP(
		"trace",
		"",
		envBool("UPDATEFLOW_TRACE"),
		"Enable trace mode with very verbose logging")

	flags.BoolP(
		"no-color",
		"",
		viper.IsSet("NO_COLOR"),
		"Disable ANSI color escape codes in log output")

	flags.StringP(
		"porcelain",
		"P",
		envString("UPDATEFLOW_PORCELAIN"),
		`Write attempt events to stdout using a stable, machine-readable format. Possible values: "v1"`)
}

// RegisterNotificationFlags adds notification flags to the root command.
func RegisterNotificationFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringSliceP(
		"notification-url",
		"",
		// Due to issue spf13/viper#380, can't use viper.GetStringSlice:
		splitList(envString("UPDATEFLOW_NOTIFICATION_URL")),
		"The shoutrrr URL to send notifications to")

	flags.StringP(
		"notification-template",
		"",
		envString("UPDATEFLOW_NOTIFICATION_TEMPLATE"),
		"The shoutrrr text/template for the messages, or the name of a built-in template")

	flags.StringP(
		"notification-title",
		"",
		envString("UPDATEFLOW_NOTIFICATION_TITLE"),
		"Title of the notifications, derived from the host name by default")

	flags.DurationP(
		"notification-delay",
		"",
		envDuration("UPDATEFLOW_NOTIFICATION_DELAY"),
		"Delay before each notification is sent")
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}

	return regexp.MustCompile("[, ]+").Split(value, -1)
}

func envString(key string) string {
	viper.MustBindEnv(key)

	return viper.GetString(key)
}

func envInt(key string) int {
	viper.MustBindEnv(key)

	return viper.GetInt(key)
}

func envBool(key string) bool {
	viper.MustBindEnv(key)

	return viper.GetBool(key)
}

func envDuration(key string) time.Duration {
	viper.MustBindEnv(key)

	return viper.GetDuration(key)
}

// SetDefaults provides default values for environment variables.
func SetDefaults() {
	viper.AutomaticEnv()
	viper.SetDefault("UPDATEFLOW_STALENESS_DAYS", unsetStalenessDays)
	viper.SetDefault("UPDATEFLOW_POLL_INTERVAL", defaultPollInterval)
	viper.SetDefault("UPDATEFLOW_HTTP_API_PORT", "8080")
	viper.SetDefault("UPDATEFLOW_LOG_LEVEL", "info")
	viper.SetDefault("UPDATEFLOW_LOG_FORMAT", "auto")
}

// ReadFlags builds the run configuration from the parsed flags.
//
// Parameters:
//   - cmd: Root command with parsed flags.
//
// Returns:
//   - types.RunConfig: Run configuration.
//   - error: Non-nil for missing or invalid values.
func ReadFlags(cmd *cobra.Command) (types.RunConfig, error) {
	reader := &flagReader{flags: cmd.PersistentFlags()}

	config := types.RunConfig{
		Command:          cmd,
		ServiceURL:       reader.getString("service-url"),
		CurrentVersion:   reader.getString("current-version"),
		HostName:         reader.getString("host-name"),
		PollInterval:     reader.getDuration("poll-interval"),
		ResumeSchedule:   reader.getString("resume-schedule"),
		RunOnce:          reader.getBool("run-once"),
		EnableAPI:        reader.getBool("http-api"),
		APIHost:          reader.getString("http-api-host"),
		APIPort:          reader.getString("http-api-port"),
		APIToken:         reader.getString("http-api-token"),
		NotificationURLs: reader.getStringSlice("notification-url"),
	}

	blocking := reader.getBool("blocking")
	stalenessDays := reader.getInt("staleness-days")

	if reader.err != nil {
		return types.RunConfig{}, reader.err
	}

	if config.ServiceURL == "" {
		return types.RunConfig{}, errMissingServiceURL
	}

	if config.PollInterval <= 0 {
		return types.RunConfig{}, fmt.Errorf("%w: %s", errInvalidPollInterval, config.PollInterval)
	}

	config.Update = types.DefaultConfiguration()
	if blocking {
		config.Update.StrategyPreference = types.StrategyBlocking
	}

	switch {
	case stalenessDays == unsetStalenessDays:
	case stalenessDays < 0:
		return types.RunConfig{}, fmt.Errorf("%w: %d", errInvalidStalenessDays, stalenessDays)
	default:
		config.Update.StalenessThresholdDays = types.Days(stalenessDays)
	}

	if config.HostName == "" {
		config.HostName, _ = os.Hostname()
	}

	logrus.WithFields(logrus.Fields{
		"service_url":    config.ServiceURL,
		"preference":     config.Update.StrategyPreference.String(),
		"threshold_days": config.Update.ThresholdString(),
		"poll_interval":  config.PollInterval,
		"run_once":       config.RunOnce,
		"http_api":       config.EnableAPI,
	}).Debug("Retrieved configuration from flags")

	return config, nil
}

// flagReader reads typed flag values and keeps the first lookup error.
type flagReader struct {
	flags *pflag.FlagSet
	err   error
}

func (r *flagReader) record(name string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%w: %s: %w", errSetFlagFailed, name, err)
	}
}

func (r *flagReader) getString(name string) string {
	value, err := r.flags.GetString(name)
	r.record(name, err)

	return value
}

func (r *flagReader) getStringSlice(name string) []string {
	value, err := r.flags.GetStringSlice(name)
	r.record(name, err)

	return value
}

func (r *flagReader) getBool(name string) bool {
	value, err := r.flags.GetBool(name)
	r.record(name, err)

	return value
}

func (r *flagReader) getInt(name string) int {
	value, err := r.flags.GetInt(name)
	r.record(name, err)

	return value
}

func (r *flagReader) getDuration(name string) time.Duration {
	value, err := r.flags.GetDuration(name)
	r.record(name, err)

	return value
}

// GetSecretsFromFiles replaces flag values with file contents if they reference files.
//
// Returns:
//   - error: Non-nil if a referenced file cannot be read.
func GetSecretsFromFiles(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()

	secrets := []string{
		"notification-url",
		"http-api-token",
	}
	for _, secret := range secrets {
		if err := getSecretFromFile(flags, secret); err != nil {
			return fmt.Errorf("failed to get secret from flag %s: %w", secret, err)
		}
	}

	return nil
}

// getSecretFromFile updates a flag’s value with file contents if it references a file.
// It handles both string and slice flags, returning an error if file operations fail.
func getSecretFromFile(flags *pflag.FlagSet, secret string) error {
	flag := flags.Lookup(secret)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, secret)
	}

	if sliceValue, ok := flag.Value.(pflag.SliceValue); ok {
		oldValues := sliceValue.GetSlice()
		values := make([]string, 0, len(oldValues))

		for _, value := range oldValues {
			if value == "" || !isFilePath(value) {
				values = append(values, value)

				continue
			}

			file, err := os.Open(value)
			if err != nil {
				return fmt.Errorf("%w: %w", errOpenFileFailed, err)
			}

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}

				values = append(values, line)
			}

			if err := file.Close(); err != nil {
				return fmt.Errorf("%w: %w", errCloseFileFailed, err)
			}
		}

		if err := sliceValue.Replace(values); err != nil {
			return fmt.Errorf("%w: %w", errReplaceSliceFailed, err)
		}

		return nil
	}

	value := flag.Value.String()
	if value != "" && isFilePath(value) {
		content, err := os.ReadFile(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errReadFileFailed, err)
		}

		if err := flags.Set(secret, strings.TrimSpace(string(content))); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// isFilePath determines if a string likely represents a file path.
// It checks for file existence, avoiding false positives from URLs or invalid Windows paths.
func isFilePath(path string) bool {
	firstColon := strings.IndexRune(path, ':')
	if firstColon != 1 && firstColon != -1 {
		// If ':' exists but isn’t the second character, it’s likely not a file path (e.g., URLs).
		return false
	}

	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}

// ProcessFlagAliases synchronizes flag values based on helper flags.
//
// Returns:
//   - error: Non-nil for an unknown porcelain version.
func ProcessFlagAliases(flags *pflag.FlagSet) error {
	porcelain, err := flags.GetString("porcelain")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if porcelain != "" {
		if porcelain != "v1" {
			return fmt.Errorf("%w: %q", errUnknownPorcelain, porcelain)
		}

		if err := appendFlagValue(flags, "notification-url", "logger://"); err != nil {
			logrus.WithError(err).Error("Failed to set flag")
		}

		setFlagIfDefault(flags, "notification-template", "porcelain."+porcelain)
	}

	if flagIsEnabled(flags, "debug") {
		if err := flags.Set("log-level", "debug"); err != nil {
			logrus.WithError(err).Error("Failed to set log-level flag")
		}
	}

	if flagIsEnabled(flags, "trace") {
		if err := flags.Set("log-level", "trace"); err != nil {
			logrus.WithError(err).Error("Failed to set log-level flag")
		}
	}

	return nil
}

// SetupLogging configures the global logger based on log-related flags.
// It sets the log format and level, returning an error for invalid configurations.
func SetupLogging(flags *pflag.FlagSet) error {
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err := configureLogFormat(logFormat, noColor); err != nil {
		return err
	}

	rawLogLevel, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	logLevel, err := logrus.ParseLevel(rawLogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	logrus.SetLevel(logLevel)

	return nil
}

// configureLogFormat sets the logrus formatter based on the specified format and color preference.
// It returns an error if the format is invalid.
func configureLogFormat(logFormat string, noColor bool) error {
	switch strings.ToLower(logFormat) {
	case "auto", "":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:             noColor,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logfmt":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case "pretty":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			FullTimestamp: false,
		})
	default:
		return fmt.Errorf("%w: %s", errInvalidLogFormat, logFormat)
	}

	return nil
}

// flagIsEnabled checks if a boolean flag is set to true.
// An undefined flag counts as disabled.
func flagIsEnabled(flags *pflag.FlagSet, name string) bool {
	value, err := flags.GetBool(name)
	if err != nil {
		logrus.WithField("flag", name).Debug("Flag is not defined")

		return false
	}

	return value
}

// appendFlagValue appends values to a slice-type flag.
// It returns an error if the flag is invalid or not a slice.
func appendFlagValue(flags *pflag.FlagSet, name string, values ...string) error {
	flag := flags.Lookup(name)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, name)
	}

	flagValues, ok := flag.Value.(pflag.SliceValue)
	if !ok {
		return fmt.Errorf("%w: %q", errNotSliceValue, name)
	}

	for _, value := range values {
		if err := flagValues.Append(value); err != nil {
			logrus.WithError(err).WithField("flag", name).Error("Failed to append value to flag")
		}
	}

	return nil
}

// setFlagIfDefault sets a flag’s value if it hasn’t been explicitly changed.
// It logs an error if the set operation fails but continues execution.
func setFlagIfDefault(flags *pflag.FlagSet, name string, value string) {
	if flags.Changed(name) {
		return
	}

	if err := flags.Set(name, value); err != nil {
		logrus.WithError(err).Error("Failed to set flag")
	}
}
