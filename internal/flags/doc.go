// Package flags manages command-line flags and environment variables for updateflow configuration.
// It configures the update service connection, the flow preferences, the HTTP API,
// notifications and logging via Cobra and Viper.
//
// Key components:
//   - RegisterSystemFlags: Adds flow, API and logging flags.
//   - RegisterNotificationFlags: Adds notification settings.
//   - ReadFlags: Builds the run configuration.
//   - SetupLogging: Configures logrus based on flags.
//
// Usage example:
//
//	flags.SetDefaults()
//	flags.RegisterSystemFlags(cmd)
//	err := flags.SetupLogging(cmd.PersistentFlags())
//	if err != nil {
//	    logrus.WithError(err).Fatal("Logging setup failed")
//	}
//
// Every flag can also be set through an UPDATEFLOW_* environment variable.
package flags
