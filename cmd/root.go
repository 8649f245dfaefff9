package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/updateflow/internal/api"
	"github.com/nicholas-fedor/updateflow/internal/flags"
	"github.com/nicholas-fedor/updateflow/internal/logging"
	"github.com/nicholas-fedor/updateflow/internal/meta"
	"github.com/nicholas-fedor/updateflow/internal/scheduling"
	"github.com/nicholas-fedor/updateflow/pkg/flow"
	"github.com/nicholas-fedor/updateflow/pkg/lifecycle"
	"github.com/nicholas-fedor/updateflow/pkg/metrics"
	"github.com/nicholas-fedor/updateflow/pkg/notifications"
	"github.com/nicholas-fedor/updateflow/pkg/service/httpservice"
	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// errNoController indicates the guard refused to create the process controller.
var errNoController = errors.New("failed to create update flow controller")

// runConfig is the configuration read by preRun.
var runConfig types.RunConfig

// rootCmd represents the root command for the updateflow CLI.
var rootCmd = NewRootCommand()

// processHost is the host handle of this process.
// Its availability is tracked by the lifecycle bridge holding it.
type processHost struct {
	name string
}

func (h processHost) Name() string    { return h.name }
func (h processHost) Available() bool { return true }

// NewRootCommand creates and configures the root command for the updateflow CLI.
//
// Returns:
//   - *cobra.Command: A pointer to the configured root command, ready for flag registration and execution.
func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "updateflow",
		Short:  "Checks for and applies application updates from an update-delivery service",
		Long:   "\nupdateflow queries an update-delivery service, picks a silent or blocking update strategy\nand reports download progress and completion until the update is installed.",
		Run:    run,
		PreRun: preRun,
		Args:   cobra.NoArgs,
	}
}

// init registers command-line flags for the root command during package initialization.
func init() {
	flags.SetDefaults()
	flags.RegisterSystemFlags(rootCmd)
	flags.RegisterNotificationFlags(rootCmd)
}

// Execute runs the root command and exits on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("Failed to execute root command")
	}
}

// preRun processes flag aliases, configures logging and reads the run configuration.
func preRun(cmd *cobra.Command, _ []string) {
	flagsSet := cmd.PersistentFlags()

	if err := flags.ProcessFlagAliases(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to process flag aliases")
	}

	if err := flags.SetupLogging(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logging")
	}

	if err := flags.GetSecretsFromFiles(cmd); err != nil {
		logrus.WithError(err).Fatal("Failed to read secrets")
	}

	config, err := flags.ReadFlags(cmd)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	runConfig = config
}

// run executes the main updateflow logic and exits with its status code.
func run(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if exitCode := runMain(ctx, runConfig); exitCode != 0 {
		logrus.WithField("exit_code", exitCode).Debug("Exiting with non-zero status")
		os.Exit(exitCode)
	}
}

// app bundles the collaborators built for one run.
type app struct {
	guard      *flow.Guard
	controller *flow.Controller
	bridge     *lifecycle.Bridge
	notifier   *notifications.Notifier
	gatherer   prometheus.Gatherer
}

// setupRuntime builds the service client, the controller and its observers.
//
// Parameters:
//   - cfg: Run configuration.
//   - m: Metrics sink for the controller.
//
// Returns:
//   - *app: Collaborators ready to start.
//   - error: Non-nil if the service URL, the version or the notifier configuration is invalid.
func setupRuntime(cfg types.RunConfig, m *metrics.Metrics) (*app, error) {
	httpservice.UserAgent = "updateflow/" + meta.Version

	currentVersion, err := httpservice.ParseCurrentVersion(cfg.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}

	service, err := httpservice.New(
		cfg.ServiceURL,
		httpservice.WithPollInterval(cfg.PollInterval),
		httpservice.WithCurrentVersion(currentVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create update service client: %w", err)
	}

	notifier, err := setupNotifier(cfg)
	if err != nil {
		return nil, err
	}

	guard := flow.NewGuard()

	controller, err := guard.NewController(service, cfg.Update, flow.WithMetrics(m))
	if err != nil {
		if notifier != nil {
			notifier.Close()
		}

		return nil, fmt.Errorf("%w: %w", errNoController, err)
	}

	var next types.EventObserver
	if notifier != nil {
		next = notifier
	}

	controller.SetObserver(newHostObserver(next))

	return &app{
		guard:      guard,
		controller: controller,
		bridge:     lifecycle.NewBridge(controller, processHost{name: cfg.HostName}),
		notifier:   notifier,
		gatherer:   prometheus.DefaultGatherer,
	}, nil
}

// setupNotifier creates the notifier for the configured URLs, or nil without URLs.
func setupNotifier(cfg types.RunConfig) (*notifications.Notifier, error) {
	if len(cfg.NotificationURLs) == 0 {
		return nil, nil //nolint:nilnil
	}

	flagsSet := cfg.Command.PersistentFlags()
	template, _ := flagsSet.GetString("notification-template")
	title, _ := flagsSet.GetString("notification-title")
	delay, _ := flagsSet.GetDuration("notification-delay")

	notifier, err := notifications.NewNotifier(cfg.NotificationURLs, notifications.StaticData{
		Title: title,
		Host:  cfg.HostName,
	}, template, delay)
	if err != nil {
		return nil, fmt.Errorf("failed to set up notifications: %w", err)
	}

	return notifier, nil
}

// notifierNames returns the configured notification service names.
func (r *app) notifierNames() []string {
	if r.notifier == nil {
		return nil
	}

	return r.notifier.GetNames()
}

// shutdown tears the flow down and waits for outstanding work.
func (r *app) shutdown() {
	r.bridge.HostDestroyed()
	r.controller.Wait()

	if r.notifier != nil {
		r.notifier.Close()
	}
}

// runMain starts the flow and drives it until ctx is cancelled or, with --run-once, until the attempt settles.
//
// Parameters:
//   - ctx: Context cancelled on SIGINT or SIGTERM.
//   - cfg: Run configuration.
//
// Returns:
//   - int: An exit code (0 for success, 1 for failure).
func runMain(ctx context.Context, cfg types.RunConfig) int {
	rt, err := setupRuntime(cfg, metrics.Default())
	if err != nil {
		logrus.WithError(err).Error("Failed to set up update flow")

		return 1
	}
	defer rt.shutdown()

	lock := scheduling.NewLock()

	if cfg.RunOnce {
		logging.WriteStartupMessage(cfg.Command, cfg, time.Time{}, rt.notifierNames(), meta.Version)

		return runOnce(ctx, rt, cfg.PollInterval)
	}

	if err := api.SetupAndStartAPI(ctx, cfg, rt.guard, rt.bridge, rt.gatherer, lock); err != nil {
		return 1
	}

	if err := rt.bridge.HostStarted(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start update flow")

		return 1
	}

	go forwardResumeSignals(ctx, rt.bridge, lock)

	err = scheduling.RunResumesOnSchedule(ctx, cfg.ResumeSchedule, lock, rt.bridge.HostResumed, func(next time.Time) {
		logging.WriteStartupMessage(cfg.Command, cfg, next, rt.notifierNames(), meta.Version)
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to schedule resumes")

		return 1
	}

	return 0
}

// runOnce starts the flow and waits until the attempt settles.
// A downloaded update counts as settled; it is finalized by a later run.
// So does a dispatched blocking request, whose progress the host UI owns.
func runOnce(ctx context.Context, rt *app, pollInterval time.Duration) int {
	if err := rt.bridge.HostStarted(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start update flow")

		return 1
	}

	state := awaitSettled(ctx, rt.controller, pollInterval)

	clog := logrus.WithField("state", state.String())
	if err := rt.controller.Err(); err != nil {
		clog = clog.WithError(err)
	}

	if state == flow.StateFailed {
		clog.Error("Update attempt failed")

		return 1
	}

	clog.Info("Update attempt settled")

	return 0
}

// awaitSettled polls the controller until the attempt settles or ctx is done.
func awaitSettled(ctx context.Context, controller *flow.Controller, interval time.Duration) flow.State {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		controller.Wait()

		if snapshot := controller.Snapshot(); settled(snapshot) {
			return snapshot.State
		}

		select {
		case <-ctx.Done():
			return controller.Snapshot().State
		case <-ticker.C:
		}
	}
}

// settled reports whether a run-once attempt has nothing left to wait for.
// Called after Wait, an executing blocking attempt has its request dispatched.
func settled(snapshot flow.Snapshot) bool {
	switch {
	case snapshot.State.Terminal(), snapshot.State == flow.StateDownloaded:
		return true
	case snapshot.State == flow.StateExecuting:
		return snapshot.Strategy == types.StrategyBlocking.String()
	default:
		return false
	}
}

// forwardResumeSignals turns SIGUSR1 into foreground resumes until ctx is cancelled.
func forwardResumeSignals(ctx context.Context, resumer api.Resumer, lock chan bool) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)

	defer signal.Stop(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			logrus.Debug("Received SIGUSR1, resuming host")

			resumeWithLock(ctx, resumer, lock)
		}
	}
}

func resumeWithLock(ctx context.Context, resumer api.Resumer, lock chan bool) {
	select {
	case v := <-lock:
		defer func() { lock <- v }()

		resumer.HostResumed(ctx)
	case <-ctx.Done():
	}
}
