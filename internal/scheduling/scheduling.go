// Package scheduling provides functionality for emitting simulated host foreground resumes
// on a cron schedule. It serializes resumes with the other host triggers through a shared
// lock channel and stops cleanly when its context is cancelled.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// resumeWaitTimeout bounds how long shutdown waits for a resume being handled.
const resumeWaitTimeout = 60 * time.Second

// NewLock returns a lock channel holding its token, ready to be shared between the
// scheduler and the HTTP API.
func NewLock() chan bool {
	lock := make(chan bool, 1)
	lock <- true

	return lock
}

// WaitForRunningResume waits for any resume currently being handled to complete before proceeding with shutdown.
// It checks the lock channel status and blocks with a timeout if a resume is in progress.
//
// Parameters:
//   - ctx: The context for cancellation, allowing early shutdown on context timeout.
//   - lock: The channel used to serialize host triggers.
func WaitForRunningResume(ctx context.Context, lock chan bool) {
	logrus.Debug("Checking lock status before shutdown")

	if len(lock) == 0 {
		select {
		case v := <-lock:
			lock <- v

			logrus.Debug("Lock acquired, resume finished")
		case <-time.After(resumeWaitTimeout):
			logrus.Warn("Timeout waiting for running resume to finish, proceeding with shutdown")
		case <-ctx.Done():
			logrus.Warn("Context cancelled while waiting for running resume")
		}
	} else {
		logrus.Debug("No resume running, lock available")
	}
}

// RunResumesOnSchedule calls resume according to the cron specification until ctx is cancelled.
//
// A tick arriving while the lock is taken is skipped. An empty scheduleSpec schedules
// nothing and only waits for cancellation.
//
// Parameters:
//   - ctx: The context controlling the scheduler's lifecycle.
//   - scheduleSpec: Cron expression, or empty.
//   - lock: A channel serializing host triggers, or nil to create a new one.
//   - resume: Function simulating a foreground resume.
//   - onStart: Optional callback receiving the first scheduled run, zero if none.
//
// Returns:
//   - error: An error if the cron spec is invalid, nil on shutdown.
func RunResumesOnSchedule(
	ctx context.Context,
	scheduleSpec string,
	lock chan bool,
	resume func(context.Context),
	onStart func(nextRun time.Time),
) error {
	if lock == nil {
		lock = NewLock()
	}

	scheduler := cron.New()

	resumeFunc := func() {
		select {
		case v := <-lock:
			defer func() { lock <- v }()

			resume(ctx)
			logrus.Debug("Scheduled resume handled")
		default:
			logrus.Debug("Skipped scheduled resume, another trigger is still being handled")
		}

		if entries := scheduler.Entries(); len(entries) > 0 {
			logrus.Debug("Scheduled next resume: " + entries[0].Next.String())
		}
	}

	if scheduleSpec != "" {
		if err := scheduler.AddFunc(scheduleSpec, resumeFunc); err != nil {
			return fmt.Errorf("failed to schedule resumes: %w", err)
		}
	}

	var nextRun time.Time
	if entries := scheduler.Entries(); len(entries) > 0 {
		nextRun = entries[0].Schedule.Next(time.Now())
	}

	if onStart != nil {
		onStart(nextRun)
	}

	scheduler.Start()

	<-ctx.Done()
	logrus.Debug("Context cancelled, stopping resume scheduler")

	scheduler.Stop()

	// ctx is already done here, so the wait gets its own deadline.
	WaitForRunningResume(context.WithoutCancel(ctx), lock)

	logrus.Debug("Resume scheduler stopped")

	return nil
}
