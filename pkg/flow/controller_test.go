package flow_test

import (
	"context"
	"errors"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/nicholas-fedor/updateflow/pkg/flow"
	"github.com/nicholas-fedor/updateflow/pkg/types"
	"github.com/nicholas-fedor/updateflow/pkg/types/mocks"
)

var errBoom = errors.New("boom")

func availableUpdate(strategies ...types.Strategy) mocks.QueryResponse {
	return mocks.QueryResponse{Metadata: types.UpdateMetadata{
		Availability:      types.AvailabilityAvailable,
		AllowedStrategies: types.NewStrategySet(strategies...),
	}}
}

func silentConfig() types.UpdateConfiguration {
	return types.UpdateConfiguration{StrategyPreference: types.StrategySilent}
}

// reentrantObserver reads the controller from inside its callbacks.
type reentrantObserver struct {
	controller *flow.Controller
	seen       []flow.State
}

func (o *reentrantObserver) OnDownloadProgress(uint64, uint64) {
	o.seen = append(o.seen, o.controller.Snapshot().State)
}

func (o *reentrantObserver) OnDownloadStarted() {
	o.seen = append(o.seen, o.controller.Snapshot().State)
}

func (o *reentrantObserver) OnDownloadCompleted() {}

func (o *reentrantObserver) OnUpdateFailed(error) {}

var _ = ginkgo.Describe("Controller", func() {
	var (
		ctx      context.Context
		guard    *flow.Guard
		service  *mocks.MockService
		host     *mocks.MockHost
		observer *mocks.RecordingObserver
	)

	newController := func(config types.UpdateConfiguration, opts ...flow.Option) *flow.Controller {
		controller, err := guard.NewController(service, config, opts...)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		controller.SetObserver(observer)

		return controller
	}

	startSettled := func(controller *flow.Controller) {
		gomega.Expect(controller.Start(ctx, host)).To(gomega.Succeed())
		controller.Wait()
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		guard = flow.NewGuard()
		service = mocks.NewMockService()
		host = mocks.NewMockHost("main")
		observer = &mocks.RecordingObserver{}
	})

	ginkgo.Describe("Start", func() {
		ginkgo.It("executes the silent strategy with the attempt token", func() {
			service.Respond(availableUpdate(types.StrategySilent, types.StrategyBlocking))
			controller := newController(silentConfig(), flow.WithTokenSource(func() string { return "token-1" }))

			startSettled(controller)

			snapshot := controller.Snapshot()
			gomega.Expect(snapshot.State).To(gomega.Equal(flow.StateExecuting))
			gomega.Expect(snapshot.Strategy).To(gomega.Equal("silent"))
			gomega.Expect(snapshot.HasUpdateAvailable).To(gomega.BeTrue())
			gomega.Expect(snapshot.IsListenerRegistered).To(gomega.BeTrue())
			gomega.Expect(service.Executions()).To(gomega.ConsistOf(mocks.Execution{
				Host:     "main",
				Strategy: types.StrategySilent,
				Token:    "token-1",
				Metadata: availableUpdate(types.StrategySilent, types.StrategyBlocking).Metadata,
			}))
		})

		ginkgo.It("registers the listener only for a silent preference", func() {
			service.Respond(availableUpdate(types.StrategyBlocking))
			controller := newController(types.UpdateConfiguration{StrategyPreference: types.StrategyBlocking})

			startSettled(controller)

			gomega.Expect(service.Registered()).To(gomega.Equal(0))
			gomega.Expect(controller.Snapshot().IsListenerRegistered).To(gomega.BeFalse())
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateExecuting))
		})

		ginkgo.It("escalates a stale update to blocking", func() {
			response := availableUpdate(types.StrategySilent, types.StrategyBlocking)
			response.Metadata.StalenessDays = types.Days(5)
			service.Respond(response)
			controller := newController(types.UpdateConfiguration{
				StrategyPreference:     types.StrategySilent,
				StalenessThresholdDays: types.Days(5),
			})

			startSettled(controller)

			executions := service.Executions()
			gomega.Expect(executions).To(gomega.HaveLen(1))
			gomega.Expect(executions[0].Strategy).To(gomega.Equal(types.StrategyBlocking))
		})

		ginkgo.It("rejects a second call", func() {
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Start(ctx, host)).To(gomega.MatchError(flow.ErrAlreadyStarted))
			gomega.Expect(service.Queries()).To(gomega.Equal(1))
		})

		ginkgo.It("ends in no update when nothing is available", func() {
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateNoUpdate))
			gomega.Expect(service.Executions()).To(gomega.BeEmpty())
		})

		ginkgo.It("treats a query failure as no update", func() {
			service.Respond(mocks.QueryResponse{Err: errBoom})
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateNoUpdate))
			gomega.Expect(controller.Err()).To(gomega.MatchError(types.ErrQuery))
			gomega.Expect(service.Queries()).To(gomega.Equal(1))
		})

		ginkgo.It("ends in no update when the strategy is not allowed", func() {
			service.Respond(availableUpdate(types.StrategyBlocking))
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateNoUpdate))
			gomega.Expect(controller.IsDisallowed()).To(gomega.BeTrue())
			gomega.Expect(observer.Failures).To(gomega.BeEmpty())
		})

		ginkgo.It("fails without retry when the strategy request fails", func() {
			service.Respond(availableUpdate(types.StrategySilent))
			service.ExecuteErr = errBoom
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateFailed))
			gomega.Expect(controller.Err()).To(gomega.MatchError(types.ErrStrategyRequest))
			gomega.Expect(controller.Err()).To(gomega.MatchError(errBoom))
			gomega.Expect(service.Executions()).To(gomega.HaveLen(1))
			gomega.Expect(observer.Events()).To(gomega.Equal([]string{"failed"}))
		})

		ginkgo.It("fails with host unavailable when the host is gone", func() {
			service.Respond(availableUpdate(types.StrategySilent))
			host.Destroy()
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateFailed))
			gomega.Expect(controller.Err()).To(gomega.MatchError(types.ErrHostUnavailable))
			gomega.Expect(service.Executions()).To(gomega.BeEmpty())
		})

		ginkgo.It("fails when the listener cannot be registered", func() {
			service.RegisterErr = errBoom
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateFailed))
			gomega.Expect(controller.Err()).To(gomega.MatchError(flow.ErrListenerRegistration))
			gomega.Expect(service.Queries()).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("configuration", func() {
		ginkgo.It("accepts changes before start", func() {
			controller := newController(silentConfig())

			gomega.Expect(controller.SetStrategyPreference(types.StrategyBlocking)).To(gomega.Succeed())
			gomega.Expect(controller.SetStalenessThresholdDays(types.Days(3))).To(gomega.Succeed())

			config := controller.Configuration()
			gomega.Expect(config.StrategyPreference).To(gomega.Equal(types.StrategyBlocking))
			gomega.Expect(*config.StalenessThresholdDays).To(gomega.Equal(3))
		})

		ginkgo.It("rejects invalid values", func() {
			controller := newController(silentConfig())

			gomega.Expect(controller.SetStalenessThresholdDays(types.Days(-1))).
				To(gomega.MatchError(flow.ErrInvalidConfiguration))
			gomega.Expect(controller.SetStrategyPreference(types.Strategy(0))).
				To(gomega.MatchError(flow.ErrInvalidConfiguration))
		})

		ginkgo.It("is locked once started", func() {
			service.Respond(availableUpdate(types.StrategySilent))
			controller := newController(silentConfig())

			startSettled(controller)

			gomega.Expect(controller.SetStrategyPreference(types.StrategyBlocking)).
				To(gomega.MatchError(flow.ErrConfigurationLocked))
			gomega.Expect(controller.SetStalenessThresholdDays(nil)).
				To(gomega.MatchError(flow.ErrConfigurationLocked))
			gomega.Expect(controller.Configuration().StrategyPreference).To(gomega.Equal(types.StrategySilent))
		})
	})

	ginkgo.Describe("progress", func() {
		var controller *flow.Controller

		ginkgo.BeforeEach(func() {
			service.Respond(availableUpdate(types.StrategySilent, types.StrategyBlocking))
			controller = newController(silentConfig())
			startSettled(controller)
		})

		ginkgo.It("announces the download start before the first event", func() {
			controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: 10, TotalBytes: 100})

			gomega.Expect(observer.Events()).To(gomega.Equal([]string{"started", "progress"}))
			gomega.Expect(observer.Progress).To(gomega.Equal([]types.ProgressEvent{{BytesDownloaded: 10, TotalBytes: 100}}))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDownloading))
		})

		ginkgo.It("announces the download start exactly once", func() {
			for i := uint64(1); i <= 5; i++ {
				controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: i * 10, TotalBytes: 100})
			}

			service.Emit(types.InstallState{Status: types.InstallStatusDownloading, BytesDownloaded: 60, TotalBytes: 100})

			started, _, progress := observer.Counts()
			gomega.Expect(started).To(gomega.Equal(1))
			gomega.Expect(progress).To(gomega.Equal(6))
			gomega.Expect(controller.Snapshot().HasAnnouncedDownloadStart).To(gomega.BeTrue())
		})

		ginkgo.It("discards events after teardown", func() {
			controller.OnTeardown()
			controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: 10, TotalBytes: 100})
			service.Emit(types.InstallState{Status: types.InstallStatusDownloading, BytesDownloaded: 20, TotalBytes: 100})

			gomega.Expect(observer.Events()).To(gomega.BeEmpty())
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDestroyed))
		})

		ginkgo.It("lets observers call back into the controller", func() {
			reentrant := &reentrantObserver{controller: controller}
			controller.SetObserver(reentrant)

			controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: 1, TotalBytes: 2})

			gomega.Expect(reentrant.seen).To(gomega.Equal([]flow.State{flow.StateDownloading, flow.StateDownloading}))
		})

		ginkgo.It("fails when the service reports a failed install", func() {
			controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: 1, TotalBytes: 2})
			service.Emit(types.InstallState{Status: types.InstallStatusFailed})

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateFailed))
			gomega.Expect(controller.Err()).To(gomega.MatchError(flow.ErrInstallFailed))
			gomega.Expect(observer.Events()).To(gomega.Equal([]string{"started", "progress", "failed"}))
		})

		ginkgo.It("completes when the service reports the update installed", func() {
			controller.OnInstallStatusChanged(types.InstallStatusInstalled)

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateCompleted))
		})
	})

	ginkgo.Describe("completion", func() {
		var controller *flow.Controller

		downloaded := mocks.QueryResponse{Metadata: types.UpdateMetadata{
			Availability:      types.AvailabilityAvailable,
			AllowedStrategies: types.NewStrategySet(types.StrategySilent),
			InstallStatus:     types.InstallStatusDownloaded,
		}}

		ginkgo.BeforeEach(func() {
			service.Respond(availableUpdate(types.StrategySilent))
			controller = newController(silentConfig())
			startSettled(controller)
			controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: 50, TotalBytes: 100})
		})

		ginkgo.It("fires once even when resumed repeatedly", func() {
			service.Fallback = downloaded

			service.Emit(types.InstallState{Status: types.InstallStatusDownloaded})

			for range 3 {
				controller.OnForegroundResume(ctx, host)
				controller.Wait()
			}

			_, completed, _ := observer.Counts()
			gomega.Expect(completed).To(gomega.Equal(1))
			gomega.Expect(service.Queries()).To(gomega.Equal(4))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDownloaded))
			gomega.Expect(controller.Snapshot().CompletionAnnounced).To(gomega.BeTrue())
		})

		ginkgo.It("re-emits on resume when no observer saw it", func() {
			service.Fallback = downloaded
			controller.SetObserver(nil)

			controller.OnInstallStatusChanged(types.InstallStatusDownloaded)
			gomega.Expect(controller.Snapshot().CompletionAnnounced).To(gomega.BeFalse())

			controller.SetObserver(observer)
			controller.OnForegroundResume(ctx, host)
			controller.Wait()
			controller.OnForegroundResume(ctx, host)
			controller.Wait()

			_, completed, _ := observer.Counts()
			gomega.Expect(completed).To(gomega.Equal(1))
		})

		ginkgo.It("re-emits on resume when only a progress observer was attached", func() {
			service.Fallback = downloaded
			controller.SetObserver(types.ObserverFunc(func(uint64, uint64) {}))

			controller.OnInstallStatusChanged(types.InstallStatusDownloaded)
			gomega.Expect(controller.Snapshot().CompletionAnnounced).To(gomega.BeFalse())

			controller.SetObserver(observer)
			controller.OnForegroundResume(ctx, host)
			controller.Wait()

			_, completed, _ := observer.Counts()
			gomega.Expect(completed).To(gomega.Equal(1))
			gomega.Expect(controller.Snapshot().CompletionAnnounced).To(gomega.BeTrue())
		})

		ginkgo.It("re-announces a download finished in the background", func() {
			service.Respond(downloaded)

			controller.OnForegroundResume(ctx, host)
			controller.Wait()

			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDownloaded))
			_, completed, _ := observer.Counts()
			gomega.Expect(completed).To(gomega.Equal(1))
		})

		ginkgo.It("finalizes a downloaded update", func() {
			controller.OnInstallStatusChanged(types.InstallStatusDownloaded)

			gomega.Expect(controller.FinalizeUpdate(ctx)).To(gomega.Succeed())
			gomega.Expect(service.Finalized()).To(gomega.Equal(1))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateCompleted))
		})

		ginkgo.It("keeps the download when finalization fails", func() {
			controller.OnInstallStatusChanged(types.InstallStatusDownloaded)
			service.FinalizeErr = errBoom

			gomega.Expect(controller.FinalizeUpdate(ctx)).To(gomega.MatchError(errBoom))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDownloaded))
		})

		ginkgo.It("refuses to finalize before the download finished", func() {
			gomega.Expect(controller.FinalizeUpdate(ctx)).To(gomega.MatchError(flow.ErrNotDownloaded))
			gomega.Expect(service.Finalized()).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("OnForegroundResume", func() {
		ginkgo.It("is ignored before start", func() {
			controller := newController(silentConfig())

			controller.OnForegroundResume(ctx, host)
			controller.Wait()

			gomega.Expect(service.Queries()).To(gomega.Equal(0))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateIdle))
		})

		ginkgo.It("reissues an interrupted blocking update with the same token", func() {
			service.Respond(availableUpdate(types.StrategyBlocking), mocks.QueryResponse{Metadata: types.UpdateMetadata{
				Availability:      types.AvailabilityInProgress,
				AllowedStrategies: types.NewStrategySet(types.StrategyBlocking),
			}})
			controller := newController(types.UpdateConfiguration{StrategyPreference: types.StrategyBlocking})

			startSettled(controller)
			controller.OnForegroundResume(ctx, host)
			controller.Wait()

			executions := service.Executions()
			gomega.Expect(executions).To(gomega.HaveLen(2))
			gomega.Expect(executions[1].Strategy).To(gomega.Equal(types.StrategyBlocking))
			gomega.Expect(executions[1].Token).To(gomega.Equal(executions[0].Token))
			gomega.Expect(executions[1].Metadata.Availability).To(gomega.Equal(types.AvailabilityInProgress))
		})

		ginkgo.It("does not reissue a blocking update that is not in progress", func() {
			service.Respond(availableUpdate(types.StrategyBlocking))
			controller := newController(types.UpdateConfiguration{StrategyPreference: types.StrategyBlocking})

			startSettled(controller)
			controller.OnForegroundResume(ctx, host)
			controller.Wait()

			gomega.Expect(service.Executions()).To(gomega.HaveLen(1))
			gomega.Expect(service.Queries()).To(gomega.Equal(2))
		})

		ginkgo.It("queues a resume received while checking", func() {
			gate := make(chan struct{}, 2)
			service.Gate = gate
			service.Respond(availableUpdate(types.StrategySilent))
			controller := newController(silentConfig())

			gomega.Expect(controller.Start(ctx, host)).To(gomega.Succeed())
			controller.OnForegroundResume(ctx, host)
			gomega.Expect(service.Queries()).To(gomega.Equal(0))

			gate <- struct{}{}
			gate <- struct{}{}
			controller.Wait()

			gomega.Expect(service.Queries()).To(gomega.Equal(2))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateExecuting))
		})

		ginkgo.It("drops a queued resume when no update is found", func() {
			gate := make(chan struct{}, 2)
			service.Gate = gate
			controller := newController(silentConfig())

			gomega.Expect(controller.Start(ctx, host)).To(gomega.Succeed())
			controller.OnForegroundResume(ctx, host)

			gate <- struct{}{}
			controller.Wait()

			gomega.Expect(service.Queries()).To(gomega.Equal(1))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateNoUpdate))
		})
	})

	ginkgo.Describe("OnTeardown", func() {
		ginkgo.It("is idempotent and unregisters the listener once", func() {
			service.Respond(availableUpdate(types.StrategySilent))
			controller := newController(silentConfig())
			startSettled(controller)

			gomega.Expect(service.ActiveListeners()).To(gomega.Equal(1))

			controller.OnTeardown()
			controller.OnTeardown()

			gomega.Expect(service.ActiveListeners()).To(gomega.Equal(0))
			gomega.Expect(service.Unregistered()).To(gomega.Equal(1))
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDestroyed))
			gomega.Expect(controller.Snapshot().IsListenerRegistered).To(gomega.BeFalse())
		})

		ginkgo.It("discards a query that settles afterwards", func() {
			gate := make(chan struct{}, 1)
			service.Gate = gate
			service.Respond(availableUpdate(types.StrategySilent))
			controller := newController(silentConfig())

			gomega.Expect(controller.Start(ctx, host)).To(gomega.Succeed())
			controller.OnTeardown()

			gate <- struct{}{}
			controller.Wait()

			gomega.Expect(service.Executions()).To(gomega.BeEmpty())
			gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDestroyed))
		})

		ginkgo.It("rejects later operations", func() {
			controller := newController(silentConfig())
			controller.OnTeardown()

			gomega.Expect(controller.Start(ctx, host)).To(gomega.MatchError(flow.ErrDestroyed))
			gomega.Expect(controller.FinalizeUpdate(ctx)).To(gomega.MatchError(flow.ErrDestroyed))
			gomega.Expect(controller.SetStrategyPreference(types.StrategyBlocking)).
				To(gomega.MatchError(flow.ErrConfigurationLocked))
		})
	})
})
