package flow_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/nicholas-fedor/updateflow/pkg/flow"
	"github.com/nicholas-fedor/updateflow/pkg/service/httpservice"
	"github.com/nicholas-fedor/updateflow/pkg/types"
	"github.com/nicholas-fedor/updateflow/pkg/types/mocks"
)

// tearingObserver tears the flow down from inside one of its callbacks.
type tearingObserver struct {
	mocks.RecordingObserver

	controller *flow.Controller
	onStarted  bool
	once       sync.Once
	done       chan struct{}
}

func newTearingObserver(onStarted bool) *tearingObserver {
	return &tearingObserver{onStarted: onStarted, done: make(chan struct{})}
}

func (o *tearingObserver) tearDown() {
	o.once.Do(func() {
		o.controller.OnTeardown()
		close(o.done)
	})
}

func (o *tearingObserver) OnDownloadStarted() {
	o.RecordingObserver.OnDownloadStarted()

	if o.onStarted {
		o.tearDown()
	}
}

func (o *tearingObserver) OnDownloadCompleted() {
	o.RecordingObserver.OnDownloadCompleted()

	if !o.onStarted {
		o.tearDown()
	}
}

// newUpdateEndpoint serves an available silent update that reports downloaded once executed.
func newUpdateEndpoint() string {
	var executed atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/update-info", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"availability":"available","allowed_strategies":["silent"]}`))
	})
	mux.HandleFunc("POST /v1/execute", func(w http.ResponseWriter, _ *http.Request) {
		executed.Store(true)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /v1/install-state", func(w http.ResponseWriter, _ *http.Request) {
		if !executed.Load() {
			_, _ = w.Write([]byte(`{"status":"unknown"}`))

			return
		}

		_, _ = w.Write([]byte(`{"status":"downloaded","bytes_downloaded":100,"total_bytes":100}`))
	})

	server := httptest.NewServer(mux)
	ginkgo.DeferCleanup(server.Close)

	return server.URL
}

var _ = ginkgo.Describe("Teardown from an observer", func() {
	var guard *flow.Guard

	ginkgo.BeforeEach(func() {
		guard = flow.NewGuard()
	})

	ginkgo.It("returns while the install state listener is delivering", func() {
		service, err := httpservice.New(newUpdateEndpoint(), httpservice.WithPollInterval(5*time.Millisecond))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		controller, err := guard.NewController(service, silentConfig())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		observer := newTearingObserver(false)
		observer.controller = controller
		controller.SetObserver(observer)

		gomega.Expect(controller.Start(context.Background(), mocks.NewMockHost("main"))).To(gomega.Succeed())

		gomega.Eventually(observer.done).WithTimeout(2 * time.Second).Should(gomega.BeClosed())
		gomega.Expect(controller.Snapshot().State).To(gomega.Equal(flow.StateDestroyed))
		gomega.Expect(guard.Current()).To(gomega.BeNil())

		next, err := guard.NewController(service, silentConfig())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		next.OnTeardown()
	})

	ginkgo.It("drops callbacks queued before the teardown", func() {
		service := mocks.NewMockService(availableUpdate(types.StrategySilent))

		controller, err := guard.NewController(service, silentConfig())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		observer := newTearingObserver(true)
		observer.controller = controller
		controller.SetObserver(observer)

		gomega.Expect(controller.Start(context.Background(), mocks.NewMockHost("main"))).To(gomega.Succeed())
		controller.Wait()

		controller.OnProgressEvent(types.ProgressEvent{BytesDownloaded: 10, TotalBytes: 100})

		gomega.Expect(observer.done).To(gomega.BeClosed())
		gomega.Expect(observer.Events()).To(gomega.Equal([]string{"started"}))
		gomega.Expect(guard.Current()).To(gomega.BeNil())
	})
})
