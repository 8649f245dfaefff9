package notifications_test

import (
	"errors"
	"sync"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	shoutrrrTypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/nicholas-fedor/updateflow/pkg/notifications"
)

// fakeRouter records every message sent.
type fakeRouter struct {
	mu       sync.Mutex
	messages []string
	titles   []string
	errs     []error
}

func (r *fakeRouter) Send(message string, params *shoutrrrTypes.Params) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, message)

	if params != nil {
		if title, found := params.Title(); found {
			r.titles = append(r.titles, title)
		}
	}

	return r.errs
}

func (r *fakeRouter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.messages...)
}

func (r *fakeRouter) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.titles...)
}

var _ = ginkgo.Describe("Notifier", func() {
	var (
		router *fakeRouter
		urls   []string
	)

	ginkgo.BeforeEach(func() {
		router = &fakeRouter{}
		urls = []string{"logger://"}
	})

	newNotifier := func(tpl string) *notifications.Notifier {
		notifier, err := notifications.NewNotifierWithRouter(
			router, urls, notifications.StaticData{Host: "kiosk"}, tpl, 0,
		)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		return notifier
	}

	ginkgo.It("sends every promoted event with the default template", func() {
		notifier := newNotifier("")

		notifier.OnDownloadStarted()
		notifier.OnDownloadProgress(10, 100)
		notifier.OnDownloadCompleted()
		notifier.OnUpdateFailed(errors.New("no space left"))
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.Equal([]string{
			"Update download started on kiosk",
			"Update downloaded on kiosk. Restart to finish installing",
			"Update failed on kiosk: no space left",
		}))
		gomega.Expect(router.Titles()).To(gomega.HaveEach("Update flow on kiosk"))
	})

	ginkgo.It("renders the headline template with title casing", func() {
		notifier := newNotifier("headline.v1")

		notifier.OnDownloadCompleted()
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.Equal([]string{"Download Completed (kiosk)"}))
	})

	ginkgo.It("renders the porcelain template", func() {
		notifier := newNotifier("porcelain.v1")

		notifier.OnUpdateFailed(errors.New("boom"))
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.Equal([]string{"update_failed kiosk boom"}))
	})

	ginkgo.It("renders json", func() {
		notifier := newNotifier("json.v1")

		notifier.OnDownloadStarted()
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.HaveLen(1))
		gomega.Expect(router.Messages()[0]).To(gomega.MatchJSON(
			`{"title":"Update flow on kiosk","host":"kiosk","event":"download_started"}`,
		))
	})

	ginkgo.It("accepts a custom template body", func() {
		notifier := newNotifier(`{{ .Event | ToUpper }}`)

		notifier.OnDownloadStarted()
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.Equal([]string{"DOWNLOAD_STARTED"}))
	})

	ginkgo.It("skips empty messages", func() {
		notifier := newNotifier(`{{ if eq .Event "update_failed" }}failed{{ end }}`)

		notifier.OnDownloadStarted()
		notifier.OnUpdateFailed(nil)
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.Equal([]string{"failed"}))
	})

	ginkgo.It("keeps running when a service fails", func() {
		router.errs = []error{errors.New("unreachable")}
		notifier := newNotifier("")

		notifier.OnDownloadStarted()
		notifier.OnDownloadCompleted()
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.HaveLen(2))
	})

	ginkgo.It("drops events after close and tolerates a second close", func() {
		notifier := newNotifier("")
		notifier.Close()

		notifier.OnDownloadStarted()
		notifier.Close()

		gomega.Expect(router.Messages()).To(gomega.BeEmpty())
	})

	ginkgo.It("rejects a broken template", func() {
		_, err := notifications.NewNotifierWithRouter(router, urls, notifications.StaticData{}, "{{ .Event", 0)
		gomega.Expect(err).To(gomega.MatchError(notifications.ErrTemplate))
	})

	ginkgo.It("requires at least one url", func() {
		_, err := notifications.NewNotifier(nil, notifications.StaticData{}, "", 0)
		gomega.Expect(err).To(gomega.MatchError(notifications.ErrNoURLs))
	})

	ginkgo.Describe("GetScheme", func() {
		ginkgo.It("extracts the scheme", func() {
			gomega.Expect(notifications.GetScheme("discord://token@id")).To(gomega.Equal("discord"))
			gomega.Expect(notifications.GetScheme("no-scheme")).To(gomega.Equal("invalid"))
			gomega.Expect(notifications.GetScheme(":x")).To(gomega.Equal("invalid"))
		})
	})

	ginkgo.Describe("GetTitle", func() {
		ginkgo.It("names the host when known", func() {
			gomega.Expect(notifications.GetTitle("")).To(gomega.Equal("Update flow"))
			gomega.Expect(notifications.GetTitle("kiosk")).To(gomega.Equal("Update flow on kiosk"))
		})
	})
})
