package notifications

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/sirupsen/logrus"

	shoutrrrTypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/nicholas-fedor/updateflow/pkg/notifications/templates"
	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// LocalLog is a logrus entry for the notifier's own log lines.
var LocalLog = logrus.WithField("notify", "no")

// Errors for notifier setup.
var (
	// errNoURLs indicates the notifier was created without any service URL.
	errNoURLs = errors.New("no notification URLs configured")
	// errSenderInit indicates Shoutrrr rejected the configured URLs.
	errSenderInit = errors.New("failed to initialize shoutrrr sender")
	// errTemplate indicates the configured template could not be parsed.
	errTemplate = errors.New("failed to parse notification template")
)

// messageBuffer is the number of rendered messages queued ahead of the sender.
const messageBuffer = 8

// router defines the interface for sending Shoutrrr notifications.
type router interface {
	Send(message string, params *shoutrrrTypes.Params) []error
}

// Notifier is a types.EventObserver sending attempt events through Shoutrrr.
type Notifier struct {
	urls     []string
	router   router
	template *template.Template
	params   *shoutrrrTypes.Params
	data     StaticData
	delay    time.Duration

	messages chan string
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ types.EventObserver = (*Notifier)(nil)

// GetScheme extracts the scheme part of a Shoutrrr URL.
// It returns "invalid" if no scheme is found.
func GetScheme(url string) string {
	schemeEnd := strings.Index(url, ":")
	if schemeEnd <= 0 {
		return "invalid"
	}

	return url[:schemeEnd]
}

// GetTitle builds the notification title for a host.
func GetTitle(hostname string) string {
	if hostname == "" {
		return "Update flow"
	}

	return "Update flow on " + hostname
}

// NewNotifier creates a notifier for the given Shoutrrr URLs and starts its sender goroutine.
//
// Parameters:
//   - urls: Shoutrrr service URLs.
//   - data: Static template data.
//   - tplString: Template name from the built-in set, a template body, or empty for the default.
//   - delay: Pause before each send.
//
// Returns:
//   - *Notifier: Running notifier.
//   - error: Non-nil if no URL is given, a URL is invalid, or the template does not parse.
func NewNotifier(urls []string, data StaticData, tplString string, delay time.Duration) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errNoURLs
	}

	logger := log.New(logrus.StandardLogger().WriterLevel(logrus.TraceLevel), "Shoutrrr: ", 0)

	sender, err := shoutrrr.NewSender(logger, urls...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSenderInit, err)
	}

	return newNotifier(sender, urls, data, tplString, delay)
}

func newNotifier(
	sender router,
	urls []string,
	data StaticData,
	tplString string,
	delay time.Duration,
) (*Notifier, error) {
	tpl, err := getTemplate(tplString)
	if err != nil {
		return nil, err
	}

	if data.Title == "" {
		data.Title = GetTitle(data.Host)
	}

	params := &shoutrrrTypes.Params{}
	params.SetTitle(data.Title)

	notifier := &Notifier{
		urls:     urls,
		router:   sender,
		template: tpl,
		params:   params,
		data:     data,
		delay:    delay,
		messages: make(chan string, messageBuffer),
		done:     make(chan struct{}),
	}

	go notifier.sendNotifications()

	logrus.WithField("services", strings.Join(notifier.GetNames(), ", ")).
		Debug("Using notification services")

	return notifier, nil
}

// GetNames returns the service names derived from the configured URLs.
func (n *Notifier) GetNames() []string {
	names := make([]string, len(n.urls))
	for i, u := range n.urls {
		names[i] = GetScheme(u)
	}

	return names
}

// GetURLs returns the configured service URLs.
func (n *Notifier) GetURLs() []string {
	return n.urls
}

// OnDownloadProgress implements types.Observer. Progress is never sent.
func (n *Notifier) OnDownloadProgress(bytesDownloaded, totalBytes uint64) {
	LocalLog.WithFields(logrus.Fields{
		"bytes_downloaded": bytesDownloaded,
		"total_bytes":      totalBytes,
	}).Trace("Skipping progress notification")
}

// OnDownloadStarted implements types.EventObserver.
func (n *Notifier) OnDownloadStarted() {
	n.send(Data{Event: EventDownloadStarted})
}

// OnDownloadCompleted implements types.EventObserver.
func (n *Notifier) OnDownloadCompleted() {
	n.send(Data{Event: EventDownloadCompleted})
}

// OnUpdateFailed implements types.EventObserver.
func (n *Notifier) OnUpdateFailed(err error) {
	data := Data{Event: EventUpdateFailed}
	if err != nil {
		data.Error = err.Error()
	}

	n.send(data)
}

// Close stops accepting events and waits until queued messages are sent.
func (n *Notifier) Close() {
	n.mu.Lock()

	if n.closed {
		n.mu.Unlock()

		return
	}

	n.closed = true
	close(n.messages)
	n.mu.Unlock()

	LocalLog.Info("Waiting for the notification goroutine to finish")

	<-n.done
}

func (n *Notifier) send(data Data) {
	data.StaticData = n.data

	msg, err := n.buildMessage(data)
	if err != nil {
		LocalLog.WithError(err).WithField("event", data.Event).Error("Notification template error")

		return
	}

	if msg == "" {
		LocalLog.WithField("event", data.Event).Debug("Skipping notification due to empty message")

		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		LocalLog.WithField("event", data.Event).Debug("Notifier closed, dropping notification")

		return
	}

	n.messages <- msg
}

// buildMessage renders data with the configured template.
func (n *Notifier) buildMessage(data Data) (string, error) {
	var body bytes.Buffer

	if err := n.template.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute notification template: %w", err)
	}

	return strings.TrimSpace(body.String()), nil
}

// sendNotifications processes queued messages and sends them via the router.
func (n *Notifier) sendNotifications() {
	defer close(n.done)

	for msg := range n.messages {
		time.Sleep(n.delay)

		errs := n.router.Send(msg, n.params)

		for i, err := range errs {
			if err == nil {
				continue
			}

			scheme := "unknown"
			if i < len(n.urls) {
				scheme = GetScheme(n.urls[i])
			}

			LocalLog.WithFields(logrus.Fields{
				"service": scheme,
				"index":   i,
			}).WithError(err).Error("Failed to send shoutrrr notification")
		}
	}
}

// getTemplate resolves a built-in template name or parses tplString.
func getTemplate(tplString string) (*template.Template, error) {
	tplBase := template.New("").Funcs(templates.Funcs)

	if builtin, found := commonTemplates[tplString]; found {
		logrus.WithField("template", tplString).Debug("Using common template")
		tplString = builtin
	}

	if tplString == "" {
		return template.Must(tplBase.Parse(commonTemplates["default"])), nil
	}

	tpl, err := tplBase.Parse(tplString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplate, err)
	}

	return tpl, nil
}
