// Package progress forwards attempt events from the flow controller to at most one observer.
// The controller depends only on this package, never on UI code.
package progress

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Notifier holds zero or one observer. Events are not buffered: an observer
// attached late does not see earlier events.
type Notifier struct {
	mu       sync.RWMutex
	observer types.Observer
}

// NewNotifier creates a notifier without an observer.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SetObserver replaces the current observer. Passing nil detaches it.
func (n *Notifier) SetObserver(observer types.Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.observer = observer
	logrus.WithField("attached", observer != nil).Debug("Progress observer changed")
}

// HasObserver reports whether an observer is attached.
func (n *Notifier) HasObserver() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.observer != nil
}

// HasEventObserver reports whether the attached observer receives promoted events.
func (n *Notifier) HasEventObserver() bool {
	_, ok := n.current().(types.EventObserver)

	return ok
}

// Notify forwards a progress event.
//
// Returns:
//   - bool: True if an observer received the event.
func (n *Notifier) Notify(event types.ProgressEvent) bool {
	observer := n.current()

	clog := logrus.WithFields(logrus.Fields{
		"bytes_downloaded": event.BytesDownloaded,
		"total_bytes":      event.TotalBytes,
	})

	if observer == nil {
		clog.Debug("Update downloading without observer")

		return false
	}

	clog.Debug("Update downloading")
	observer.OnDownloadProgress(event.BytesDownloaded, event.TotalBytes)

	return true
}

// AnnounceDownloadStart signals that the first bytes of the update arrived.
// Observers that do not implement types.EventObserver only see the log line.
func (n *Notifier) AnnounceDownloadStart() bool {
	logrus.Info("Update download started")

	return n.emit(func(o types.EventObserver) { o.OnDownloadStarted() })
}

// AnnounceDownloaded signals that the update is downloaded and waits for the user to finalize it.
func (n *Notifier) AnnounceDownloaded() bool {
	logrus.Info("Update downloaded, waiting for finalization")

	return n.emit(func(o types.EventObserver) { o.OnDownloadCompleted() })
}

// AnnounceFailed signals that the attempt ended without installing an update.
func (n *Notifier) AnnounceFailed(err error) bool {
	logrus.WithError(err).Warn("Update attempt failed")

	return n.emit(func(o types.EventObserver) { o.OnUpdateFailed(err) })
}

func (n *Notifier) emit(fn func(types.EventObserver)) bool {
	observer, ok := n.current().(types.EventObserver)
	if !ok {
		return false
	}

	fn(observer)

	return true
}

func (n *Notifier) current() types.Observer {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.observer
}
