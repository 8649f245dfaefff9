package cmd

import (
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/internal/util"
	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// hostObserver logs attempt events for the CLI host and forwards them to the notifier, if any.
type hostObserver struct {
	next types.EventObserver
}

var _ types.EventObserver = (*hostObserver)(nil)

func newHostObserver(next types.EventObserver) *hostObserver {
	return &hostObserver{next: next}
}

// OnDownloadProgress implements types.Observer.
func (o *hostObserver) OnDownloadProgress(bytesDownloaded, totalBytes uint64) {
	logrus.WithField("progress", util.FormatProgress(bytesDownloaded, totalBytes)).Debug("Downloading update")

	if o.next != nil {
		o.next.OnDownloadProgress(bytesDownloaded, totalBytes)
	}
}

// OnDownloadStarted implements types.EventObserver.
func (o *hostObserver) OnDownloadStarted() {
	if o.next != nil {
		o.next.OnDownloadStarted()
	}
}

// OnDownloadCompleted implements types.EventObserver.
func (o *hostObserver) OnDownloadCompleted() {
	logrus.Info("Update is ready, finalize it through the HTTP API or restart the host")

	if o.next != nil {
		o.next.OnDownloadCompleted()
	}
}

// OnUpdateFailed implements types.EventObserver.
func (o *hostObserver) OnUpdateFailed(err error) {
	if o.next != nil {
		o.next.OnUpdateFailed(err)
	}
}
