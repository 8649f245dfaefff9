package mocks

import (
	"sync"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// RecordingObserver is a types.EventObserver that records every event in order.
type RecordingObserver struct {
	mu     sync.Mutex
	events []string

	Progress  []types.ProgressEvent
	Started   int
	Completed int
	Failures  []error
}

// OnDownloadProgress implements types.Observer.
func (o *RecordingObserver) OnDownloadProgress(bytesDownloaded, totalBytes uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Progress = append(o.Progress, types.ProgressEvent{BytesDownloaded: bytesDownloaded, TotalBytes: totalBytes})
	o.events = append(o.events, "progress")
}

// OnDownloadStarted implements types.EventObserver.
func (o *RecordingObserver) OnDownloadStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Started++
	o.events = append(o.events, "started")
}

// OnDownloadCompleted implements types.EventObserver.
func (o *RecordingObserver) OnDownloadCompleted() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Completed++
	o.events = append(o.events, "completed")
}

// OnUpdateFailed implements types.EventObserver.
func (o *RecordingObserver) OnUpdateFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Failures = append(o.Failures, err)
	o.events = append(o.events, "failed")
}

// Events returns the ordered event names.
func (o *RecordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.events...)
}

// Counts returns started, completed and progress counts under the lock.
func (o *RecordingObserver) Counts() (started, completed, progress int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.Started, o.Completed, len(o.Progress)
}
