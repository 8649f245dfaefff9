package types

// ProgressEvent reports download progress for the current attempt.
type ProgressEvent struct {
	BytesDownloaded uint64
	TotalBytes      uint64
}

// InstallState is the payload the update service pushes to a registered listener.
type InstallState struct {
	Status          InstallStatus
	BytesDownloaded uint64
	TotalBytes      uint64
}

// Progress extracts the progress counters from the state.
func (s InstallState) Progress() ProgressEvent {
	return ProgressEvent{BytesDownloaded: s.BytesDownloaded, TotalBytes: s.TotalBytes}
}
