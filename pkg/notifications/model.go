package notifications

// Event names used in the template data.
const (
	EventDownloadStarted   = "download_started"
	EventDownloadCompleted = "download_completed"
	EventUpdateFailed      = "update_failed"
)

// StaticData is the part of the notification template data model set upon initialization.
type StaticData struct {
	Title string `json:"title"`
	Host  string `json:"host"`
}

// Data is the notification template data model.
type Data struct {
	StaticData

	Event string `json:"event"`
	Error string `json:"error,omitempty"`
}
