package types

import "strconv"

// Availability describes whether the update service has an update for the host.
type Availability int

const (
	// AvailabilityUnknown is the zero value and never valid in a response.
	AvailabilityUnknown Availability = iota
	// AvailabilityNoUpdate means the host runs the latest release.
	AvailabilityNoUpdate
	// AvailabilityAvailable means a newer release can be requested.
	AvailabilityAvailable
	// AvailabilityInProgress means a previously requested update was interrupted and can be resumed.
	AvailabilityInProgress
)

// String returns the lower-case name of the availability.
func (a Availability) String() string {
	switch a {
	case AvailabilityNoUpdate:
		return "no_update"
	case AvailabilityAvailable:
		return "available"
	case AvailabilityInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// InstallStatus is the install state reported by the update service.
type InstallStatus int

const (
	// InstallStatusUnknown means the service has not reported a status.
	InstallStatusUnknown InstallStatus = iota
	// InstallStatusDownloading means package bytes are being transferred.
	InstallStatusDownloading
	// InstallStatusDownloaded means the package is ready and waits for finalization.
	InstallStatusDownloaded
	// InstallStatusFailed means the download or install failed at the service.
	InstallStatusFailed
	// InstallStatusInstalled means the update has been applied.
	InstallStatusInstalled
)

// String returns the lower-case name of the install status.
func (s InstallStatus) String() string {
	switch s {
	case InstallStatusDownloading:
		return "downloading"
	case InstallStatusDownloaded:
		return "downloaded"
	case InstallStatusFailed:
		return "failed"
	case InstallStatusInstalled:
		return "installed"
	default:
		return "unknown"
	}
}

// UpdateMetadata is a read-only snapshot of the update service's view of the host.
type UpdateMetadata struct {
	Availability      Availability  // Whether an update exists.
	AllowedStrategies StrategySet   // Strategies the service permits for this update.
	StalenessDays     *int          // Days since the update became available, nil if unknown.
	InstallStatus     InstallStatus // Current install status.
	AvailableVersion  string        // Version of the pending release, empty if not reported.
	BytesDownloaded   uint64        // Bytes already transferred.
	TotalBytes        uint64        // Total package size.
}

// IsStrategyAllowed reports whether the service permits s for this update.
func (m UpdateMetadata) IsStrategyAllowed(s Strategy) bool {
	return m.AllowedStrategies.Allows(s)
}

// StalenessString renders the staleness for log fields.
func (m UpdateMetadata) StalenessString() string {
	if m.StalenessDays == nil {
		return "unknown"
	}

	return strconv.Itoa(*m.StalenessDays)
}

// Days returns a pointer to v, for populating optional day counts.
func Days(v int) *int {
	return &v
}
