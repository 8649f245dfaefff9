package httpservice

import (
	"errors"
	"fmt"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Errors for decoding service payloads.
var (
	// errUnknownAvailability indicates an availability value outside the protocol.
	errUnknownAvailability = errors.New("unknown availability")
	// errUnknownInstallStatus indicates an install status outside the protocol.
	errUnknownInstallStatus = errors.New("unknown install status")
)

// updateInfo is the payload of GET /v1/update-info.
type updateInfo struct {
	Availability      string   `json:"availability"`
	AllowedStrategies []string `json:"allowed_strategies"`
	StalenessDays     *int     `json:"staleness_days,omitempty"`
	InstallStatus     string   `json:"install_status,omitempty"`
	AvailableVersion  string   `json:"available_version,omitempty"`
	BytesDownloaded   uint64   `json:"bytes_downloaded,omitempty"`
	TotalBytes        uint64   `json:"total_bytes,omitempty"`
}

// installState is the payload of GET /v1/install-state.
type installState struct {
	Status          string `json:"status"`
	BytesDownloaded uint64 `json:"bytes_downloaded"`
	TotalBytes      uint64 `json:"total_bytes"`
}

// executeRequest is the body of POST /v1/execute.
type executeRequest struct {
	Strategy string `json:"strategy"`
	Token    string `json:"token"`
	Host     string `json:"host"`
	Version  string `json:"version,omitempty"`
}

// errorResponse is the body the service returns with a non-2xx status.
type errorResponse struct {
	Error string `json:"error"`
}

func parseAvailability(value string) (types.Availability, error) {
	switch value {
	case "no_update", "":
		return types.AvailabilityNoUpdate, nil
	case "available":
		return types.AvailabilityAvailable, nil
	case "in_progress":
		return types.AvailabilityInProgress, nil
	default:
		return types.AvailabilityUnknown, fmt.Errorf("%w: %q", errUnknownAvailability, value)
	}
}

func parseInstallStatus(value string) (types.InstallStatus, error) {
	switch value {
	case "unknown", "":
		return types.InstallStatusUnknown, nil
	case "downloading":
		return types.InstallStatusDownloading, nil
	case "downloaded":
		return types.InstallStatusDownloaded, nil
	case "failed":
		return types.InstallStatusFailed, nil
	case "installed":
		return types.InstallStatusInstalled, nil
	default:
		return types.InstallStatusUnknown, fmt.Errorf("%w: %q", errUnknownInstallStatus, value)
	}
}

// toMetadata converts a payload into metadata.
func (u updateInfo) toMetadata() (types.UpdateMetadata, error) {
	availability, err := parseAvailability(u.Availability)
	if err != nil {
		return types.UpdateMetadata{}, err
	}

	status, err := parseInstallStatus(u.InstallStatus)
	if err != nil {
		return types.UpdateMetadata{}, err
	}

	strategies := types.NewStrategySet()

	for _, name := range u.AllowedStrategies {
		strategy, err := types.ParseStrategy(name)
		if err != nil {
			return types.UpdateMetadata{}, err
		}

		strategies[strategy] = struct{}{}
	}

	return types.UpdateMetadata{
		Availability:      availability,
		AllowedStrategies: strategies,
		StalenessDays:     u.StalenessDays,
		InstallStatus:     status,
		AvailableVersion:  u.AvailableVersion,
		BytesDownloaded:   u.BytesDownloaded,
		TotalBytes:        u.TotalBytes,
	}, nil
}

func (s installState) toInstallState() (types.InstallState, error) {
	status, err := parseInstallStatus(s.Status)
	if err != nil {
		return types.InstallState{}, err
	}

	return types.InstallState{
		Status:          status,
		BytesDownloaded: s.BytesDownloaded,
		TotalBytes:      s.TotalBytes,
	}, nil
}
