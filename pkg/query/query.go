// Package query wraps a single asynchronous update-info request to the update service.
// Each Fetch creates an independent pending request; nothing is cached between calls.
package query

import (
	"context"
	"errors"
	"fmt"

	goversion "github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Errors describing malformed metadata. They are always wrapped in types.ErrQuery.
var (
	errUnknownAvailability  = errors.New("unknown availability")
	errUnknownInstallStatus = errors.New("unknown install status")
	errNegativeStaleness    = errors.New("negative staleness days")
	errInvalidVersion       = errors.New("invalid available version")
	errInvalidStrategy      = errors.New("invalid allowed strategy")
	errProgressOverflow     = errors.New("downloaded bytes exceed total bytes")
)

// Result is the settled outcome of a Fetch.
type Result struct {
	Metadata types.UpdateMetadata
	Err      error // Wraps types.ErrQuery on failure.
}

// Query issues update-info requests against an update service.
type Query struct {
	service types.UpdateService
}

// New creates a Query bound to service.
func New(service types.UpdateService) *Query {
	return &Query{service: service}
}

// Fetch starts a request and returns a channel that receives exactly one Result.
//
// Parameters:
//   - ctx: Request context passed to the service.
//
// Returns:
//   - <-chan Result: Buffered channel, never closed before the result is sent.
func (q *Query) Fetch(ctx context.Context) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		metadata, err := q.Do(ctx)
		results <- Result{Metadata: metadata, Err: err}
	}()

	return results
}

// Do performs the request synchronously.
//
// Returns:
//   - types.UpdateMetadata: Validated metadata.
//   - error: Non-nil wrapping types.ErrQuery if the service failed or the response is malformed.
func (q *Query) Do(ctx context.Context) (types.UpdateMetadata, error) {
	logrus.Debug("Querying update service for update info")

	metadata, err := q.service.QueryUpdateInfo(ctx)
	if err != nil {
		return types.UpdateMetadata{}, fmt.Errorf("%w: %w", types.ErrQuery, err)
	}

	if err := Validate(metadata); err != nil {
		return types.UpdateMetadata{}, fmt.Errorf("%w: %w", types.ErrQuery, err)
	}

	logrus.WithFields(logrus.Fields{
		"availability":   metadata.Availability.String(),
		"install_status": metadata.InstallStatus.String(),
		"staleness_days": metadata.StalenessString(),
		"version":        metadata.AvailableVersion,
	}).Debug("Received update info")

	return metadata, nil
}

// Validate checks that metadata only contains values the flow understands.
//
// Parameters:
//   - metadata: Snapshot to check.
//
// Returns:
//   - error: Non-nil describing the first malformed field.
func Validate(metadata types.UpdateMetadata) error {
	switch metadata.Availability {
	case types.AvailabilityNoUpdate, types.AvailabilityAvailable, types.AvailabilityInProgress:
	default:
		return fmt.Errorf("%w: %d", errUnknownAvailability, int(metadata.Availability))
	}

	switch metadata.InstallStatus {
	case types.InstallStatusUnknown,
		types.InstallStatusDownloading,
		types.InstallStatusDownloaded,
		types.InstallStatusFailed,
		types.InstallStatusInstalled:
	default:
		return fmt.Errorf("%w: %d", errUnknownInstallStatus, int(metadata.InstallStatus))
	}

	if metadata.StalenessDays != nil && *metadata.StalenessDays < 0 {
		return fmt.Errorf("%w: %d", errNegativeStaleness, *metadata.StalenessDays)
	}

	for strategy := range metadata.AllowedStrategies {
		if !strategy.Valid() {
			return fmt.Errorf("%w: %s", errInvalidStrategy, strategy)
		}
	}

	if metadata.TotalBytes > 0 && metadata.BytesDownloaded > metadata.TotalBytes {
		return fmt.Errorf("%w: %d > %d", errProgressOverflow, metadata.BytesDownloaded, metadata.TotalBytes)
	}

	if metadata.AvailableVersion != "" {
		if _, err := goversion.NewVersion(metadata.AvailableVersion); err != nil {
			return fmt.Errorf("%w: %w", errInvalidVersion, err)
		}
	}

	return nil
}

// IsNewer reports whether available is a strictly greater version than current.
// Unparsable versions are never newer.
func IsNewer(current, available string) bool {
	currentVersion, err := goversion.NewVersion(current)
	if err != nil {
		return false
	}

	availableVersion, err := goversion.NewVersion(available)
	if err != nil {
		return false
	}

	return availableVersion.GreaterThan(currentVersion)
}
