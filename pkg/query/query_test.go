package query_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholas-fedor/updateflow/pkg/query"
	"github.com/nicholas-fedor/updateflow/pkg/types"
	"github.com/nicholas-fedor/updateflow/pkg/types/mocks"
)

var errUnreachable = errors.New("service unreachable")

func init() {
	logrus.SetOutput(io.Discard)
}

func validMetadata() types.UpdateMetadata {
	return types.UpdateMetadata{
		Availability:      types.AvailabilityAvailable,
		AllowedStrategies: types.NewStrategySet(types.StrategySilent),
		StalenessDays:     types.Days(2),
		AvailableVersion:  "1.4.0",
	}
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	service := mocks.NewMockService(mocks.QueryResponse{Metadata: validMetadata()})

	select {
	case result := <-query.New(service).Fetch(context.Background()):
		require.NoError(t, result.Err)
		assert.Equal(t, validMetadata(), result.Metadata)
	case <-time.After(time.Second):
		t.Fatal("fetch did not settle")
	}
}

func TestFetch_EachCallIsANewRequest(t *testing.T) {
	t.Parallel()

	service := mocks.NewMockService()
	q := query.New(service)

	<-q.Fetch(context.Background())
	<-q.Fetch(context.Background())

	assert.Equal(t, 2, service.Queries())
}

func TestFetch_ServiceError(t *testing.T) {
	t.Parallel()

	service := mocks.NewMockService(mocks.QueryResponse{Err: errUnreachable})

	result := <-query.New(service).Fetch(context.Background())
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, types.ErrQuery)
	assert.ErrorIs(t, result.Err, errUnreachable)
}

func TestFetch_ContextCancelledWhileHung(t *testing.T) {
	t.Parallel()

	service := mocks.NewMockService()
	service.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	results := query.New(service).Fetch(ctx)
	cancel()

	result := <-results
	assert.ErrorIs(t, result.Err, types.ErrQuery)
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(m *types.UpdateMetadata)
		wantErr bool
	}{
		{name: "valid", mutate: func(*types.UpdateMetadata) {}},
		{name: "no update", mutate: func(m *types.UpdateMetadata) { m.Availability = types.AvailabilityNoUpdate }},
		{name: "unknown availability", mutate: func(m *types.UpdateMetadata) { m.Availability = types.AvailabilityUnknown }, wantErr: true},
		{name: "out of range availability", mutate: func(m *types.UpdateMetadata) { m.Availability = 42 }, wantErr: true},
		{name: "out of range status", mutate: func(m *types.UpdateMetadata) { m.InstallStatus = 9 }, wantErr: true},
		{name: "negative staleness", mutate: func(m *types.UpdateMetadata) { m.StalenessDays = types.Days(-1) }, wantErr: true},
		{name: "zero staleness", mutate: func(m *types.UpdateMetadata) { m.StalenessDays = types.Days(0) }},
		{name: "bad version", mutate: func(m *types.UpdateMetadata) { m.AvailableVersion = "not-a-version!" }, wantErr: true},
		{name: "invalid strategy", mutate: func(m *types.UpdateMetadata) { m.AllowedStrategies = types.NewStrategySet(7) }, wantErr: true},
		{name: "overflowing progress", mutate: func(m *types.UpdateMetadata) { m.BytesDownloaded, m.TotalBytes = 20, 10 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta := validMetadata()
			tt.mutate(&meta)

			err := query.Validate(meta)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetch_MalformedIsQueryError(t *testing.T) {
	t.Parallel()

	meta := validMetadata()
	meta.StalenessDays = types.Days(-3)
	service := mocks.NewMockService(mocks.QueryResponse{Metadata: meta})

	_, err := query.New(service).Do(context.Background())
	assert.ErrorIs(t, err, types.ErrQuery)
}

func TestIsNewer(t *testing.T) {
	t.Parallel()

	assert.True(t, query.IsNewer("1.2.3", "1.3.0"))
	assert.False(t, query.IsNewer("1.3.0", "1.3.0"))
	assert.False(t, query.IsNewer("2.0.0", "1.9.9"))
	assert.False(t, query.IsNewer("garbage!", "1.0.0"))
}
