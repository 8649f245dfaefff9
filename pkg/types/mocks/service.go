// Package mocks provides hand-written fakes of the update flow collaborators for tests.
package mocks

import (
	"context"
	"sync"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// QueryResponse is one scripted answer of MockService.QueryUpdateInfo.
type QueryResponse struct {
	Metadata types.UpdateMetadata
	Err      error
}

// Execution records one ExecuteStrategy call.
type Execution struct {
	Host     string
	Strategy types.Strategy
	Token    string
	Metadata types.UpdateMetadata
}

// MockService is a scriptable types.UpdateService.
//
// Queries are answered from a FIFO of responses; once the FIFO is drained the
// Fallback response is returned. When Gate is set, every query blocks until a
// value is received from it or the context ends.
type MockService struct {
	mu sync.Mutex

	responses []QueryResponse
	Fallback  QueryResponse
	Gate      chan struct{}

	ExecuteErr  error
	RegisterErr error
	FinalizeErr error

	queries    int
	executions []Execution
	finalized  int

	nextID       int
	listeners    map[int]types.InstallStateListener
	registered   int
	unregistered int
}

// NewMockService creates a service whose fallback reports no update.
func NewMockService(responses ...QueryResponse) *MockService {
	return &MockService{
		responses: responses,
		Fallback: QueryResponse{
			Metadata: types.UpdateMetadata{Availability: types.AvailabilityNoUpdate},
		},
		listeners: make(map[int]types.InstallStateListener),
	}
}

// Respond appends scripted query responses.
func (s *MockService) Respond(responses ...QueryResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responses = append(s.responses, responses...)
}

// QueryUpdateInfo implements types.UpdateService.
func (s *MockService) QueryUpdateInfo(ctx context.Context) (types.UpdateMetadata, error) {
	s.mu.Lock()
	gate := s.Gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return types.UpdateMetadata{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries++

	response := s.Fallback
	if len(s.responses) > 0 {
		response = s.responses[0]
		s.responses = s.responses[1:]
	}

	return response.Metadata, response.Err
}

// ExecuteStrategy implements types.UpdateService.
func (s *MockService) ExecuteStrategy(
	_ context.Context,
	host types.Host,
	metadata types.UpdateMetadata,
	strategy types.Strategy,
	token string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ""
	if host != nil {
		name = host.Name()
	}

	s.executions = append(s.executions, Execution{
		Host:     name,
		Strategy: strategy,
		Token:    token,
		Metadata: metadata,
	})

	return s.ExecuteErr
}

// RegisterProgressListener implements types.UpdateService.
func (s *MockService) RegisterProgressListener(fn types.InstallStateListener) (types.ListenerRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RegisterErr != nil {
		return nil, s.RegisterErr
	}

	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.registered++

	return &registration{service: s, id: id}, nil
}

// FinalizeInstalledUpdate implements types.UpdateService.
func (s *MockService) FinalizeInstalledUpdate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalized++

	return s.FinalizeErr
}

// Emit delivers state to every registered listener on the calling goroutine.
func (s *MockService) Emit(state types.InstallState) {
	s.mu.Lock()
	listeners := make([]types.InstallStateListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// Queries returns the number of completed queries.
func (s *MockService) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queries
}

// Executions returns a copy of the recorded strategy requests.
func (s *MockService) Executions() []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Execution(nil), s.executions...)
}

// Finalized returns the number of FinalizeInstalledUpdate calls.
func (s *MockService) Finalized() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finalized
}

// ActiveListeners returns the number of listeners currently registered.
func (s *MockService) ActiveListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.listeners)
}

// Unregistered returns how many registrations were revoked.
func (s *MockService) Unregistered() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unregistered
}

type registration struct {
	service *MockService
	id      int
	once    sync.Once
}

func (r *registration) Unregister() {
	r.once.Do(func() {
		r.service.mu.Lock()
		defer r.service.mu.Unlock()

		delete(r.service.listeners, r.id)
		r.service.unregistered++
	})
}

// Registered returns how many listeners were ever registered.
func (s *MockService) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.registered
}
