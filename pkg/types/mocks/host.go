package mocks

import "sync/atomic"

// MockHost is a types.Host whose availability can be toggled.
type MockHost struct {
	HostName string
	gone     atomic.Bool
}

// NewMockHost creates an available host.
func NewMockHost(name string) *MockHost {
	return &MockHost{HostName: name}
}

// Name implements types.Host.
func (h *MockHost) Name() string { return h.HostName }

// Available implements types.Host.
func (h *MockHost) Available() bool { return !h.gone.Load() }

// Destroy marks the host as gone.
func (h *MockHost) Destroy() { h.gone.Store(true) }
