package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Errors for lifecycle signal handling.
var (
	// errHostDestroyed indicates a lifecycle signal after the host was destroyed.
	errHostDestroyed = errors.New("host already destroyed")
)

// Controller is the part of the flow controller driven by host lifecycle signals.
type Controller interface {
	Start(ctx context.Context, host types.Host) error
	OnForegroundResume(ctx context.Context, host types.Host)
	OnTeardown()
}

// Bridge forwards host lifecycle signals to a controller in order.
type Bridge struct {
	mu         sync.Mutex
	controller Controller
	current    types.Host
	destroyed  bool
}

// NewBridge creates a bridge holding the given host.
//
// Parameters:
//   - controller: Controller receiving lifecycle calls.
//   - host: Initially attached host, may be nil.
//
// Returns:
//   - *Bridge: Bridge ready to forward signals.
func NewBridge(controller Controller, host types.Host) *Bridge {
	return &Bridge{controller: controller, current: host}
}

// Attach swaps the current host, for example after the host window was recreated.
// It is ignored once the host was destroyed.
func (b *Bridge) Attach(host types.Host) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		logrus.Debug("Ignoring host attach after destroy")

		return
	}

	b.current = host
	logrus.WithField("host", hostName(host)).Debug("Attached host")
}

// Host returns the handle passed to the controller.
func (b *Bridge) Host() types.Host {
	return handle{bridge: b}
}

// HostStarted starts the update flow.
//
// Returns:
//   - error: Non-nil if the host was destroyed or the controller refused to start.
func (b *Bridge) HostStarted(ctx context.Context) error {
	if b.isDestroyed() {
		return errHostDestroyed
	}

	logrus.WithField("host", b.Host().Name()).Debug("Host started")

	return b.controller.Start(ctx, b.Host())
}

// HostResumed forwards a foreground resume.
func (b *Bridge) HostResumed(ctx context.Context) {
	if b.isDestroyed() {
		logrus.Debug("Ignoring resume of destroyed host")

		return
	}

	logrus.WithField("host", b.Host().Name()).Debug("Host resumed")
	b.controller.OnForegroundResume(ctx, b.Host())
}

// HostDestroyed detaches the host and tears the controller down. Only the
// first call has an effect.
func (b *Bridge) HostDestroyed() {
	b.mu.Lock()

	if b.destroyed {
		b.mu.Unlock()
		logrus.Debug("Host already destroyed")

		return
	}

	name := hostName(b.current)
	b.destroyed = true
	b.current = nil
	b.mu.Unlock()

	logrus.WithField("host", name).Debug("Host destroyed")
	b.controller.OnTeardown()
}

func (b *Bridge) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.destroyed
}

func (b *Bridge) attached() types.Host {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current
}

// handle resolves the attached host at call time.
type handle struct {
	bridge *Bridge
}

func (h handle) Name() string {
	return hostName(h.bridge.attached())
}

func (h handle) Available() bool {
	host := h.bridge.attached()

	return host != nil && host.Available()
}

func hostName(host types.Host) string {
	if host == nil {
		return ""
	}

	return host.Name()
}
