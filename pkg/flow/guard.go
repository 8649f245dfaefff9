package flow

import (
	"fmt"
	"sync"

	"github.com/nicholas-fedor/updateflow/pkg/types"
)

// Guard hands out at most one live controller. The host creates a single Guard per
// process and constructs controllers only through it; a torn-down controller frees
// the slot.
type Guard struct {
	mu   sync.Mutex
	live *Controller
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// NewController creates the process's controller.
//
// Parameters:
//   - service: External update service.
//   - config: Initial configuration, adjustable until Start.
//   - opts: Optional collaborators.
//
// Returns:
//   - *Controller: The new controller in StateIdle.
//   - error: ErrControllerExists if a live controller exists, ErrInvalidConfiguration for bad config.
func (g *Guard) NewController(
	service types.UpdateService,
	config types.UpdateConfiguration,
	opts ...Option,
) (*Controller, error) {
	if err := validateConfiguration(config); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.live != nil {
		return nil, fmt.Errorf("%w: %s", ErrControllerExists, g.live.Snapshot().State)
	}

	c := newController(service, config, opts...)
	c.guard = g
	g.live = c

	return c, nil
}

// Current returns the live controller, or nil.
func (g *Guard) Current() *Controller {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.live
}

func (g *Guard) release(c *Controller) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.live == c {
		g.live = nil
	}
}
