package notifications

import (
	"time"

	shoutrrrTypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// Router is exported for the external test package.
type Router interface {
	Send(message string, params *shoutrrrTypes.Params) []error
}

// NewNotifierWithRouter creates a notifier around a fake router.
func NewNotifierWithRouter(
	sender Router,
	urls []string,
	data StaticData,
	tplString string,
	delay time.Duration,
) (*Notifier, error) {
	return newNotifier(sender, urls, data, tplString, delay)
}

// ErrNoURLs mirrors errNoURLs.
var ErrNoURLs = errNoURLs

// ErrTemplate mirrors errTemplate.
var ErrTemplate = errTemplate
