package types

import "errors"

// Errors absorbed by the update flow. They are never surfaced as panics.
var (
	// ErrQuery indicates the update service was unreachable or returned malformed data.
	ErrQuery = errors.New("update query failed")
	// ErrStrategyRequest indicates the host could not present the update UI.
	ErrStrategyRequest = errors.New("strategy request failed")
	// ErrPolicyDisallowed indicates the service does not permit the selected strategy.
	ErrPolicyDisallowed = errors.New("strategy not allowed by update service")
	// ErrHostUnavailable indicates the host handle is missing or no longer usable.
	ErrHostUnavailable = errors.New("host unavailable")
)

// errUnknownStrategy indicates a strategy name could not be parsed.
var errUnknownStrategy = errors.New("unknown update strategy")
