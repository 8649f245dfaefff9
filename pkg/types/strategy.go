package types

import (
	"fmt"
	"strings"
)

// Strategy identifies how an update is delivered to the user.
type Strategy int

const (
	// StrategySilent downloads in the background while the host stays usable.
	StrategySilent Strategy = iota + 1
	// StrategyBlocking presents a native update prompt that blocks the host until installed.
	StrategyBlocking
)

// String returns the lower-case name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategySilent:
		return "silent"
	case StrategyBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	return s == StrategySilent || s == StrategyBlocking
}

// ParseStrategy converts a strategy name into a Strategy.
//
// Parameters:
//   - name: Strategy name, case-insensitive ("silent" or "blocking").
//
// Returns:
//   - Strategy: Parsed strategy.
//   - error: Non-nil if the name is not recognized.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "silent", "flexible":
		return StrategySilent, nil
	case "blocking", "immediate":
		return StrategyBlocking, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownStrategy, name)
	}
}

// StrategySet is the set of strategies an update service permits for a pending update.
type StrategySet map[Strategy]struct{}

// NewStrategySet builds a set from the given strategies.
func NewStrategySet(strategies ...Strategy) StrategySet {
	set := make(StrategySet, len(strategies))
	for _, s := range strategies {
		set[s] = struct{}{}
	}

	return set
}

// Allows reports whether s is part of the set. A nil set allows nothing.
func (set StrategySet) Allows(s Strategy) bool {
	_, ok := set[s]

	return ok
}

// Slice returns the members of the set in a stable order.
func (set StrategySet) Slice() []Strategy {
	out := make([]Strategy, 0, len(set))
	for _, s := range []Strategy{StrategySilent, StrategyBlocking} {
		if set.Allows(s) {
			out = append(out, s)
		}
	}

	return out
}
