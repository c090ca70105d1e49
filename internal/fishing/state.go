// Package fishing implements the reactive state dispatcher of the fishing agent.
//
// Each world state reported by the external classifier is mapped to exactly one
// handler. Handlers run one at a time and thread an explicit Session through every
// call, so counters and timers never live in hidden package state.
package fishing

import "strings"

// State is a world signal produced by the screen classifier.
type State int

const (
	// StateUnknown is never produced by the classifier; it is what unrecognized
	// input parses to, and the dispatcher drops it.
	StateUnknown State = iota
	StateIdle
	StateLookaway
	StateLooking
	StateDepleted
	StateNoBait
	StateFishing
	StateReelIn
	StateLoot
	StateInvFull
	StateFight
	StateDead
)

// String returns the classifier's name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLookaway:
		return "LOOKAWAY"
	case StateLooking:
		return "LOOKING"
	case StateDepleted:
		return "DEPLETED"
	case StateNoBait:
		return "NOBAIT"
	case StateFishing:
		return "FISHING"
	case StateReelIn:
		return "REELIN"
	case StateLoot:
		return "LOOT"
	case StateInvFull:
		return "INVFULL"
	case StateFight:
		return "FIGHT"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// AllStates lists every recognized state in declaration order.
func AllStates() []State {
	return []State{
		StateIdle, StateLookaway, StateLooking, StateDepleted, StateNoBait, StateFishing,
		StateReelIn, StateLoot, StateInvFull, StateFight, StateDead,
	}
}

// ParseState maps a classifier label to a State. Matching ignores case and
// surrounding whitespace; anything else yields StateUnknown.
func ParseState(label string) State {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, s := range AllStates() {
		if s.String() == label {
			return s
		}
	}
	return StateUnknown
}
