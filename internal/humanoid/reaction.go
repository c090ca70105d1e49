// internal/humanoid/reaction.go
package humanoid

import (
	"math/rand"
	"time"
)

// MaxReaction is the hard ceiling of any reaction delay, so the agent never looks hung.
const MaxReaction = 2500 * time.Millisecond

// Profile holds the jitter settings of the reaction timing model.
type Profile struct {
	Jitter       bool
	LowerBoundMs int
	UpperBoundMs int
}

// ReactionDelay computes how long to wait around a simulated key press: the base wait
// plus, when jitter is on and the bounds are ordered, a uniform whole number of
// milliseconds in [LowerBoundMs, UpperBoundMs). The result never exceeds MaxReaction.
func ReactionDelay(wait time.Duration, p Profile, rng *rand.Rand) time.Duration {
	var jitter time.Duration
	if p.Jitter && p.UpperBoundMs > p.LowerBoundMs {
		ms := p.LowerBoundMs + rng.Intn(p.UpperBoundMs-p.LowerBoundMs)
		jitter = time.Duration(ms) * time.Millisecond
	}

	total := wait + jitter
	if total > MaxReaction {
		return MaxReaction
	}
	if total < 0 {
		return 0
	}
	return total
}
