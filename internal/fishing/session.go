package fishing

import (
	"slices"
	"time"
)

// Session holds the counters and timers of a fishing run.
type Session struct {
	// FishCaught counts catches in the current hole.
	FishCaught int
	// TotalFishCaught counts catches since the process started. Never decreases.
	TotalFishCaught int
	// FishTimes holds the hook latency of each catch in the current hole.
	FishTimes []time.Duration

	StickInitTime  time.Time
	HoleStartTime  time.Time
	PreviousState  State
	FishingStarted bool
}

// Clone returns a deep copy that shares no memory with s.
func (s Session) Clone() Session {
	s.FishTimes = slices.Clone(s.FishTimes)
	return s
}
