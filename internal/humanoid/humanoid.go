// -- internal/humanoid/humanoid.go --
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Humanoid issues game input with human-like timing on top of an Executor.
type Humanoid struct {
	executor Executor
	logger   *zap.Logger

	// mu guards the profile and the RNG, which is not safe for concurrent use.
	mu      sync.Mutex
	profile Profile
	rng     *rand.Rand
}

// New creates a new Humanoid. A nil rng gets a time-seeded one.
func New(executor Executor, profile Profile, logger *zap.Logger, rng *rand.Rand) *Humanoid {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanoid{
		executor: executor,
		logger:   logger.Named("humanoid"),
		profile:  profile,
		rng:      rng,
	}
}

// Profile returns the active jitter settings.
func (h *Humanoid) Profile() Profile {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.profile
}

// SetProfile replaces the jitter settings, typically at the start of a session.
func (h *Humanoid) SetProfile(p Profile) {
	h.mu.Lock()
	h.profile = p
	h.mu.Unlock()
}

// Delay computes (without sleeping) the reaction delay for a base wait.
func (h *Humanoid) Delay(base time.Duration) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ReactionDelay(base, h.profile, h.rng)
}

// Wait sleeps for the reaction delay of a base wait.
func (h *Humanoid) Wait(ctx context.Context, base time.Duration) error {
	d := h.Delay(base)
	h.logger.Debug("Reaction wait", zap.Duration("base", base), zap.Duration("actual", d))
	return h.executor.Sleep(ctx, d)
}

// Sleep pauses for exactly d, without jitter. Used where timing is part of a
// measurement rather than an imitation of a player.
func (h *Humanoid) Sleep(ctx context.Context, d time.Duration) error {
	return h.executor.Sleep(ctx, d)
}
