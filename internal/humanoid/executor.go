// Filename: internal/humanoid/executor.go
package humanoid

import (
	"context"
	"time"
)

// Executor defines the contract for the input backend that actually reaches the game.
// It is the seam that lets every timing and input path be exercised without a
// display server.
type Executor interface {
	// Sleep pauses execution for a given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error

	// PressKey pushes a key down and leaves it held.
	PressKey(ctx context.Context, key Key) error

	// ReleaseKey lets go of a held key.
	ReleaseKey(ctx context.Context, key Key) error

	// PressAndRelease taps a key.
	PressAndRelease(ctx context.Context, key Key) error

	// MoveMouseRelative moves the pointer (and so the camera) by a relative offset.
	MoveMouseRelative(ctx context.Context, delta MouseDelta) error
}

// SleepContext blocks for d or until ctx is done, whichever comes first.
// Backends without their own notion of time can use it for Sleep.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
