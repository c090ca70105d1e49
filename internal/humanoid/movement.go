package humanoid

import (
	"context"
	"fmt"
	"time"
)

// Turn rotates the camera with a train of identical relative mouse pulses, pausing
// after each one so the game registers them separately.
func (h *Humanoid) Turn(ctx context.Context, delta MouseDelta, pulses int, pause time.Duration) error {
	for i := 0; i < pulses; i++ {
		if err := h.executor.MoveMouseRelative(ctx, delta); err != nil {
			return fmt.Errorf("humanoid: rotation pulse %d failed: %w", i+1, err)
		}
		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}
