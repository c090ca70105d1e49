// -- internal/humanoid/keyboard.go --
package humanoid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Tap presses and releases a key once.
func (h *Humanoid) Tap(ctx context.Context, key Key) error {
	if err := h.executor.PressAndRelease(ctx, key); err != nil {
		return fmt.Errorf("humanoid: failed to tap key %q: %w", key, err)
	}
	return nil
}

// Hold keeps a key down for d. The key is released even when the wait is cut short,
// so a cancelled context never leaves the character walking.
func (h *Humanoid) Hold(ctx context.Context, key Key, d time.Duration) error {
	if err := h.executor.PressKey(ctx, key); err != nil {
		return fmt.Errorf("humanoid: failed to press key %q: %w", key, err)
	}

	sleepErr := h.executor.Sleep(ctx, d)

	// Release with a fresh context; ctx may already be done.
	releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.executor.ReleaseKey(releaseCtx, key); err != nil {
		h.logger.Error("Failed to release held key", zap.String("key", string(key)), zap.Error(err))
		if sleepErr == nil {
			return fmt.Errorf("humanoid: failed to release key %q: %w", key, err)
		}
	}
	return sleepErr
}
