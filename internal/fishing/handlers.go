package fishing

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/humanoid"
)

// reelSettle absorbs the catch animation before further states are acted on.
const reelSettle = 500 * time.Millisecond

func (d *Dispatcher) onIdle(ctx context.Context, s Session) Session {
	if s.PreviousState == StateFishing || s.PreviousState == StateReelIn {
		d.logger.Info("Fishing interrupted", zap.Stringer("previous", s.PreviousState))
	}
	if d.prefs.Sound {
		d.notifier.PlayAlert(ctx)
	}
	return s
}

func (d *Dispatcher) onLookaway(_ context.Context, s Session) Session {
	return s
}

// onLooking casts the rod.
func (d *Dispatcher) onLooking(ctx context.Context, s Session) Session {
	d.press(ctx, d.prefs.ActionKey, 0, -1)
	return s
}

func (d *Dispatcher) onDepleted(ctx context.Context, s Session) Session {
	d.logger.Info("Hole depleted", zap.Int("fish_caught", s.FishCaught))
	if s.FishCaught == 0 {
		return s
	}

	now := d.now()
	report := HoleReport{
		ID:              uuid.New(),
		FishCaught:      s.FishCaught,
		TotalFishCaught: s.TotalFishCaught,
		Duration:        now.Sub(s.HoleStartTime),
		FishTimes:       slices.Clone(s.FishTimes),
		ReportedAt:      now,
	}
	if d.reporter != nil {
		if err := d.reporter.ReportHoleDepleted(ctx, report); err != nil {
			d.logger.Warn("Failed to report depleted hole", zap.Stringer("report_id", report.ID), zap.Error(err))
		}
	}

	// FishTimes is reset on the next cast into a fresh hole.
	s.FishCaught = 0
	return s
}

func (d *Dispatcher) onFishing(_ context.Context, s Session) Session {
	now := d.now()
	s.StickInitTime = now
	s.FishingStarted = true
	if s.FishCaught == 0 {
		s.HoleStartTime = now
		s.FishTimes = nil
	}
	return s
}

func (d *Dispatcher) onReelIn(ctx context.Context, s Session) Session {
	s.FishCaught++
	s.TotalFishCaught++

	hook := d.now().Sub(s.StickInitTime)
	if hook < 0 {
		hook = 0
	}
	s.FishTimes = append(s.FishTimes, hook)
	d.logger.Info("Hooked a fish",
		zap.Int("caught", s.FishCaught),
		zap.Duration("hook_latency", hook.Round(10*time.Millisecond)),
		zap.Int("total", s.TotalFishCaught))

	d.press(ctx, d.prefs.ActionKey, 0, reelSettle)
	return s
}

func (d *Dispatcher) onLoot(ctx context.Context, s Session) Session {
	d.press(ctx, d.prefs.CollectKey, 0, 0)
	return s
}

// alerting builds a handler that only logs and forwards msg to the notifier.
func (d *Dispatcher) alerting(msg string) handler {
	return func(ctx context.Context, s Session) Session {
		d.logger.Info(msg)
		d.notifier.Notify(ctx, msg)
		return s
	}
}

// press waits, taps key, and waits again. A negative after skips the second wait.
// Failures are logged; the session carries on with the next state.
func (d *Dispatcher) press(ctx context.Context, key humanoid.Key, before, after time.Duration) {
	if err := d.human.Wait(ctx, before); err != nil {
		d.logger.Debug("Reaction wait interrupted", zap.Error(err))
		return
	}
	if err := d.human.Tap(ctx, key); err != nil {
		d.logger.Error("Failed to press key", zap.String("key", string(key)), zap.Error(err))
		return
	}
	if after < 0 {
		return
	}
	if err := d.human.Wait(ctx, after); err != nil {
		d.logger.Debug("Reaction wait interrupted", zap.Error(err))
	}
}
