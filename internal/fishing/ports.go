package fishing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FocusOracle reports whether the game window currently has input focus.
type FocusOracle interface {
	IsTargetFocused(ctx context.Context) bool
}

// Notifier delivers user-facing messages. Implementations swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, msg string)
	PlayAlert(ctx context.Context)
}

// HoleReport summarises a depleted hole.
type HoleReport struct {
	ID              uuid.UUID
	FishCaught      int
	TotalFishCaught int
	Duration        time.Duration
	FishTimes       []time.Duration
	ReportedAt      time.Time
}

// Reporter receives hole telemetry.
type Reporter interface {
	ReportHoleDepleted(ctx context.Context, report HoleReport) error
}

// Feed is a blocking source of classified states.
type Feed interface {
	Next(ctx context.Context) (State, error)
}

// CurrentStater is implemented by feeds that know the most recently classified state.
type CurrentStater interface {
	Current(ctx context.Context) (State, bool)
}
