package fishing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/humanoid"
)

// handler runs the reaction to one state and returns the updated session.
type handler func(ctx context.Context, s Session) Session

// Dispatcher maps incoming states to handlers. At most one handler runs at a time.
type Dispatcher struct {
	human    *humanoid.Humanoid
	focus    FocusOracle
	notifier Notifier
	reporter Reporter
	logger   *zap.Logger
	now      func() time.Time

	// mu serializes handler execution and guards session and prefs.
	mu      sync.Mutex
	session Session
	prefs   Preferences

	handled atomic.Uint64
	dropped atomic.Uint64

	subMu     sync.Mutex
	subCancel context.CancelFunc
	subDone   chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the wall clock used for hook latencies and hole durations.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithReporter sets the hole telemetry sink. Without one, depleted holes are only logged.
func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) { d.reporter = r }
}

// NewDispatcher creates a dispatcher with a fresh session.
func NewDispatcher(human *humanoid.Humanoid, focus FocusOracle, notifier Notifier, prefs Preferences, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		human:    human,
		focus:    focus,
		notifier: notifier,
		logger:   logger.Named("dispatcher"),
		now:      time.Now,
		session:  Session{PreviousState: StateIdle},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.SetPreferences(prefs)
	return d
}

// SetPreferences swaps the preferences used by subsequent handlers.
func (d *Dispatcher) SetPreferences(p Preferences) {
	d.mu.Lock()
	d.prefs = p
	d.mu.Unlock()
	d.human.SetProfile(p.Reaction)
}

// Session returns a copy of the current session.
func (d *Dispatcher) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.Clone()
}

// Stats returns how many states were handled and how many were dropped as unrecognized.
func (d *Dispatcher) Stats() (handled, dropped uint64) {
	return d.handled.Load(), d.dropped.Load()
}

// Dispatch runs the handler for st to completion and records st as the previous
// state. Unrecognized states are dropped and reported as false.
func (d *Dispatcher) Dispatch(ctx context.Context, st State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.handlerFor(st)
	if h == nil {
		d.dropped.Add(1)
		d.logger.Debug("Dropping unrecognized state", zap.Int("state", int(st)))
		return false
	}

	d.session = h(ctx, d.session)
	d.session.PreviousState = st
	d.handled.Add(1)
	return true
}

func (d *Dispatcher) handlerFor(st State) handler {
	switch st {
	case StateIdle:
		return d.onIdle
	case StateLookaway:
		return d.onLookaway
	case StateLooking:
		return d.focusGated(st, d.onLooking)
	case StateDepleted:
		return d.onDepleted
	case StateNoBait:
		return d.alerting("No bait equipped!")
	case StateFishing:
		return d.onFishing
	case StateReelIn:
		return d.focusGated(st, d.onReelIn)
	case StateLoot:
		return d.onLoot
	case StateInvFull:
		return d.alerting("Inventory full!")
	case StateFight:
		return d.alerting("FIGHTING!")
	case StateDead:
		return d.alerting("Character is dead!")
	default:
		return nil
	}
}

// focusGated skips h, leaving the session untouched, unless the game window has focus.
func (d *Dispatcher) focusGated(st State, h handler) handler {
	return func(ctx context.Context, s Session) Session {
		if !d.focus.IsTargetFocused(ctx) {
			d.logger.Warn("Target window is not focused, skipping action", zap.Stringer("state", st))
			return s
		}
		return h(ctx, s)
	}
}
