// Package hotkey turns raw key presses into calls of dynamically bound callbacks.
//
// A producer goroutine reads from a KeySource and appends recognized keys to an
// ordered, unbounded queue. A consumer goroutine takes keys off the queue one by one
// and runs whatever callback is bound to them at that moment.
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrStopped is returned by Start once the loop has been stopped.
	ErrStopped = errors.New("hotkey: loop stopped")
	// ErrRunning is returned by Start when the loop is already running.
	ErrRunning = errors.New("hotkey: loop already running")
)

// Callback is invoked on the consumer goroutine when its key is pressed.
type Callback func(ctx context.Context)

// KeySource yields pressed keys. Next blocks until a key is pressed or ctx is done.
// It returns io.EOF once the source is exhausted.
type KeySource interface {
	Next(ctx context.Context) (Key, error)
}

// Alerter plays an audible cue before a callback runs.
type Alerter interface {
	PlayAlert(ctx context.Context)
}

// Loop owns the binding table and the producer/consumer pair.
type Loop struct {
	source   KeySource
	logger   *zap.Logger
	cooldown time.Duration

	alerter      Alerter
	alertEnabled func(ctx context.Context) bool

	mu       sync.RWMutex
	bindings map[Key]Callback

	queue *queue

	stateMu        sync.Mutex
	started        bool
	stopped        bool
	cancelProducer context.CancelFunc
	group          *errgroup.Group
	stopOnce       sync.Once
}

// Option configures a Loop.
type Option func(*Loop)

// WithCooldown sets the pause after each consumed key. Zero disables it.
func WithCooldown(d time.Duration) Option {
	return func(l *Loop) { l.cooldown = d }
}

// WithAlert plays an alert before each bound callback whenever enabled reports true.
// enabled is consulted on every key so toggling the preference takes effect at once.
func WithAlert(a Alerter, enabled func(ctx context.Context) bool) Option {
	return func(l *Loop) {
		l.alerter = a
		l.alertEnabled = enabled
	}
}

// NewLoop creates a loop with an empty binding for every known key.
func NewLoop(source KeySource, logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		source:   source,
		logger:   logger.Named("hotkey"),
		bindings: make(map[Key]Callback, len(AllKeys())),
		queue:    newQueue(),
	}
	for _, k := range AllKeys() {
		l.bindings[k] = nil
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Hook binds cb to key, replacing any previous binding.
func (l *Loop) Hook(key Key, cb Callback) {
	if !key.Known() {
		l.logger.Warn("Ignoring hook for unknown key", zap.Int("key", int(key)))
		return
	}
	l.mu.Lock()
	l.bindings[key] = cb
	l.mu.Unlock()
}

// Free clears the binding of key.
func (l *Loop) Free(key Key) {
	if !key.Known() {
		return
	}
	l.mu.Lock()
	l.bindings[key] = nil
	l.mu.Unlock()
}

// Bound reports whether key currently has a callback.
func (l *Loop) Bound(key Key) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bindings[key] != nil
}

func (l *Loop) binding(key Key) Callback {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bindings[key]
}

// Start launches the producer and the consumer. Cancelling ctx stops the loop the
// same way Stop does.
func (l *Loop) Start(ctx context.Context) error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.stopped {
		return ErrStopped
	}
	if l.started {
		return ErrRunning
	}
	l.started = true

	producerCtx, cancel := context.WithCancel(ctx)
	l.cancelProducer = cancel
	l.group = new(errgroup.Group)
	l.group.Go(func() error { return l.produce(producerCtx) })
	l.group.Go(func() error {
		l.consume(ctx)
		return nil
	})
	context.AfterFunc(ctx, l.Stop)

	l.logger.Debug("Hotkey loop started")
	return nil
}

// Stop halts the producer and queues the stop event behind every key already queued.
// It is idempotent and never blocks.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.stateMu.Lock()
		l.stopped = true
		cancel := l.cancelProducer
		l.stateMu.Unlock()

		if cancel != nil {
			cancel()
		}
		l.queue.push(event{stop: true})
		l.logger.Debug("Hotkey loop stop requested")
	})
}

// Wait blocks until both goroutines have exited and returns the producer's error, if any.
func (l *Loop) Wait() error {
	l.stateMu.Lock()
	g := l.group
	l.stateMu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Publish queues key as if the source had produced it. Unknown keys are dropped.
func (l *Loop) Publish(key Key) {
	if !key.Known() {
		return
	}
	l.queue.push(event{key: key})
}

func (l *Loop) produce(ctx context.Context) error {
	for {
		key, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			// Nothing will arrive anymore; stop behind the keys already queued.
			l.logger.Error("Key source failed, stopping hotkey loop", zap.Error(err))
			l.Stop()
			return fmt.Errorf("hotkey: key source failed: %w", err)
		}
		l.Publish(key)
	}
}

func (l *Loop) consume(ctx context.Context) {
	for {
		ev := l.queue.pop()
		if ev.stop {
			l.logger.Debug("Hotkey loop ended")
			return
		}
		l.handle(ctx, ev.key)

		if l.cooldown > 0 {
			t := time.NewTimer(l.cooldown)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}
}

func (l *Loop) handle(ctx context.Context, key Key) {
	cb := l.binding(key)
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Hotkey callback panicked", zap.Stringer("key", key), zap.Any("panic", r))
		}
	}()

	if l.alerter != nil && l.alertEnabled != nil && l.alertEnabled(ctx) {
		l.alerter.PlayAlert(ctx)
	}
	cb(ctx)
}
