// Package notify delivers user-facing notifications: log lines, remote messages over
// AMQP and a local audible alert. Every sink is fire-and-forget; delivery failures are
// logged and never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier is the notification sink of the agent.
type Notifier interface {
	Notify(ctx context.Context, msg string)
	PlayAlert(ctx context.Context)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg string) {
	n.logger.Info("Notification", zap.String("message", msg))
}

func (n *LogNotifier) PlayAlert(context.Context) {
	n.logger.Debug("Alert")
}

// Multi fans every call out to all of its notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) {
	for _, n := range m {
		n.Notify(ctx, msg)
	}
}

func (m Multi) PlayAlert(ctx context.Context) {
	for _, n := range m {
		n.PlayAlert(ctx)
	}
}

// Throttled limits how often each distinct message reaches the wrapped notifier.
// Repeats over the limit are dropped, not delayed, so a flapping classifier cannot
// flood the remote queue, while a message of a new kind always gets through. Alerts
// pass through unthrottled.
type Throttled struct {
	next   Notifier
	limit  rate.Limit
	burst  int
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottled allows perMinute repeats of a message per minute with the given burst.
// A non-positive perMinute disables throttling.
func NewThrottled(next Notifier, perMinute float64, burst int, logger *zap.Logger) *Throttled {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:     next,
		limit:    limit,
		burst:    burst,
		logger:   logger.Named("notify"),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *Throttled) limiter(msg string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[msg]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[msg] = l
	}
	return l
}

func (t *Throttled) Notify(ctx context.Context, msg string) {
	if !t.limiter(msg).Allow() {
		t.logger.Debug("Dropping repeated notification", zap.String("message", msg))
		return
	}
	t.next.Notify(ctx, msg)
}

func (t *Throttled) PlayAlert(ctx context.Context) {
	t.next.PlayAlert(ctx)
}
