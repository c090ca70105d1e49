package fishing

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// ErrAttached is returned by Attach when the dispatcher already consumes a feed.
var ErrAttached = errors.New("fishing: dispatcher already attached to a feed")

// feedRetryDelay is how long the consumer backs off after a feed error.
const feedRetryDelay = time.Second

// Attach starts consuming feed in the background. If the feed reports that the
// current state is LOOKING, that state is dispatched right away so a cast is not
// missed while the classifier holds still.
func (d *Dispatcher) Attach(ctx context.Context, feed Feed) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if d.subCancel != nil {
		return ErrAttached
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.subCancel = cancel
	d.subDone = done

	if cs, ok := feed.(CurrentStater); ok {
		if cur, ok := cs.Current(subCtx); ok && cur == StateLooking {
			d.Dispatch(subCtx, cur)
		}
	}

	go func() {
		defer close(done)
		d.consume(subCtx, feed)
	}()
	d.logger.Info("Dispatcher attached to state feed")
	return nil
}

// Detach stops consuming the feed and waits for the in-flight handler to finish.
// It reports whether a feed was attached.
func (d *Dispatcher) Detach() bool {
	d.subMu.Lock()
	cancel, done := d.subCancel, d.subDone
	d.subCancel, d.subDone = nil, nil
	d.subMu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	d.logger.Info("Dispatcher detached from state feed")
	return true
}

// Attached reports whether a feed is being consumed.
func (d *Dispatcher) Attached() bool {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return d.subCancel != nil
}

func (d *Dispatcher) consume(ctx context.Context, feed Feed) {
	for {
		st, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				d.logger.Info("State feed exhausted")
				return
			}
			d.logger.Warn("Failed to read from state feed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(feedRetryDelay):
			}
			continue
		}
		d.Dispatch(ctx, st)
	}
}
