package hotkey

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// chanSource publishes whatever the test sends; a closed channel reads as io.EOF.
type chanSource struct {
	ch  chan Key
	err error
}

func newChanSource() *chanSource { return &chanSource{ch: make(chan Key, 16)} }

func (s *chanSource) Next(ctx context.Context) (Key, error) {
	if s.err != nil {
		return KeyNone, s.err
	}
	select {
	case <-ctx.Done():
		return KeyNone, ctx.Err()
	case k, ok := <-s.ch:
		if !ok {
			return KeyNone, io.EOF
		}
		return k, nil
	}
}

type countingAlerter struct{ n atomic.Int32 }

func (a *countingAlerter) PlayAlert(context.Context) { a.n.Add(1) }

func newTestLoop(t *testing.T, src KeySource, opts ...Option) *Loop {
	t.Helper()
	return NewLoop(src, zaptest.NewLogger(t), opts...)
}

func TestKeys(t *testing.T) {
	for _, k := range AllKeys() {
		parsed, ok := ParseKey(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)
		assert.True(t, k.Known())
	}
	k, ok := ParseKey(" F9 ")
	assert.True(t, ok)
	assert.Equal(t, KeyF9, k)

	_, ok = ParseKey("f12")
	assert.False(t, ok)
	assert.False(t, KeyNone.Known())
	assert.False(t, Key(100).Known())
}

func TestLoop_BindingTableAlwaysComplete(t *testing.T) {
	l := newTestLoop(t, newChanSource())
	assert.Len(t, l.bindings, len(AllKeys()))

	l.Hook(KeyF9, func(context.Context) {})
	l.Free(KeyF9)
	l.Free(KeyF10)
	l.Hook(Key(42), func(context.Context) {})
	assert.Len(t, l.bindings, len(AllKeys()))
	for _, k := range AllKeys() {
		_, present := l.bindings[k]
		assert.True(t, present, "missing slot for %s", k)
		assert.False(t, l.Bound(k))
	}
}

func TestLoop_DispatchesBoundKeys(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newChanSource()
	l := newTestLoop(t, src)

	var f9, f10 atomic.Int32
	done := make(chan struct{})
	l.Hook(KeyF9, func(context.Context) { f9.Add(1) })
	l.Hook(KeyF7, func(context.Context) { close(done) })

	require.NoError(t, l.Start(context.Background()))
	src.ch <- KeyF9
	src.ch <- KeyF10 // unbound
	src.ch <- KeyF7

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
	}
	l.Stop()
	require.NoError(t, l.Wait())

	assert.Equal(t, int32(1), f9.Load())
	assert.Equal(t, int32(0), f10.Load())
}

func TestLoop_FreeUnbinds(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newTestLoop(t, newChanSource())
	var calls atomic.Int32
	l.Hook(KeyUp, func(context.Context) { calls.Add(1) })
	l.Free(KeyUp)

	require.NoError(t, l.Start(context.Background()))
	l.Publish(KeyUp)
	l.Stop()
	require.NoError(t, l.Wait())
	assert.Zero(t, calls.Load())
}

func TestLoop_StopDrainsQueuedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newTestLoop(t, newChanSource())
	var mu sync.Mutex
	var order []Key
	record := func(k Key) Callback {
		return func(context.Context) {
			mu.Lock()
			order = append(order, k)
			mu.Unlock()
		}
	}
	l.Hook(KeyLeft, record(KeyLeft))
	l.Hook(KeyRight, record(KeyRight))

	// Queue before the consumer exists; stop lands behind them.
	l.Publish(KeyLeft)
	l.Publish(KeyRight)
	l.Publish(KeyLeft)
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	l.Publish(KeyRight) // after the stop event, never dispatched
	require.NoError(t, l.Wait())

	assert.Equal(t, []Key{KeyLeft, KeyRight, KeyLeft}, order)
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newTestLoop(t, newChanSource())
	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrRunning)

	l.Stop()
	l.Stop()
	require.NoError(t, l.Wait())
	l.Stop()
	assert.ErrorIs(t, l.Start(context.Background()), ErrStopped)
	assert.Equal(t, 0, l.queue.len(), "a single stop event was queued and consumed")
}

func TestLoop_StopWithExitedProducer(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newChanSource()
	close(src.ch)
	l := newTestLoop(t, src)
	require.NoError(t, l.Start(context.Background()))

	// Give the producer time to see io.EOF and exit.
	time.Sleep(20 * time.Millisecond)
	l.Stop()
	require.NoError(t, l.Wait())
}

func TestLoop_ProducerErrorReported(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &chanSource{err: errors.New("device unplugged")}
	l := newTestLoop(t, src)
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	err := l.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestLoop_ProducerErrorStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &chanSource{err: errors.New("interrupted")}
	l := newTestLoop(t, src)
	require.NoError(t, l.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- l.Wait() }()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after its key source failed")
	}
}

func TestLoop_ContextCancelStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	l := newTestLoop(t, newChanSource())
	require.NoError(t, l.Start(ctx))
	cancel()
	require.NoError(t, l.Wait())
}

func TestLoop_AlertBeforeCallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	alerter := &countingAlerter{}
	var enabled atomic.Bool
	l := newTestLoop(t, newChanSource(), WithAlert(alerter, func(context.Context) bool { return enabled.Load() }))

	var alertsSeen []int32
	l.Hook(KeyDown, func(context.Context) { alertsSeen = append(alertsSeen, alerter.n.Load()) })

	l.Publish(KeyDown)
	l.Publish(KeyUp) // unbound: no alert
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	require.NoError(t, l.Wait())
	assert.Equal(t, []int32{0}, alertsSeen)

	enabled.Store(true)
	l2 := newTestLoop(t, newChanSource(), WithAlert(alerter, func(context.Context) bool { return enabled.Load() }))
	l2.Hook(KeyDown, func(context.Context) { alertsSeen = append(alertsSeen, alerter.n.Load()) })
	l2.Publish(KeyDown)
	l2.Publish(KeyUp)
	require.NoError(t, l2.Start(context.Background()))
	l2.Stop()
	require.NoError(t, l2.Wait())
	assert.Equal(t, []int32{0, 1}, alertsSeen)
	assert.Equal(t, int32(1), alerter.n.Load())
}

func TestLoop_CooldownAndPanicRecovery(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newTestLoop(t, newChanSource(), WithCooldown(30*time.Millisecond))
	var after atomic.Int32
	l.Hook(KeyF8, func(context.Context) { panic("boom") })
	l.Hook(KeyF9, func(context.Context) { after.Add(1) })

	start := time.Now()
	l.Publish(KeyF8)
	l.Publish(KeyF9)
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	require.NoError(t, l.Wait())

	assert.Equal(t, int32(1), after.Load(), "a panicking callback does not kill the loop")
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

type panickingAlerter struct{ n atomic.Int32 }

func (a *panickingAlerter) PlayAlert(context.Context) {
	if a.n.Add(1) == 1 {
		panic("audio device vanished")
	}
}

func TestLoop_AlertPanicRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	alerter := &panickingAlerter{}
	l := newTestLoop(t, newChanSource(), WithAlert(alerter, func(context.Context) bool { return true }))
	var calls atomic.Int32
	l.Hook(KeyF9, func(context.Context) { calls.Add(1) })

	l.Publish(KeyF9)
	l.Publish(KeyF9)
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	require.NoError(t, l.Wait())

	assert.Equal(t, int32(2), alerter.n.Load())
	assert.Equal(t, int32(1), calls.Load(), "the loop survives a panicking alert and serves the next key")
}

func TestLoop_CallbackMayRebind(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newTestLoop(t, newChanSource())
	var second atomic.Int32
	l.Hook(KeyF10, func(context.Context) {
		l.Free(KeyF10)
		l.Hook(KeyF7, func(context.Context) { second.Add(1) })
	})
	l.Publish(KeyF10)
	l.Publish(KeyF10)
	l.Publish(KeyF7)
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	require.NoError(t, l.Wait())
	assert.Equal(t, int32(1), second.Load())
}
