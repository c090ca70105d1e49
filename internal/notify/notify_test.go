package notify

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type recordingNotifier struct {
	mu     sync.Mutex
	msgs   []string
	alerts int
}

func (r *recordingNotifier) Notify(_ context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingNotifier) PlayAlert(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts++
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	m := Multi{a, b}
	m.Notify(context.Background(), "Inventory full!")
	m.PlayAlert(context.Background())

	assert.Equal(t, []string{"Inventory full!"}, a.msgs)
	assert.Equal(t, []string{"Inventory full!"}, b.msgs)
	assert.Equal(t, 1, a.alerts)
	assert.Equal(t, 1, b.alerts)
}

func TestThrottled(t *testing.T) {
	next := &recordingNotifier{}
	th := NewThrottled(next, 1, 2, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		th.Notify(context.Background(), "FIGHTING!")
		th.PlayAlert(context.Background())
	}
	assert.Len(t, next.msgs, 2, "burst allows two, the rest are dropped")
	assert.Equal(t, 5, next.alerts, "alerts are never throttled")
}

func TestThrottled_DistinctMessagesPass(t *testing.T) {
	next := &recordingNotifier{}
	th := NewThrottled(next, 6, 3, zaptest.NewLogger(t))

	kinds := []string{"No bait!", "Inventory full!", "FIGHTING!", "Character is dead!"}
	for _, msg := range kinds {
		th.Notify(context.Background(), msg)
	}
	assert.Equal(t, kinds, next.msgs, "each kind has its own budget")

	for i := 0; i < 5; i++ {
		th.Notify(context.Background(), "FIGHTING!")
	}
	th.Notify(context.Background(), "Character is dead!")
	assert.Len(t, next.msgs, 7, "FIGHTING! exhausts its burst, the other kind still passes")
	assert.Equal(t, "Character is dead!", next.msgs[len(next.msgs)-1])
}

func TestThrottled_Unlimited(t *testing.T) {
	next := &recordingNotifier{}
	th := NewThrottled(next, 0, 0, zaptest.NewLogger(t))
	for i := 0; i < 50; i++ {
		th.Notify(context.Background(), "x")
	}
	assert.Len(t, next.msgs, 50)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	n.Notify(context.Background(), "Character is dead!")
	n.PlayAlert(context.Background())

	entries := logs.FilterField(zap.String("message", "Character is dead!")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "notify", entries[0].LoggerName)
}

func TestAMQPNotifier_Publishes(t *testing.T) {
	ch := &fakeChannel{}
	n := newAMQPNotifier(ch, "angler.notifications", "angler", zaptest.NewLogger(t))
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	n.Notify(context.Background(), "No bait equipped!")
	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"/angler.notifications"}, ch.keys)

	pub := ch.published[0]
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)

	var msg Message
	require.NoError(t, jsoniter.Unmarshal(pub.Body, &msg))
	assert.Equal(t, "No bait equipped!", msg.Message)
	assert.Equal(t, "angler", msg.Source)
	assert.True(t, fixed.Equal(msg.SentAt))
	assert.NotEmpty(t, msg.ID)

	require.NoError(t, n.Close())
	assert.True(t, ch.closed)
}

func TestAMQPNotifier_FailureSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ch := &fakeChannel{err: errors.New("channel closed")}
	n := newAMQPNotifier(ch, "q", "angler", zap.New(core))

	assert.NotPanics(t, func() { n.Notify(context.Background(), "x") })
	assert.Equal(t, 1, logs.FilterMessage("Failed to publish notification").Len())
}

func TestBeepAlerter_SilentFallback(t *testing.T) {
	b := NewBeepAlerter(zaptest.NewLogger(t))
	inits, plays := 0, 0
	b.initSpeaker = func(beep.SampleRate, int) error {
		inits++
		return errors.New("no audio device")
	}
	b.play = func(...beep.Streamer) { plays++ }

	b.PlayAlert(context.Background())
	b.PlayAlert(context.Background())
	assert.True(t, b.Silent())
	assert.Equal(t, 1, inits)
	assert.Zero(t, plays)
}

func TestBeepAlerter_Plays(t *testing.T) {
	b := NewBeepAlerter(zaptest.NewLogger(t))
	var played []beep.Streamer
	b.initSpeaker = func(beep.SampleRate, int) error { return nil }
	b.play = func(s ...beep.Streamer) { played = append(played, s...) }

	b.PlayAlert(context.Background())
	assert.False(t, b.Silent())
	assert.Len(t, played, 1)
}

func TestChime(t *testing.T) {
	sr := beep.SampleRate(8000)
	s := Chime(sr)

	total := 0
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			assert.LessOrEqual(t, math.Abs(buf[i][0]), 0.3)
			assert.Equal(t, buf[i][0], buf[i][1])
		}
		total += n
		if !ok {
			break
		}
	}
	assert.Equal(t, sr.N(120*time.Millisecond)+sr.N(180*time.Millisecond), total)
}
