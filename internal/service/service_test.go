package service

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/feed"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/hotkey"
	"github.com/xkilldash9x/angler/internal/humanoid"
	"github.com/xkilldash9x/angler/internal/kvstore"
	"github.com/xkilldash9x/angler/internal/mocks"
	"github.com/xkilldash9x/angler/internal/notify"
)

func TestTimedWait(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		wg := &sync.WaitGroup{}
		wg.Add(1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			wg.Done()
		}()
		assert.True(t, timedWait(wg, 1*time.Second), "timedWait should return true when wait completes")
	})

	t.Run("Timeout", func(t *testing.T) {
		wg := &sync.WaitGroup{}
		wg.Add(1)
		assert.False(t, timedWait(wg, 10*time.Millisecond), "timedWait should return false on timeout")
	})
}

func TestQueuedReporter(t *testing.T) {
	q := newQueuedReporter(1)
	ctx := context.Background()

	require.NoError(t, q.ReportHoleDepleted(ctx, fishing.HoleReport{ID: uuid.New()}))
	assert.ErrorIs(t, q.ReportHoleDepleted(ctx, fishing.HoleReport{ID: uuid.New()}), errReportQueueFull)

	q.close()
	q.close()
	assert.Error(t, q.ReportHoleDepleted(ctx, fishing.HoleReport{}))
}

func TestStartReportsConsumer(t *testing.T) {
	sink := new(mocks.MockReporter)
	first, second := fishing.HoleReport{ID: uuid.New(), FishCaught: 1}, fishing.HoleReport{ID: uuid.New(), FishCaught: 2}
	sink.On("ReportHoleDepleted", mock.Anything, first).Return(errors.New("db down")).Once()
	sink.On("ReportHoleDepleted", mock.Anything, second).Return(nil).Once()

	q := newQueuedReporter(4)
	wg := &sync.WaitGroup{}
	StartReportsConsumer(wg, q.ch, sink, zaptest.NewLogger(t))

	require.NoError(t, q.ReportHoleDepleted(context.Background(), first))
	require.NoError(t, q.ReportHoleDepleted(context.Background(), second))
	q.close()

	require.True(t, timedWait(wg, 2*time.Second))
	sink.AssertExpectations(t)
}

func TestStartReportsConsumer_RunsUntilClosed(t *testing.T) {
	persisted := make(chan struct{}, 4)
	sink := new(mocks.MockReporter)
	sink.On("ReportHoleDepleted", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		persisted <- struct{}{}
	})

	q := newQueuedReporter(4)
	wg := &sync.WaitGroup{}
	StartReportsConsumer(wg, q.ch, sink, zaptest.NewLogger(t))

	require.NoError(t, q.ReportHoleDepleted(context.Background(), fishing.HoleReport{ID: uuid.New()}))
	select {
	case <-persisted:
	case <-time.After(2 * time.Second):
		t.Fatal("first report was not persisted")
	}

	// Still consuming after an idle period.
	assert.False(t, timedWait(wg, 50*time.Millisecond))
	for i := 0; i < 3; i++ {
		require.NoError(t, q.ReportHoleDepleted(context.Background(), fishing.HoleReport{ID: uuid.New()}))
	}
	q.close()

	require.True(t, timedWait(wg, 2*time.Second))
	sink.AssertNumberOfCalls(t, "ReportHoleDepleted", 4)
}

func TestInitializeTelemetry_Errors(t *testing.T) {
	ctx := context.Background()

	_, _, err := InitializeTelemetry(ctx, config.TelemetryConfig{Enabled: true}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry URL is not configured")

	_, _, err = InitializeTelemetry(ctx, config.TelemetryConfig{Enabled: true, URL: "postgres://u:p@localhost:notaport/db"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse PGX pool config")
}

func TestInitializeNotifier(t *testing.T) {
	n, cleanup, err := InitializeNotifier(config.NotifyConfig{RatePerMin: 60, Burst: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &notify.Throttled{}, n)
	assert.NotPanics(t, func() { n.Notify(context.Background(), "Inventory full!") })

	_, _, err = InitializeNotifier(config.NotifyConfig{AMQP: config.AMQPConfig{Enabled: true}}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize amqp notifier")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	dir := t.TempDir()
	cfg.StoreCfg.Path = filepath.Join(dir, "angler.db")
	cfg.StoreCfg.BackupPath = filepath.Join(dir, "angler.bak.json")
	cfg.NotifyCfg.AlertEnabled = false
	return cfg
}

func TestCreate_LineFeed(t *testing.T) {
	cfg := testConfig(t)
	exec := new(mocks.MockExecutor)
	focus := new(mocks.MockFocusOracle)

	components, err := NewComponentFactory().Create(context.Background(), cfg, Options{
		Feed:       true,
		StateInput: strings.NewReader("LOOKING\n"),
		Executor:   exec,
		Focus:      focus,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer components.Shutdown()

	assert.NotNil(t, components.KV)
	assert.NotNil(t, components.Dispatcher)
	assert.NotNil(t, components.Human)
	assert.IsType(t, &feed.LineFeed{}, components.Feed)
	assert.Nil(t, components.Engine, "calibration was not requested")
	assert.Nil(t, components.Telemetry, "telemetry is disabled by default")
}

func TestCreate_BadTelemetryShutsDownPartialComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelemetryCfg.Enabled = true
	cfg.TelemetryCfg.URL = "postgres://u:p@localhost:notaport/db"

	_, err := NewComponentFactory().Create(context.Background(), cfg, Options{
		Feed:       true,
		StateInput: strings.NewReader(""),
		Executor:   new(mocks.MockExecutor),
		Focus:      new(mocks.MockFocusOracle),
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse PGX pool config")

	// The store was closed, so it can be opened again.
	kv, err := kvstore.Open(context.Background(), cfg.StoreCfg.Path, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, kv.Close())
}

// blockingFeed yields nothing until ctx ends.
type blockingFeed struct{}

func (blockingFeed) Next(ctx context.Context) (fishing.State, error) {
	<-ctx.Done()
	return fishing.StateUnknown, ctx.Err()
}

// keyChan feeds the hotkey loop from a channel.
type keyChan chan hotkey.Key

func (k keyChan) Next(ctx context.Context) (hotkey.Key, error) {
	select {
	case <-ctx.Done():
		return hotkey.KeyNone, ctx.Err()
	case key := <-k:
		return key, nil
	}
}

type agentFixture struct {
	cfg        *config.Config
	kv         *kvstore.Store
	dispatcher *fishing.Dispatcher
	coords     *mocks.MockCoordinateProvider
	agent      *Agent
}

func newAgentFixture(t *testing.T, withEngine bool) *agentFixture {
	t.Helper()
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	kv, err := kvstore.Open(context.Background(), cfg.StoreCfg.Path, "", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	exec := new(mocks.MockExecutor)
	exec.On("Sleep", mock.Anything, mock.Anything).Return(nil).Maybe()
	exec.On("PressKey", mock.Anything, mock.Anything).Return(nil).Maybe()
	exec.On("ReleaseKey", mock.Anything, mock.Anything).Return(nil).Maybe()
	exec.On("MoveMouseRelative", mock.Anything, mock.Anything).Return(nil).Maybe()

	human := humanoid.New(exec, humanoid.Profile{}, logger, rand.New(rand.NewSource(1)))
	dispatcher := fishing.NewDispatcher(human, new(mocks.MockFocusOracle), new(mocks.MockNotifier), fishing.DefaultPreferences(cfg), logger)

	f := &agentFixture{cfg: cfg, kv: kv, dispatcher: dispatcher}
	var engine *calibration.Engine
	if withEngine {
		f.coords = new(mocks.MockCoordinateProvider)
		f.coords.On("Coords", mock.Anything).Return(calibration.Coordinates{}, false)
		engine = calibration.NewEngine(f.coords, human, kv, calibration.SettingsFromConfig(cfg.Calibration()), logger)
	}
	f.agent = NewAgent(cfg, kv, dispatcher, blockingFeed{}, engine, logger)
	return f
}

func TestAgent_Bind(t *testing.T) {
	f := newAgentFixture(t, false)
	loop := hotkey.NewLoop(make(keyChan), zaptest.NewLogger(t))

	require.NoError(t, f.agent.Bind(loop))
	assert.True(t, loop.Bound(hotkey.KeyF9))
	assert.True(t, loop.Bound(hotkey.KeyF10))
	assert.True(t, loop.Bound(hotkey.KeyF8))
	assert.False(t, loop.Bound(hotkey.KeyF7))
}

func TestAgent_BindErrors(t *testing.T) {
	f := newAgentFixture(t, false)

	f.cfg.HotkeyCfg.Bindings = map[string]string{"dance": "f9"}
	err := f.agent.Bind(hotkey.NewLoop(make(keyChan), zap.NewNop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown hotkey action "dance"`)

	f.cfg.HotkeyCfg.Bindings = map[string]string{ActionToggle: "f1"}
	err = f.agent.Bind(hotkey.NewLoop(make(keyChan), zap.NewNop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "f1"`)
}

func TestAgent_Toggle(t *testing.T) {
	f := newAgentFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.kv.Set(ctx, fishing.KeyActionKey, "f"))

	f.agent.Toggle(ctx)
	assert.True(t, f.dispatcher.Attached())

	f.agent.Toggle(ctx)
	assert.False(t, f.dispatcher.Attached())
}

func TestAgent_CalibrateWithoutEngine(t *testing.T) {
	f := newAgentFixture(t, false)
	f.agent.Calibrate(context.Background())
	assert.False(t, f.agent.Calibrating())
	assert.False(t, calibration.Requested(context.Background(), f.kv))
}

func TestAgent_ToggleServesCalibrationRequest(t *testing.T) {
	f := newAgentFixture(t, true)
	ctx := context.Background()
	require.NoError(t, calibration.Request(ctx, f.kv))

	f.agent.Toggle(ctx)
	assert.False(t, f.dispatcher.Attached(), "calibration runs instead of fishing")

	assert.Eventually(t, func() bool { return !f.agent.Calibrating() }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, calibration.Requested(ctx, f.kv), "the run clears the request")
	f.coords.AssertCalled(t, "Coords", mock.Anything)

	f.agent.Toggle(ctx)
	assert.True(t, f.dispatcher.Attached())
	f.dispatcher.Detach()
}

func TestAgent_CalibrateStopsFishing(t *testing.T) {
	f := newAgentFixture(t, true)
	ctx := context.Background()

	f.agent.Toggle(ctx)
	require.True(t, f.dispatcher.Attached())

	f.agent.Calibrate(ctx)
	assert.False(t, f.dispatcher.Attached())
	assert.Eventually(t, func() bool { return !f.agent.Calibrating() }, 2*time.Second, 5*time.Millisecond)
}

func TestAgent_Run(t *testing.T) {
	f := newAgentFixture(t, false)
	keys := make(keyChan, 4)
	loop := hotkey.NewLoop(keys, zaptest.NewLogger(t))
	require.NoError(t, f.agent.Bind(loop))

	done := make(chan error, 1)
	go func() { done <- f.agent.Run(context.Background()) }()

	keys <- hotkey.KeyF9
	assert.Eventually(t, f.dispatcher.Attached, 2*time.Second, 5*time.Millisecond)

	keys <- hotkey.KeyF8
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after quit")
	}
	assert.False(t, f.dispatcher.Attached(), "quitting stops fishing")
}

func TestAgent_RunWithoutLoop(t *testing.T) {
	f := newAgentFixture(t, false)
	assert.Error(t, f.agent.Run(context.Background()))
}
