// File: internal/service/agent.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/hotkey"
)

// Hotkey actions that can be bound in the hotkey.bindings config section.
const (
	ActionToggle    = "toggle"
	ActionCalibrate = "calibrate"
	ActionQuit      = "quit"
)

// Store is the part of the persistent store the agent reads and writes.
type Store interface {
	calibration.Store
	fishing.PreferenceSource
}

// Agent reacts to hotkeys: it starts and stops fishing, runs calibrations on
// request and quits the hotkey loop.
type Agent struct {
	cfg        config.Interface
	store      Store
	dispatcher *fishing.Dispatcher
	feed       fishing.Feed
	engine     *calibration.Engine
	logger     *zap.Logger

	loop *hotkey.Loop

	mu          sync.Mutex
	calibrating bool
	cancelCalib context.CancelFunc
	calibWG     sync.WaitGroup
}

// NewAgent creates an agent. engine may be nil, in which case calibration requests
// are refused.
func NewAgent(cfg config.Interface, store Store, dispatcher *fishing.Dispatcher, feed fishing.Feed, engine *calibration.Engine, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		feed:       feed,
		engine:     engine,
		logger:     logger.Named("agent"),
	}
}

// Bind hooks the configured action keys into loop.
func (a *Agent) Bind(loop *hotkey.Loop) error {
	actions := map[string]hotkey.Callback{
		ActionToggle:    a.Toggle,
		ActionCalibrate: a.Calibrate,
		ActionQuit:      func(context.Context) { a.Quit() },
	}

	bindings := a.cfg.Hotkey().Bindings
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cb, ok := actions[name]
		if !ok {
			return fmt.Errorf("unknown hotkey action %q", name)
		}
		key, ok := hotkey.ParseKey(bindings[name])
		if !ok {
			return fmt.Errorf("unknown key %q for hotkey action %q", bindings[name], name)
		}
		loop.Hook(key, cb)
		a.logger.Debug("Bound hotkey", zap.String("action", name), zap.Stringer("key", key))
	}
	a.loop = loop
	return nil
}

// Toggle stops fishing when it runs and starts it otherwise. A pending calibration
// request is served before fishing starts.
func (a *Agent) Toggle(ctx context.Context) {
	if a.dispatcher == nil {
		a.logger.Warn("No state feed configured, cannot fish")
		return
	}
	if a.dispatcher.Detach() {
		handled, dropped := a.dispatcher.Stats()
		a.logger.Info("Fishing stopped", zap.Uint64("handled", handled), zap.Uint64("dropped", dropped))
		return
	}
	if a.Calibrating() {
		a.logger.Info("Calibration in progress, fishing not started")
		return
	}
	if a.engine != nil && calibration.Requested(ctx, a.store) {
		a.logger.Info("Calibration was requested, running it first")
		a.startCalibration(ctx)
		return
	}

	a.dispatcher.SetPreferences(fishing.LoadPreferences(ctx, a.store, a.cfg))
	if err := a.dispatcher.Attach(ctx, a.feed); err != nil {
		a.logger.Error("Failed to start fishing", zap.Error(err))
		return
	}
	a.logger.Info("Fishing started")
}

// Calibrate records a calibration request and runs it in the background. Fishing
// is stopped first so the two never drive the character at once.
func (a *Agent) Calibrate(ctx context.Context) {
	if a.engine == nil {
		a.logger.Warn("No coordinate provider configured, cannot calibrate")
		return
	}
	if err := calibration.Request(ctx, a.store); err != nil {
		a.logger.Error("Failed to record calibration request", zap.Error(err))
	}
	if a.dispatcher != nil && a.dispatcher.Detach() {
		a.logger.Info("Fishing stopped for calibration")
	}
	a.startCalibration(ctx)
}

// Calibrating reports whether a calibration run is in progress.
func (a *Agent) Calibrating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibrating
}

func (a *Agent) startCalibration(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calibrating {
		a.logger.Info("Calibration already running")
		return
	}
	a.calibrating = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancelCalib = cancel

	a.calibWG.Add(1)
	go func() {
		defer a.calibWG.Done()
		defer func() {
			cancel()
			a.mu.Lock()
			a.calibrating = false
			a.cancelCalib = nil
			a.mu.Unlock()
		}()

		a.logger.Info("Calibration started")
		res, err := a.engine.Run(runCtx)
		if err != nil {
			a.logger.Error("Calibration failed", zap.Error(err))
			return
		}
		a.logger.Info("Calibration finished",
			zap.Bool("walk_measured", res.Measured.MoveFactor != nil),
			zap.Bool("rotate_measured", res.Measured.RotFactor != nil),
			zap.Bool("all_calibrated", a.engine.AllCalibrated(runCtx)))
	}()
}

// Quit stops the hotkey loop. Keys queued before it still run.
func (a *Agent) Quit() {
	a.logger.Info("Quit requested")
	if a.loop != nil {
		a.loop.Stop()
	}
}

// Run starts the bound loop and blocks until it stops, then stops fishing and any
// calibration in progress.
func (a *Agent) Run(ctx context.Context) error {
	if a.loop == nil {
		return fmt.Errorf("agent has no hotkey loop bound")
	}
	if err := a.loop.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hotkey loop: %w", err)
	}
	a.logger.Info("Agent ready")

	err := a.loop.Wait()

	if a.dispatcher != nil {
		a.dispatcher.Detach()
	}
	a.mu.Lock()
	if a.cancelCalib != nil {
		a.cancelCalib()
	}
	a.mu.Unlock()
	a.calibWG.Wait()

	a.logger.Info("Agent stopped")
	return err
}
