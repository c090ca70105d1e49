// Package calibration measures the movement and turn-rate constants of the player
// character with a two-phase timed experiment.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/humanoid"
)

// ErrNoReading marks a phase that was abandoned because a coordinate sample was missing.
var ErrNoReading = errors.New("calibration: coordinates unavailable")

// Coordinates is a position on the map plus the camera heading in degrees.
type Coordinates struct {
	X       float64
	Y       float64
	Heading float64
}

// Position drops the heading.
func (c Coordinates) Position() humanoid.Vector2D {
	return humanoid.Vector2D{X: c.X, Y: c.Y}
}

// CoordinateProvider samples the character's coordinates. A false result means there
// was no reading, not that the character stands at the origin.
type CoordinateProvider interface {
	Coords(ctx context.Context) (Coordinates, bool)
}

// Settings tune the experiment.
type Settings struct {
	ForwardKey   humanoid.Key
	WalkDuration time.Duration
	SettleTime   time.Duration
	RotatePulses int
	PulseDelay   time.Duration
	RotateBy     int
	Timeout      time.Duration
}

// SettingsFromConfig converts the calibration config section.
func SettingsFromConfig(cfg config.CalibrationConfig) Settings {
	return Settings{
		ForwardKey:   humanoid.Key(cfg.ForwardKey),
		WalkDuration: cfg.WalkDuration,
		SettleTime:   cfg.SettleTime,
		RotatePulses: cfg.RotatePulses,
		PulseDelay:   cfg.PulseDelay,
		RotateBy:     cfg.RotateBy,
		Timeout:      cfg.Timeout,
	}
}

// Result reports what a run measured. A nil factor means its phase was aborted.
type Result struct {
	Measured Factors
	WalkErr  error
	RotErr   error
}

// Engine runs calibration experiments.
type Engine struct {
	coords   CoordinateProvider
	human    *humanoid.Humanoid
	store    Store
	settings Settings
	logger   *zap.Logger
}

// NewEngine creates a calibration engine.
func NewEngine(coords CoordinateProvider, human *humanoid.Humanoid, store Store, settings Settings, logger *zap.Logger) *Engine {
	return &Engine{
		coords:   coords,
		human:    human,
		store:    store,
		settings: settings,
		logger:   logger.Named("calibration"),
	}
}

// Run performs the walk phase, then the rotate phase, then clears the calibration
// request flag. The phases are independent: an aborted phase leaves its stored factor
// as it was and does not stop the other. The returned error only reports a failure
// to clear the flag.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if e.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.Timeout)
		defer cancel()
	}

	var res Result
	res.Measured.MoveFactor, res.WalkErr = e.walk(ctx)
	if res.WalkErr != nil {
		e.logger.Warn("Walk calibration aborted", zap.Error(res.WalkErr))
	}
	res.Measured.RotFactor, res.RotErr = e.rotate(ctx)
	if res.RotErr != nil {
		e.logger.Warn("Rotate calibration aborted", zap.Error(res.RotErr))
	}

	// Clearing the flag must not be skipped because the run timed out.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.Set(clearCtx, CalibrateFlag, false); err != nil {
		return res, fmt.Errorf("failed to clear calibration flag: %w", err)
	}
	e.logger.Info("Calibration done")
	return res, nil
}

// Factors returns the stored factors.
func (e *Engine) Factors(ctx context.Context) (Factors, error) {
	return LoadFactors(ctx, e.store)
}

// AllCalibrated reports whether both stored factors are present and non-zero.
func (e *Engine) AllCalibrated(ctx context.Context) bool {
	f, err := e.Factors(ctx)
	if err != nil {
		e.logger.Warn("Failed to read calibration factors", zap.Error(err))
		return false
	}
	return f.Complete()
}

func (e *Engine) walk(ctx context.Context) (*float64, error) {
	start, ok := e.coords.Coords(ctx)
	if !ok {
		return nil, fmt.Errorf("walk start: %w", ErrNoReading)
	}

	if err := e.human.Hold(ctx, e.settings.ForwardKey, e.settings.WalkDuration); err != nil {
		return nil, fmt.Errorf("walking forward: %w", err)
	}
	if err := e.human.Sleep(ctx, e.settings.SettleTime); err != nil {
		return nil, fmt.Errorf("settling: %w", err)
	}

	end, ok := e.coords.Coords(ctx)
	if !ok {
		return nil, fmt.Errorf("walk end: %w", ErrNoReading)
	}

	factor := start.Position().Dist(end.Position()) / e.settings.WalkDuration.Seconds()
	if err := e.store.SetField(ctx, FactorsKey, FieldMove, factor); err != nil {
		return nil, fmt.Errorf("failed to persist %s: %w", FieldMove, err)
	}
	e.logger.Info("Walk calibration done", zap.Float64(FieldMove, factor))
	return &factor, nil
}

func (e *Engine) rotate(ctx context.Context) (*float64, error) {
	before, ok := e.coords.Coords(ctx)
	if !ok {
		return nil, fmt.Errorf("rotate start: %w", ErrNoReading)
	}

	delta := humanoid.MouseDelta{DX: e.settings.RotateBy}
	if err := e.human.Turn(ctx, delta, e.settings.RotatePulses, e.settings.PulseDelay); err != nil {
		return nil, fmt.Errorf("rotating: %w", err)
	}

	after, ok := e.coords.Coords(ctx)
	if !ok {
		return nil, fmt.Errorf("rotate end: %w", ErrNoReading)
	}

	factor := RotationFactor(before.Heading, after.Heading, e.settings.RotatePulses)
	if err := e.store.SetField(ctx, FactorsKey, FieldRotate, factor); err != nil {
		return nil, fmt.Errorf("failed to persist %s: %w", FieldRotate, err)
	}
	e.logger.Info("Rotate calibration done", zap.Float64(FieldRotate, factor))
	return &factor, nil
}

// RotationFactor is the heading change per pulse of a turn that decreases the
// heading. A larger end heading means the turn wrapped past 0 degrees.
func RotationFactor(before, after float64, pulses int) float64 {
	if after > before {
		after -= 360
	}
	return (after - before) / float64(pulses)
}
