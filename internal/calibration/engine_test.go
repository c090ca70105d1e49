package calibration_test

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/humanoid"
	"github.com/xkilldash9x/angler/internal/kvstore"
	"github.com/xkilldash9x/angler/internal/mocks"
)

func ptr(f float64) *float64 { return &f }

func openStore(t *testing.T) *kvstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := kvstore.Open(context.Background(), filepath.Join(dir, "kv.db"), "", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func defaultSettings() calibration.Settings {
	return calibration.SettingsFromConfig(config.NewDefaultConfig().Calibration())
}

func newEngine(t *testing.T, exec *mocks.MockExecutor, coords *mocks.MockCoordinateProvider, store calibration.Store) *calibration.Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	human := humanoid.New(exec, humanoid.Profile{}, logger, rand.New(rand.NewSource(1)))
	return calibration.NewEngine(coords, human, store, defaultSettings(), logger)
}

func permissiveExecutor() *mocks.MockExecutor {
	exec := new(mocks.MockExecutor)
	exec.On("Sleep", mock.Anything, mock.Anything).Return(nil)
	exec.On("PressKey", mock.Anything, mock.Anything).Return(nil)
	exec.On("ReleaseKey", mock.Anything, mock.Anything).Return(nil)
	exec.On("MoveMouseRelative", mock.Anything, mock.Anything).Return(nil)
	return exec
}

func TestRun_MeasuresBothFactors(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, calibration.Request(ctx, store))
	require.True(t, calibration.Requested(ctx, store))

	exec := permissiveExecutor()
	coords := new(mocks.MockCoordinateProvider)
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{X: 0, Y: 0, Heading: 10}, true).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{X: 3, Y: 4, Heading: 10}, true).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{X: 3, Y: 4, Heading: 10}, true).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{X: 3, Y: 4, Heading: 350}, true).Once()

	e := newEngine(t, exec, coords, store)
	res, err := e.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, res.WalkErr)
	require.NoError(t, res.RotErr)

	require.NotNil(t, res.Measured.MoveFactor)
	assert.InDelta(t, 5.0/3.0, *res.Measured.MoveFactor, 1e-9)
	require.NotNil(t, res.Measured.RotFactor)
	assert.InDelta(t, -0.4, *res.Measured.RotFactor, 1e-9)

	stored, err := e.Factors(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/3.0, *stored.MoveFactor, 1e-9)
	assert.InDelta(t, -0.4, *stored.RotFactor, 1e-9)
	assert.True(t, e.AllCalibrated(ctx))
	assert.False(t, calibration.Requested(ctx, store), "flag is cleared after a run")

	// The walk held the forward key for the configured duration, then settled.
	exec.AssertCalled(t, "PressKey", mock.Anything, humanoid.Key("w"))
	exec.AssertCalled(t, "ReleaseKey", mock.Anything, humanoid.Key("w"))
	exec.AssertCalled(t, "Sleep", mock.Anything, 3*time.Second)
	exec.AssertCalled(t, "Sleep", mock.Anything, 500*time.Millisecond)
	exec.AssertNumberOfCalls(t, "MoveMouseRelative", 50)
	exec.AssertCalled(t, "MoveMouseRelative", mock.Anything, humanoid.MouseDelta{DX: 30})
}

func TestRun_MissingSampleLeavesFactorUntouched(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SetField(ctx, calibration.FactorsKey, calibration.FieldMove, 2.0))
	require.NoError(t, store.SetField(ctx, calibration.FactorsKey, calibration.FieldRotate, 1.5))

	exec := permissiveExecutor()
	coords := new(mocks.MockCoordinateProvider)
	// Walk start fails, rotate still runs and its end sample fails too.
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{}, false).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{Heading: 90}, true).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{}, false).Once()

	e := newEngine(t, exec, coords, store)
	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, res.WalkErr, calibration.ErrNoReading)
	assert.ErrorIs(t, res.RotErr, calibration.ErrNoReading)
	assert.Nil(t, res.Measured.MoveFactor)
	assert.Nil(t, res.Measured.RotFactor)

	stored, err := e.Factors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, *stored.MoveFactor)
	assert.Equal(t, 1.5, *stored.RotFactor)

	// The walk never started, the rotation did.
	exec.AssertNotCalled(t, "PressKey", mock.Anything, mock.Anything)
	exec.AssertNumberOfCalls(t, "MoveMouseRelative", 50)
}

func TestRun_WalkEndMissing(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	coords := new(mocks.MockCoordinateProvider)
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{X: 1}, true).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{}, false).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{Heading: 100}, true).Once()
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{Heading: 50}, true).Once()

	e := newEngine(t, permissiveExecutor(), coords, store)
	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, res.WalkErr, calibration.ErrNoReading)
	require.NotNil(t, res.Measured.RotFactor)
	assert.InDelta(t, -1.0, *res.Measured.RotFactor, 1e-9)

	stored, err := e.Factors(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored.MoveFactor)
	assert.False(t, e.AllCalibrated(ctx))
}

func TestRun_CancelledAbortsPhases(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := new(mocks.MockExecutor)
	exec.On("PressKey", mock.Anything, mock.Anything).Return(nil)
	exec.On("ReleaseKey", mock.Anything, mock.Anything).Return(nil)
	exec.On("Sleep", mock.Anything, mock.Anything).Return(context.Canceled)
	exec.On("MoveMouseRelative", mock.Anything, mock.Anything).Return(nil)

	coords := new(mocks.MockCoordinateProvider)
	coords.On("Coords", mock.Anything).Return(calibration.Coordinates{}, true)

	e := newEngine(t, exec, coords, store)
	res, err := e.Run(ctx)
	require.NoError(t, err, "the flag is still cleared")
	assert.ErrorIs(t, res.WalkErr, context.Canceled)
	assert.ErrorIs(t, res.RotErr, context.Canceled)
	exec.AssertCalled(t, "ReleaseKey", mock.Anything, humanoid.Key("w"))

	f, err := calibration.LoadFactors(context.Background(), store)
	require.NoError(t, err)
	assert.Nil(t, f.MoveFactor)
	assert.Nil(t, f.RotFactor)
}

func TestRotationFactor(t *testing.T) {
	assert.InDelta(t, -0.4, calibration.RotationFactor(10, 350, 50), 1e-9)
	assert.InDelta(t, -0.4, calibration.RotationFactor(100, 80, 50), 1e-9)
	assert.InDelta(t, 0.0, calibration.RotationFactor(45, 45, 50), 1e-9)
}

func TestFactors_Complete(t *testing.T) {
	tests := []struct {
		name string
		f    calibration.Factors
		want bool
	}{
		{"BothUnset", calibration.Factors{}, false},
		{"MoveUnset", calibration.Factors{RotFactor: ptr(-0.4)}, false},
		{"RotUnset", calibration.Factors{MoveFactor: ptr(1.2)}, false},
		{"MoveZero", calibration.Factors{MoveFactor: ptr(0), RotFactor: ptr(-0.4)}, false},
		{"RotZero", calibration.Factors{MoveFactor: ptr(1.2), RotFactor: ptr(0)}, false},
		{"BothSet", calibration.Factors{MoveFactor: ptr(1.2), RotFactor: ptr(-0.4)}, true},
		{"NegativeIsFine", calibration.Factors{MoveFactor: ptr(-1), RotFactor: ptr(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Complete())
		})
	}
}
