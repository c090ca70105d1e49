// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/humanoid"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Fishing() config.FishingConfig {
	args := m.Called()
	return args.Get(0).(config.FishingConfig)
}

func (m *MockConfig) Reaction() config.ReactionConfig {
	args := m.Called()
	return args.Get(0).(config.ReactionConfig)
}

func (m *MockConfig) Calibration() config.CalibrationConfig {
	args := m.Called()
	return args.Get(0).(config.CalibrationConfig)
}

func (m *MockConfig) Hotkey() config.HotkeyConfig {
	args := m.Called()
	return args.Get(0).(config.HotkeyConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) Telemetry() config.TelemetryConfig {
	args := m.Called()
	return args.Get(0).(config.TelemetryConfig)
}

func (m *MockConfig) Notify() config.NotifyConfig {
	args := m.Called()
	return args.Get(0).(config.NotifyConfig)
}

func (m *MockConfig) Redis() config.RedisConfig {
	args := m.Called()
	return args.Get(0).(config.RedisConfig)
}

// --- Setters ---

func (m *MockConfig) SetFishingSoundNotification(b bool) { m.Called(b) }
func (m *MockConfig) SetFishingActionKey(k string)       { m.Called(k) }
func (m *MockConfig) SetReactionJitter(b bool)           { m.Called(b) }
func (m *MockConfig) SetReactionBounds(lowerMs, upperMs int) {
	m.Called(lowerMs, upperMs)
}

// -- Input Mocks --

// MockExecutor mocks humanoid.Executor.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockExecutor) PressKey(ctx context.Context, key humanoid.Key) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockExecutor) ReleaseKey(ctx context.Context, key humanoid.Key) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockExecutor) PressAndRelease(ctx context.Context, key humanoid.Key) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockExecutor) MoveMouseRelative(ctx context.Context, delta humanoid.MouseDelta) error {
	return m.Called(ctx, delta).Error(0)
}

// MockFocusOracle mocks fishing.FocusOracle.
type MockFocusOracle struct {
	mock.Mock
}

func (m *MockFocusOracle) IsTargetFocused(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

// -- Sink Mocks --

// MockNotifier mocks fishing.Notifier and notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, msg string) { m.Called(ctx, msg) }
func (m *MockNotifier) PlayAlert(ctx context.Context)          { m.Called(ctx) }

// MockReporter mocks fishing.Reporter.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) ReportHoleDepleted(ctx context.Context, report fishing.HoleReport) error {
	return m.Called(ctx, report).Error(0)
}

// -- Calibration Mocks --

// MockCoordinateProvider mocks calibration.CoordinateProvider.
type MockCoordinateProvider struct {
	mock.Mock
}

func (m *MockCoordinateProvider) Coords(ctx context.Context) (calibration.Coordinates, bool) {
	args := m.Called(ctx)
	return args.Get(0).(calibration.Coordinates), args.Bool(1)
}
