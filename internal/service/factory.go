// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/feed"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/humanoid"
	"github.com/xkilldash9x/angler/internal/kvstore"
	"github.com/xkilldash9x/angler/internal/platform"
)

// Options selects which optional components Create builds.
type Options struct {
	// StateInput, when set, replaces the Redis state feed with newline separated labels.
	StateInput io.Reader
	// Feed builds a state feed and the telemetry pipeline for fishing.
	Feed bool
	// Calibration builds the coordinate provider and the calibration engine.
	Calibration bool
	// Backups starts the recurring store snapshots.
	Backups bool

	// Executor and Focus override the xdotool injector.
	Executor humanoid.Executor
	Focus    fishing.FocusOracle
}

// ComponentFactory defines the interface for creating the set of components the agent needs.
// This abstraction is the key to making the commands testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create handles the full dependency injection and initialization of the agent components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Persistent store
	kv, err := kvstore.Open(ctx, cfg.Store().Path, cfg.Store().BackupPath, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open persistent store: %w", err)
		return nil, initializationErr
	}
	components.KV = kv
	if opts.Backups {
		kv.StartBackups(ctx, cfg.Store().BackupInterval)
	}
	logger.Debug("Persistent store initialized.")

	// 2. Input injection
	var injector *platform.Xdotool
	executor, focus := opts.Executor, opts.Focus
	if executor == nil || focus == nil {
		injector = platform.NewXdotool(cfg.Fishing().TargetWindow)
		if err := injector.Available(); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
	}
	if executor == nil {
		executor = injector
	}
	if focus == nil {
		focus = injector
	}

	prefs := fishing.LoadPreferences(ctx, kv, cfg)
	components.Human = humanoid.New(executor, prefs.Reaction, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
	logger.Debug("Input injector initialized.")

	// 3. Notifications
	notifier, cleanup, err := InitializeNotifier(cfg.Notify(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.addCleanup(cleanup)
	components.Notifier = notifier
	logger.Debug("Notifier initialized.")

	// 4. Redis, shared by the state feed and the coordinate provider
	needRedis := (opts.Feed && opts.StateInput == nil) || opts.Calibration
	var redisClient *redis.Client
	if needRedis {
		client, err := feed.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		redisClient = client
		components.addCleanup(func() {
			if err := client.Close(); err != nil {
				logger.Warn("Error closing redis client.", zap.Error(err))
			}
		})
		logger.Debug("Redis client initialized.", zap.String("address", cfg.Redis().Address))
	}

	// 5. State feed, telemetry and dispatcher
	if opts.Feed {
		if opts.StateInput != nil {
			components.Feed = feed.NewLineFeed(opts.StateInput)
		} else {
			components.Feed = feed.NewRedisFeed(redisClient, cfg.Redis())
		}

		dispatcherOpts := []fishing.Option{}
		if cfg.Telemetry().Enabled {
			telemetry, cleanup, err := InitializeTelemetry(ctx, cfg.Telemetry(), logger)
			if err != nil {
				initializationErr = err
				return nil, initializationErr
			}
			components.addCleanup(cleanup)
			components.Telemetry = telemetry

			components.reports = newQueuedReporter(reportQueueSize)
			components.consumerWG = &sync.WaitGroup{}
			StartReportsConsumer(components.consumerWG, components.reports.ch, telemetry, logger)
			dispatcherOpts = append(dispatcherOpts, fishing.WithReporter(components.reports))
			logger.Debug("Telemetry store initialized.")
		}

		components.Dispatcher = fishing.NewDispatcher(components.Human, focus, notifier, prefs, logger, dispatcherOpts...)
		logger.Debug("Dispatcher initialized.")
	}

	// 6. Calibration
	if opts.Calibration {
		coords := feed.NewRedisCoords(redisClient, cfg.Redis())
		components.Engine = calibration.NewEngine(coords, components.Human, kv, calibration.SettingsFromConfig(cfg.Calibration()), logger)
		logger.Debug("Calibration engine initialized.")
	}

	logger.Info("All components initialized successfully.")
	return components, nil
}
