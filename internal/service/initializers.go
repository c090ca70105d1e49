// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/notify"
	"github.com/xkilldash9x/angler/internal/store"
)

// errReportQueueFull is returned when the telemetry writer falls too far behind.
var errReportQueueFull = errors.New("service: hole report queue is full")

// reportQueueSize bounds the reports waiting for the database.
const reportQueueSize = 64

// InitializeTelemetry connects to PostgreSQL and prepares the hole telemetry schema.
// The returned cleanup closes the pool.
func InitializeTelemetry(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*store.Store, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("telemetry URL is not configured (hint: check ANGLER_TELEMETRY_URL)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	// One agent writes a report every few minutes at most.
	poolConfig.MaxConns = 2
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	telemetry, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize telemetry store: %w", err)
	}
	if err := telemetry.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		logger.Debug("Closing telemetry connection pool.")
		pool.Close()
	}
	return telemetry, cleanup, nil
}

// InitializeNotifier assembles the notification chain from configuration: the log
// sink always, the AMQP queue and the audible alert when enabled, all behind a rate
// limit. The returned cleanup closes the broker connection.
func InitializeNotifier(cfg config.NotifyConfig, logger *zap.Logger) (fishing.Notifier, func(), error) {
	sinks := notify.Multi{notify.NewLogNotifier(logger)}
	cleanup := func() {}

	if cfg.AMQP.Enabled {
		remote, err := notify.DialAMQP(cfg.AMQP, "angler", logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize amqp notifier: %w", err)
		}
		sinks = append(sinks, remote)
		cleanup = func() {
			if err := remote.Close(); err != nil {
				logger.Warn("Error closing amqp notifier.", zap.Error(err))
			}
		}
	}
	if cfg.AlertEnabled {
		sinks = append(sinks, notify.NewBeepAlerter(logger))
	}

	return notify.NewThrottled(sinks, cfg.RatePerMin, cfg.Burst, logger), cleanup, nil
}

// queuedReporter hands hole reports to a background writer so a slow database never
// stalls a handler.
type queuedReporter struct {
	mu     sync.Mutex
	ch     chan fishing.HoleReport
	closed bool
}

func newQueuedReporter(size int) *queuedReporter {
	return &queuedReporter{ch: make(chan fishing.HoleReport, size)}
}

func (q *queuedReporter) ReportHoleDepleted(_ context.Context, r fishing.HoleReport) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("service: hole report queue is closed")
	}
	select {
	case q.ch <- r:
		return nil
	default:
		return errReportQueueFull
	}
}

func (q *queuedReporter) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// StartReportsConsumer launches a goroutine that persists queued hole reports.
// It runs until reports is closed, so everything queued before shutdown is persisted.
func StartReportsConsumer(wg *sync.WaitGroup, reports <-chan fishing.HoleReport, sink fishing.Reporter, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Hole reports consumer started.")
		defer logger.Debug("Hole reports consumer shut down.")

		for r := range reports {
			persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := sink.ReportHoleDepleted(persistCtx, r); err != nil {
				logger.Error("Failed to persist hole report. Data may be lost.", zap.Error(err), zap.Stringer("id", r.ID))
			}
			cancel()
		}
	}()
}
