// Package store persists hole telemetry to PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/fishing"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store records depleted holes. It implements fishing.Reporter.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ fishing.Reporter = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS hole_reports (
    id UUID PRIMARY KEY,
    fish_caught INTEGER NOT NULL,
    total_fish_caught INTEGER NOT NULL,
    duration_ms BIGINT NOT NULL,
    reported_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS hole_fish_times (
    report_id UUID NOT NULL REFERENCES hole_reports (id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    hook_ms BIGINT NOT NULL,
    PRIMARY KEY (report_id, seq)
);
`

// EnsureSchema creates the telemetry tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create telemetry schema: %w", err)
	}
	return nil
}

// ReportHoleDepleted stores a hole report and its hook latencies in one transaction.
func (s *Store) ReportHoleDepleted(ctx context.Context, r fishing.HoleReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, `
        INSERT INTO hole_reports (id, fish_caught, total_fish_caught, duration_ms, reported_at)
        VALUES ($1, $2, $3, $4, $5);
    `, r.ID, r.FishCaught, r.TotalFishCaught, r.Duration.Milliseconds(), r.ReportedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert hole report %s: %w", r.ID, err)
	}

	if len(r.FishTimes) > 0 {
		rows := make([][]interface{}, len(r.FishTimes))
		for i, ft := range r.FishTimes {
			rows[i] = []interface{}{r.ID, i + 1, ft.Milliseconds()}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"hole_fish_times"}, []string{"report_id", "seq", "hook_ms"}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy fish times: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied fish times count: expected %d, got %d", len(rows), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Hole report stored", zap.Stringer("id", r.ID), zap.Int("fish_caught", r.FishCaught))
	return nil
}

// RecentHoleReports returns the latest reports, newest first.
func (s *Store) RecentHoleReports(ctx context.Context, limit int) ([]fishing.HoleReport, error) {
	query := `
        SELECT r.id, r.fish_caught, r.total_fish_caught, r.duration_ms, r.reported_at,
               COALESCE(array_agg(f.hook_ms ORDER BY f.seq) FILTER (WHERE f.hook_ms IS NOT NULL), '{}')
        FROM hole_reports r
        LEFT JOIN hole_fish_times f ON f.report_id = r.id
        GROUP BY r.id
        ORDER BY r.reported_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hole reports: %w", err)
	}
	defer rows.Close()

	var reports []fishing.HoleReport
	for rows.Next() {
		var (
			r          fishing.HoleReport
			id         uuid.UUID
			durationMs int64
			hookMs     []int64
		)
		if err := rows.Scan(&id, &r.FishCaught, &r.TotalFishCaught, &durationMs, &r.ReportedAt, &hookMs); err != nil {
			return nil, fmt.Errorf("failed to scan hole report row: %w", err)
		}
		r.ID = id
		r.Duration = time.Duration(durationMs) * time.Millisecond
		for _, ms := range hookMs {
			r.FishTimes = append(r.FishTimes, time.Duration(ms)*time.Millisecond)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return reports, nil
}
