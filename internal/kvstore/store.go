// Package kvstore is the persistent key-value store shared by the dispatcher, the
// calibration engine and the hotkey loop. Every read and write goes through one
// mutex and one SQLite connection, so concurrent callers never interleave.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kvstore: store is closed")
	// ErrCorrupt marks a database file SQLite cannot use. Only this error makes Open
	// replace the file.
	ErrCorrupt = errors.New("kvstore: store is corrupt")
)

// busyTimeout is how long a writer waits for another process holding the database lock.
const busyTimeout = 5 * time.Second

// json sorts map keys so snapshots are stable and diffable.
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Store is a durable JSON-valued key-value store backed by SQLite.
type Store struct {
	mu         sync.Mutex
	db         *sql.DB
	path       string
	backupPath string
	log        *zap.Logger
	closed     bool

	wg         sync.WaitGroup
	stopBackup context.CancelFunc
}

// Open opens or creates the database at path and applies migrations. When the
// database is corrupt it is recreated and, if backupPath holds a snapshot, restored
// from it. Any other failure is returned and the file is left as it is.
func Open(ctx context.Context, path, backupPath string, logger *zap.Logger) (*Store, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path: %w", err)
	}
	if backupPath != "" {
		if backupPath, err = homedir.Expand(backupPath); err != nil {
			return nil, fmt.Errorf("failed to expand backup path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		path:       path,
		backupPath: backupPath,
		log:        logger.Named("kvstore"),
	}

	db, err := openDB(ctx, path)
	if err == nil {
		s.db = db
		return s, nil
	}
	if !errors.Is(err, ErrCorrupt) {
		return nil, err
	}

	s.log.Warn("Store got corrupted, trying to restore backup", zap.String("path", path), zap.Error(err))
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("failed to remove corrupt store: %w", rmErr)
	}
	if db, err = openDB(ctx, path); err != nil {
		return nil, err
	}
	s.db = db

	if err := s.restore(ctx); err != nil {
		s.log.Warn("Couldn't restore, starting with an empty store", zap.Error(err))
	}
	return s, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// One connection makes SQLite the single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, classify(err)
	}
	var status string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check;`).Scan(&status); err != nil {
		_ = db.Close()
		return nil, classify(fmt.Errorf("store integrity check failed: %w", err))
	}
	if status != "ok" {
		_ = db.Close()
		return nil, fmt.Errorf("%w: integrity check reported %q", ErrCorrupt, status)
	}
	return db, nil
}

// classify tags err with ErrCorrupt when SQLite says the file is damaged or not a
// database at all.
func classify(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	return err
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate store: %w", err)
		}
	}
	return nil
}

// Close stops the backup scheduler and closes the database. When the scheduler was
// running a last snapshot is written first.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	stop := s.stopBackup
	s.mu.Unlock()

	if stop != nil {
		stop()
		s.wg.Wait()
		if err := s.Backup(context.Background()); err != nil {
			s.log.Warn("Final backup failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.db.Close()
}

// Get decodes the value stored under key into dst. It reports false when the key is
// absent.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.getLocked(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode value for %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key, overwriting any previous value.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, key, raw)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// GetField decodes one field of the JSON object stored under key.
func (s *Store) GetField(ctx context.Context, key, field string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.objectLocked(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := obj[field]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s.%s: %w", key, field, err)
	}
	return true, nil
}

// SetField sets one field of the JSON object stored under key, keeping the other
// fields. The read and the write happen under one lock.
func (s *Store) SetField(ctx context.Context, key, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s.%s: %w", key, field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.objectLocked(ctx, key)
	if err != nil {
		return err
	}
	obj[field] = raw
	encoded, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return s.setLocked(ctx, key, encoded)
}

// Keys returns every stored key in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot(ctx context.Context) (map[string]jsoniter.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(ctx)
}

func (s *Store) snapshotLocked(ctx context.Context) (map[string]jsoniter.RawMessage, error) {
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query store: %w", err)
	}
	defer rows.Close()

	out := make(map[string]jsoniter.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan store row: %w", err)
		}
		out[key] = jsoniter.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *Store) getLocked(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed {
		return nil, false, ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *Store) setLocked(ctx context.Context, key string, raw []byte) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *Store) objectLocked(ctx context.Context, key string) (map[string]jsoniter.RawMessage, error) {
	raw, ok, err := s.getLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	obj := make(map[string]jsoniter.RawMessage)
	if !ok {
		return obj, nil
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("value for %q is not an object: %w", key, err)
	}
	return obj, nil
}
