package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Backup writes every stored value as one JSON object to the backup path. The file
// is written to a temporary name and renamed into place.
func (s *Store) Backup(ctx context.Context) error {
	if s.backupPath == "" {
		return nil
	}

	s.mu.Lock()
	snap, err := s.snapshotLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.backupPath), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	tmp := s.backupPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := os.Rename(tmp, s.backupPath); err != nil {
		return fmt.Errorf("failed to move backup into place: %w", err)
	}
	s.log.Debug("Created backup", zap.String("path", s.backupPath), zap.Int("keys", len(snap)))
	return nil
}

// StartBackups writes a snapshot now and then every interval until ctx is done or
// the store is closed. Calling it twice is a no-op.
func (s *Store) StartBackups(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.backupPath == "" {
		return
	}

	s.mu.Lock()
	if s.stopBackup != nil || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stopBackup = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := s.Backup(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Scheduled backup failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.log.Debug("Backup scheduler started", zap.Duration("interval", interval))
}

// restore loads the backup snapshot into the (empty) database.
func (s *Store) restore(ctx context.Context) error {
	if s.backupPath == "" {
		return fmt.Errorf("no backup path configured")
	}
	data, err := os.ReadFile(s.backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	var snap map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, raw := range snap {
		if err := s.setLocked(ctx, key, raw); err != nil {
			return err
		}
	}
	s.log.Info("Restored store from backup", zap.Int("keys", len(snap)))
	return nil
}
