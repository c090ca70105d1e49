package kvstore

import (
	"context"

	"go.uber.org/zap"
)

// Bool returns the boolean stored under key, or def when it is missing or unreadable.
func (s *Store) Bool(ctx context.Context, key string, def bool) bool {
	var v bool
	if !s.lookup(ctx, key, &v) {
		return def
	}
	return v
}

// String returns the string stored under key, or def when it is missing or unreadable.
func (s *Store) String(ctx context.Context, key string, def string) string {
	var v string
	if !s.lookup(ctx, key, &v) || v == "" {
		return def
	}
	return v
}

// Int returns the integer stored under key, or def when it is missing or unreadable.
func (s *Store) Int(ctx context.Context, key string, def int) int {
	var v int
	if !s.lookup(ctx, key, &v) {
		return def
	}
	return v
}

func (s *Store) lookup(ctx context.Context, key string, dst any) bool {
	ok, err := s.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn("Failed to read preference, using default", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}
