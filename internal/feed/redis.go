// Package feed connects the dispatcher and the calibration engine to the external
// screen classifier, which publishes world states and coordinates into Redis.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/fishing"
)

// redisClient is the subset of *redis.Client the feeds use.
type redisClient interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("feed: redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisFeed pops state labels off a Redis list. The classifier LPUSHes labels and
// mirrors the latest one into "<queue>:current".
type RedisFeed struct {
	client redisClient
	queue  string
	wait   time.Duration
}

// NewRedisFeed creates a feed over the configured state queue.
func NewRedisFeed(client redisClient, cfg config.RedisConfig) *RedisFeed {
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	queue := cfg.StateQueue
	if queue == "" {
		queue = "angler:states"
	}
	return &RedisFeed{client: client, queue: queue, wait: wait}
}

// Next blocks until a state label is available. Unrecognized labels come back as
// fishing.StateUnknown for the dispatcher to drop.
func (f *RedisFeed) Next(ctx context.Context) (fishing.State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return fishing.StateUnknown, err
		}
		values, err := f.client.BRPop(ctx, f.wait, f.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fishing.StateUnknown, fmt.Errorf("failed to pop state: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		return fishing.ParseState(values[1]), nil
	}
}

// Current returns the state the classifier reported last.
func (f *RedisFeed) Current(ctx context.Context) (fishing.State, bool) {
	label, err := f.client.Get(ctx, f.queue+":current").Result()
	if err != nil {
		return fishing.StateUnknown, false
	}
	st := fishing.ParseState(label)
	return st, st != fishing.StateUnknown
}

// RedisCoords reads the character's coordinates from a Redis hash with the fields
// x, y and heading.
type RedisCoords struct {
	client redisClient
	key    string
}

// NewRedisCoords creates a coordinate provider over the configured hash.
func NewRedisCoords(client redisClient, cfg config.RedisConfig) *RedisCoords {
	key := cfg.CoordsKey
	if key == "" {
		key = "angler:coords"
	}
	return &RedisCoords{client: client, key: key}
}

// Coords samples the hash. Any failure counts as no reading.
func (c *RedisCoords) Coords(ctx context.Context) (calibration.Coordinates, bool) {
	fields, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return calibration.Coordinates{}, false
	}
	coords, err := ParseCoordinates(fields)
	if err != nil {
		return calibration.Coordinates{}, false
	}
	return coords, true
}

// ParseCoordinates decodes the x, y and heading fields.
func ParseCoordinates(fields map[string]string) (calibration.Coordinates, error) {
	var out calibration.Coordinates
	for name, dst := range map[string]*float64{"x": &out.X, "y": &out.Y, "heading": &out.Heading} {
		raw, ok := fields[name]
		if !ok {
			return calibration.Coordinates{}, fmt.Errorf("missing field %q", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return calibration.Coordinates{}, fmt.Errorf("invalid field %q: %w", name, err)
		}
		*dst = v
	}
	return out, nil
}
