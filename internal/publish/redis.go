package publish

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/state"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisShadow keeps the latest state in a Redis hash
type RedisShadow struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisOptions configures the shadow
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// TTL expires the hash when no update arrives; zero keeps it forever
	TTL time.Duration
}

// NewRedisShadow connects and pings the server
func NewRedisShadow(ctx context.Context, opts RedisOptions) (*RedisShadow, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logging.Info("Connected to Redis", zap.String("addr", opts.Addr), zap.String("key", opts.Key))
	return &RedisShadow{client: client, key: opts.Key, ttl: opts.TTL}, nil
}

// Name implements Sink
func (r *RedisShadow) Name() string { return "redis" }

// Publish writes every field of snap to the hash and refreshes its TTL
func (r *RedisShadow) Publish(ctx context.Context, snap state.State) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, ShadowFields(snap))
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update shadow %s: %w", r.key, err)
	}
	return nil
}

// Close closes the client
func (r *RedisShadow) Close() error {
	return r.client.Close()
}

// ShadowFields flattens a snapshot into hash fields. Readings not yet
// observed are stored as empty strings.
func ShadowFields(snap state.State) map[string]interface{} {
	active := snap.Indicators.Active()
	names := make([]string, len(active))
	for i, ind := range active {
		names[i] = ind.String()
	}

	updated := ""
	if !snap.UpdatedAt.IsZero() {
		updated = snap.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	return map[string]interface{}{
		"air_temperature":     readingField(snap.AirTemperature),
		"pool_temperature":    readingField(snap.PoolTemperature),
		"chlorinator_percent": readingField(snap.ChlorinatorPercent),
		"temperature_unit":    snap.TemperatureUnit.String(),
		"indicators":          strings.Join(names, ","),
		"indicator_mask":      strconv.FormatUint(uint64(snap.Indicators.Mask()), 10),
		"version":             strconv.FormatUint(snap.Version, 10),
		"updated_at":          updated,
	}
}

func readingField(r state.Reading) string {
	if v, ok := r.Get(); ok {
		return strconv.Itoa(v)
	}
	return ""
}
