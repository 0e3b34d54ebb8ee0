package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/BRAVO68WEB/devworld/internal/codec"
	"github.com/BRAVO68WEB/devworld/internal/pac"
)

// DefaultRedisKey is the hash holding all entries.
const DefaultRedisKey = "devworld:entries"

// Redis keeps entries in a single hash: field = canonical key, value = CBOR
// entry. Save replaces the hash atomically.
type Redis struct {
	client *redis.Client
	key    string
	log    *slog.Logger
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, username, password, key string, logger *slog.Logger) (*Redis, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{client: client, key: key, log: logger}, nil
}

func (r *Redis) Load(ctx context.Context) (map[string]pac.Entry, error) {
	// A missing hash reads as an empty map.
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]pac.Entry, len(fields))
	for k, v := range fields {
		var e pac.Entry
		if err := codec.Unmarshal([]byte(v), &e); err != nil {
			r.log.Warn("skipping undecodable entry", "key", k, "error", err)
			continue
		}
		entries[k] = e
	}
	return entries, nil
}

func (r *Redis) Save(ctx context.Context, entries map[string]pac.Entry) error {
	values := make([]any, 0, 2*len(entries))
	for k, e := range entries {
		data, err := codec.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		values = append(values, k, data)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.key, values...)
		}
		return nil
	})
	return err
}

func (r *Redis) Close() error {
	return r.client.Close()
}
