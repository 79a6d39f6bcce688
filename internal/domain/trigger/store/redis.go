package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"voicerelay-server-go/internal/domain/trigger/model"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed trigger store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "voicerelay"
	}

	return &redisStore{
		client: client,
		prefix: prefix + ":trigger:",
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Put(ctx context.Context, trig model.Trigger) error {
	if trig.ID == "" {
		return fmt.Errorf("trigger id required")
	}
	if trig.CreatedAt.IsZero() {
		trig.CreatedAt = time.Now()
	}
	data, err := json.Marshal(trig)
	if err != nil {
		return err
	}

	// Permanent triggers carry no TTL; temporary ones expire with the
	// record itself.
	var expiry time.Duration
	if trig.ExpiresAt != nil {
		expiry = time.Until(*trig.ExpiresAt)
		if expiry <= 0 {
			return fmt.Errorf("trigger already expired: %s", trig.ID)
		}
	}
	return s.client.Set(ctx, s.key(trig.ID), data, expiry).Err()
}

func (s *redisStore) Get(ctx context.Context, id string) (model.Trigger, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Trigger{}, fmt.Errorf("trigger not found: %s", id)
		}
		return model.Trigger{}, err
	}
	var trig model.Trigger
	if err := json.Unmarshal(raw, &trig); err != nil {
		return model.Trigger{}, err
	}
	if !trig.Active(time.Now()) {
		_ = s.Remove(ctx, id)
		return model.Trigger{}, fmt.Errorf("trigger expired: %s", id)
	}
	return trig, nil
}

func (s *redisStore) Remove(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *redisStore) List(ctx context.Context) ([]model.Trigger, error) {
	var cursor uint64
	out := make([]model.Trigger, 0)
	pattern := s.prefix + "*"
	now := time.Now()
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			raw, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				return nil, err
			}
			var trig model.Trigger
			if err := json.Unmarshal(raw, &trig); err != nil {
				return nil, fmt.Errorf("corrupt trigger record %s: %w", strings.TrimPrefix(key, s.prefix), err)
			}
			if trig.Active(now) {
				out = append(out, trig)
			}
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return out, nil
}

func (s *redisStore) CleanupExpired(context.Context) error {
	// Redis handles expiration via TTL.
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	var cursor uint64
	var total int64
	pattern := s.prefix + "*"
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		total += int64(len(keys))
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return map[string]any{
		"type":  "redis",
		"total": total,
	}, nil
}

func (s *redisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
