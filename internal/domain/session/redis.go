package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed session store.
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
		prefix = "chat:session:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Touch(ctx context.Context, sessionID, model string) error {
	if sessionID == "" {
		return fmt.Errorf("session id required")
	}

	activity, found, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !found {
		activity = Activity{SessionID: sessionID}
	}

	now := time.Now()
	exp := now.Add(s.ttl)
	activity.MessageCount++
	activity.LastModel = model
	activity.LastActiveAt = now
	activity.ExpiresAt = &exp

	data, err := sonic.Marshal(activity)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, sessionID string) (Activity, bool, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Activity{}, false, nil
		}
		return Activity{}, false, err
	}

	var activity Activity
	if err := sonic.Unmarshal(data, &activity); err != nil {
		return Activity{}, false, err
	}
	return activity, true, nil
}

func (s *redisStore) Remove(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	var count int64
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"driver": DriverRedis,
		"active": count,
	}, nil
}

func (s *redisStore) Close(_ context.Context) error {
	return s.client.Close()
}
