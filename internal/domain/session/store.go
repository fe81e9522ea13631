package session

import (
	"context"
	"time"
)

// Activity 一次聊天会话的活动快照
type Activity struct {
	SessionID    string     `json:"session_id"`
	MessageCount int        `json:"message_count"`
	LastModel    string     `json:"last_model,omitempty"`
	LastActiveAt time.Time  `json:"last_active_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Store 会话活动存储。记录按TTL过期，过期后视同不存在。
type Store interface {
	Touch(ctx context.Context, sessionID, model string) error
	Get(ctx context.Context, sessionID string) (Activity, bool, error)
	Remove(ctx context.Context, sessionID string) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
