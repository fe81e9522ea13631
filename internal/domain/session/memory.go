package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	items       map[string]Activity
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory session store.
func NewMemory(cfg Config) Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]Activity),
		ttl:         ttl,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) cleanupExpired() {
	now := time.Now()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, item := range s.items {
		if item.ExpiresAt != nil && now.After(*item.ExpiresAt) {
			delete(s.items, id)
		}
	}
}

func (s *memoryStore) Touch(_ context.Context, sessionID, model string) error {
	if sessionID == "" {
		return fmt.Errorf("session id required")
	}

	now := time.Now()
	exp := now.Add(s.ttl)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, ok := s.items[sessionID]
	if !ok || (item.ExpiresAt != nil && now.After(*item.ExpiresAt)) {
		item = Activity{SessionID: sessionID}
	}
	item.MessageCount++
	item.LastModel = model
	item.LastActiveAt = now
	item.ExpiresAt = &exp
	s.items[sessionID] = item
	return nil
}

func (s *memoryStore) Get(_ context.Context, sessionID string) (Activity, bool, error) {
	s.mutex.RLock()
	item, ok := s.items[sessionID]
	s.mutex.RUnlock()
	if !ok {
		return Activity{}, false, nil
	}
	if item.ExpiresAt != nil && time.Now().After(*item.ExpiresAt) {
		return Activity{}, false, nil
	}
	return item, true, nil
}

func (s *memoryStore) Remove(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	delete(s.items, sessionID)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, item := range s.items {
		if item.ExpiresAt == nil || now.Before(*item.ExpiresAt) {
			active++
		}
	}
	return map[string]any{
		"driver": DriverMemory,
		"total":  len(s.items),
		"active": active,
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
