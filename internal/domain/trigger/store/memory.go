package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicerelay-server-go/internal/domain/trigger/model"
)

type memoryStore struct {
	items       map[string]model.Trigger
	mutex       sync.RWMutex
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory trigger store.
func NewMemory(cfg Config) Store {
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]model.Trigger),
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
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Put(_ context.Context, trig model.Trigger) error {
	if trig.ID == "" {
		return fmt.Errorf("trigger id required")
	}
	if trig.CreatedAt.IsZero() {
		trig.CreatedAt = time.Now()
	}

	s.mutex.Lock()
	s.items[trig.ID] = trig
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (model.Trigger, error) {
	s.mutex.RLock()
	trig, ok := s.items[id]
	s.mutex.RUnlock()
	if !ok {
		return model.Trigger{}, fmt.Errorf("trigger not found: %s", id)
	}
	if !trig.Active(time.Now()) {
		return model.Trigger{}, fmt.Errorf("trigger expired: %s", id)
	}
	return trig, nil
}

func (s *memoryStore) Remove(_ context.Context, id string) error {
	s.mutex.Lock()
	delete(s.items, id)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]model.Trigger, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]model.Trigger, 0, len(s.items))
	for _, trig := range s.items {
		if trig.Active(now) {
			out = append(out, trig)
		}
	}
	return out, nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for id, trig := range s.items {
		if !trig.Active(now) {
			delete(s.items, id)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := len(s.items)
	active := 0
	for _, trig := range s.items {
		if trig.Active(now) {
			active++
		}
	}
	return map[string]any{
		"type":   "memory",
		"total":  total,
		"active": active,
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
