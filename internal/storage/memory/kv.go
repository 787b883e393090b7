package memory

import (
	"context"
	"sync"
)

// KV is an in-process store. Nothing survives a restart.
type KV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewKV() *KV { return &KV{data: make(map[string]string)} }

func (s *KV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *KV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *KV) Ping(context.Context) error { return nil }
