package storage

import (
	"context"
	"sync"
)

// InMemory keeps keys in a map. Used by tests and the memory backend for local runs.
type InMemory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{data: make(map[string]string)}
}

func (s *InMemory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (s *InMemory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *InMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

// Len reports the number of stored keys.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
