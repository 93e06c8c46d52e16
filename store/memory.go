package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory TokenStore used in tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]map[string]Tokens
	states map[string]AuthState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]map[string]Tokens),
		states: make(map[string]AuthState),
	}
}

func (s *MemoryStore) SaveTokens(_ context.Context, userID, service string, t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	services, ok := s.users[userID]
	if !ok {
		services = make(map[string]Tokens)
		s.users[userID] = services
	}
	services[service] = t
	return nil
}

func (s *MemoryStore) Tokens(_ context.Context, userID, service string) (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.users[userID][service]
	if !ok {
		return Tokens{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) SaveAuthState(_ context.Context, key string, st AuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = st
	return nil
}

func (s *MemoryStore) AuthState(_ context.Context, key string) (AuthState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	if !ok {
		return AuthState{}, ErrNotFound
	}
	return st, nil
}
