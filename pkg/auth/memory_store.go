package auth

import (
	"strings"
	"sync"
)

// MemoryStore is an ephemeral in-process user repository. Suitable for
// development and tests; everything is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // normalized email -> id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *MemoryStore) FindByID(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) Create(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return ErrDuplicateEmail
	}
	copied := *user
	s.byID[user.ID] = &copied
	s.byEmail[key] = user.ID
	return nil
}

func (s *MemoryStore) Close() error { return nil }
