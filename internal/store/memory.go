package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

var _ UserStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) ReadUserRecord(ctx context.Context, subjectID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[subjectID]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (s *MemoryStore) CreateUserRecord(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return ErrExists
	}
	s.users[u.ID] = clone(u)
	return nil
}

func (s *MemoryStore) TouchLastSeen(ctx context.Context, subjectID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[subjectID]
	if !ok {
		return ErrNotFound
	}
	u.LastActive = at
	return nil
}

func (s *MemoryStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func clone(u *User) *User {
	c := *u
	c.Following = slices.Clone(u.Following)
	return &c
}
