// Package memory keeps browser sessions in process memory.
//
// It is the default store: nothing to run, nothing to configure. Sessions
// are lost on restart, which for UI state only means the page bootstraps
// again on the next load.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

var _ repository.SessionRepository = (*SessionStore)(nil)

// SessionStore is a map of sessions guarded by a single mutex.
//
// The store only ever holds its own copies: every session going in or out
// is cloned, so a caller mutating what it got back cannot change stored state
// behind the lock's back.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

func (s *SessionStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return apperror.Conflict("session", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	return session.Clone(), nil
}

// Update applies fn under the write lock. fn must not block: callers do
// their network I/O first and only fold the result in here.
func (s *SessionStore) Update(_ context.Context, id string, fn repository.MutateFunc) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.UpdatedAt = s.now()

	s.sessions[id] = next
	return next.Clone(), nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return apperror.NotFound("session", id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) Sweep(_ context.Context, idleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(idleBefore) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
