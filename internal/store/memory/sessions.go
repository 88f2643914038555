package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"adminhub.org/internal/auth"
)

// Sessions implements auth.SessionRepository.
type Sessions struct{ st *state }

func (s *Sessions) Create(_ context.Context, sess *auth.Session) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.members[sess.MemberID]; !ok {
		return fmt.Errorf("%w: member %s", auth.ErrNotFound, sess.MemberID)
	}
	if _, ok := s.st.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: session already exists", auth.ErrConflict)
	}
	cp := *sess
	cp.Email, cp.Role = "", ""
	s.st.sessions[sess.ID] = &cp
	return nil
}

func (s *Sessions) Find(_ context.Context, id string) (*auth.Session, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	rec, ok := s.st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session", auth.ErrNotFound)
	}
	m, ok := s.st.members[rec.MemberID]
	if !ok {
		return nil, fmt.Errorf("%w: session", auth.ErrNotFound)
	}
	cp := *rec
	cp.Email, cp.Role = m.Email, m.Role
	return &cp, nil
}

func (s *Sessions) Deactivate(_ context.Context, id string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if rec, ok := s.st.sessions[id]; ok {
		rec.IsActive = false
	}
	return nil
}

func (s *Sessions) DeactivateMember(_ context.Context, memberID, keepID string) ([]string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var touched []string
	for id, rec := range s.st.sessions {
		if rec.MemberID != memberID || id == keepID || !rec.IsActive {
			continue
		}
		rec.IsActive = false
		touched = append(touched, id)
	}
	sort.Strings(touched)
	return touched, nil
}

// Purge drops sessions that expired or were deactivated before cutoff.
func (s *Sessions) Purge(_ context.Context, cutoff time.Time) (int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	n := 0
	for id, rec := range s.st.sessions {
		if rec.ExpiresAt.Before(cutoff) || !rec.IsActive {
			delete(s.st.sessions, id)
			n++
		}
	}
	return n, nil
}
