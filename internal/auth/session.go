package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"adminhub.org/internal/cache"
	"adminhub.org/internal/ids"
	"adminhub.org/internal/obs"
)

const (
	defaultSessionTTL = 24 * time.Hour
	sessionKeyPrefix  = "session:"
	sessionIDBytes    = 32
)

// SessionStore is the two-tier session store: a TTL cache in front of the
// durable session table. Every session id has its own cache entry.
//
// Invalidation writes the durable tier first. A concurrent Get that already
// read the fast tier may still observe the session once; that window is
// accepted.
type SessionStore struct {
	cache cache.Cache
	repo  SessionRepository
	ttl   time.Duration
	now   func() time.Time
	log   logrus.FieldLogger
}

// SessionOption configures SessionStore behavior.
type SessionOption func(*SessionStore)

// WithSessionTTL sets the lifetime of newly created sessions.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionLogger overrides the logger used for fast-tier failures.
func WithSessionLogger(l logrus.FieldLogger) SessionOption {
	return func(s *SessionStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSessionStore wires the fast tier c in front of the durable tier repo.
func NewSessionStore(c cache.Cache, repo SessionRepository, opts ...SessionOption) (*SessionStore, error) {
	if c == nil || repo == nil {
		return nil, errors.New("auth: session cache and repository are required")
	}
	s := &SessionStore{
		cache: c,
		repo:  repo,
		ttl:   defaultSessionTTL,
		now:   time.Now,
		log:   obs.Logger().WithField("component", "sessions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime given to new sessions.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Get resolves a session id. The fast tier is consulted first; on a miss or a
// fast-tier failure the durable tier is read and, for a valid session, the
// fast tier is repopulated for the session's remaining lifetime. Unknown,
// inactive and expired sessions yield ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (SessionData, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionData{}, ErrSessionNotFound
	}
	now := s.now()

	raw, err := s.cache.Get(ctx, sessionKey(id))
	switch {
	case err == nil:
		var data SessionData
		if jerr := json.Unmarshal(raw, &data); jerr == nil && data.MemberID != "" && now.Before(data.ExpiresAt) {
			obs.ObserveSessionCache("hit")
			return data, nil
		}
		obs.ObserveSessionCache("miss")
	case errors.Is(err, cache.ErrMiss):
		obs.ObserveSessionCache("miss")
	default:
		obs.ObserveSessionCache("error")
		s.log.WithError(err).Warn("session cache read failed, falling back to database")
	}

	sess, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SessionData{}, ErrSessionNotFound
		}
		return SessionData{}, fmt.Errorf("load session: %w", err)
	}
	if !sess.Valid(now) {
		return SessionData{}, ErrSessionNotFound
	}
	data := SessionData{
		MemberID:  sess.MemberID,
		Email:     sess.Email,
		Role:      sess.Role,
		ExpiresAt: sess.ExpiresAt,
	}
	if err := s.Put(ctx, id, data, sess.ExpiresAt.Sub(now)); err != nil {
		s.log.WithError(err).Warn("session cache repopulate failed")
	}
	return data, nil
}

// Put writes a session into the fast tier only.
func (s *SessionStore) Put(ctx context.Context, id string, data SessionData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, sessionKey(id), payload, ttl)
}

// Create opens a new session for m in both tiers and returns it.
func (s *SessionStore) Create(ctx context.Context, m *Member, ip, userAgent string) (*Session, error) {
	if m == nil || m.ID == "" {
		return nil, fmt.Errorf("%w: member is required", ErrInvalidInput)
	}
	id, err := ids.Opaque(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now()
	sess := &Session{
		ID:        id,
		MemberID:  m.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(s.ttl),
		IsActive:  true,
		CreatedAt: now,
		Email:     m.Email,
		Role:      m.Role,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	data := SessionData{MemberID: m.ID, Email: m.Email, Role: m.Role, ExpiresAt: sess.ExpiresAt}
	if err := s.Put(ctx, id, data, s.ttl); err != nil {
		s.log.WithError(err).Warn("session cache write failed")
	}
	return sess, nil
}

// Invalidate deactivates a session in both tiers. It is idempotent.
func (s *SessionStore) Invalidate(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := s.repo.Deactivate(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("deactivate session: %w", err)
	}
	s.evict(ctx, id)
	return nil
}

// InvalidateMember deactivates every session of a member except keepID,
// which may be empty.
func (s *SessionStore) InvalidateMember(ctx context.Context, memberID, keepID string) error {
	touched, err := s.repo.DeactivateMember(ctx, memberID, keepID)
	if err != nil {
		return fmt.Errorf("deactivate member sessions: %w", err)
	}
	for _, id := range touched {
		s.evict(ctx, id)
	}
	return nil
}

func (s *SessionStore) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, sessionKey(id)); err != nil {
		s.log.WithError(err).Warn("session cache delete failed")
	}
}

// SessionPurger is implemented by durable tiers that can drop dead sessions.
type SessionPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// Purge deletes expired and deactivated sessions from the durable tier. It is
// a no-op when the repository cannot purge.
func (s *SessionStore) Purge(ctx context.Context) (int, error) {
	p, ok := s.repo.(SessionPurger)
	if !ok {
		return 0, nil
	}
	return p.Purge(ctx, s.now())
}

// RunJanitor purges dead sessions every interval until ctx is done.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				s.log.WithError(err).Warn("session purge failed")
				continue
			}
			if n > 0 {
				s.log.WithField("purged", n).Info("purged dead sessions")
			}
		}
	}
}
