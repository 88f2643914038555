package memory

import (
	"context"
	"fmt"
	"time"

	"adminhub.org/internal/auth"
)

// RefreshTokens implements auth.RefreshTokenStore.
type RefreshTokens struct{ st *state }

func (r *RefreshTokens) Create(_ context.Context, tok *auth.RefreshToken) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.insertToken(tok)
}

func (r *RefreshTokens) Find(_ context.Context, id string) (*auth.RefreshToken, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	rec, ok := r.st.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: refresh token", auth.ErrNotFound)
	}
	return cloneToken(rec), nil
}

func (r *RefreshTokens) Rotate(_ context.Context, oldID string, next *auth.RefreshToken, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	old, ok := r.st.tokens[oldID]
	if !ok || old.Revoked {
		return auth.ErrInvalidToken
	}
	if err := r.st.insertToken(next); err != nil {
		return err
	}
	revoke(old, at)
	old.ReplacedBy = next.ID
	return nil
}

func (r *RefreshTokens) RevokeSession(_ context.Context, sessionID string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, rec := range r.st.tokens {
		if rec.SessionID == sessionID && !rec.Revoked {
			revoke(rec, at)
		}
	}
	return nil
}

func (r *RefreshTokens) RevokeMember(_ context.Context, memberID string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, rec := range r.st.tokens {
		if rec.MemberID == memberID && !rec.Revoked {
			revoke(rec, at)
		}
	}
	return nil
}

func (st *state) insertToken(tok *auth.RefreshToken) error {
	if _, ok := st.members[tok.MemberID]; !ok {
		return fmt.Errorf("%w: member %s", auth.ErrNotFound, tok.MemberID)
	}
	if _, ok := st.tokens[tok.ID]; ok {
		return fmt.Errorf("%w: refresh token already exists", auth.ErrConflict)
	}
	st.tokens[tok.ID] = cloneToken(tok)
	return nil
}

func revoke(rec *auth.RefreshToken, at time.Time) {
	at = at.UTC()
	rec.Revoked = true
	rec.RevokedAt = &at
}

func cloneToken(t *auth.RefreshToken) *auth.RefreshToken {
	cp := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}
