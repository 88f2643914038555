package auth

import (
	"context"
	"time"
)

// MemberStore persists team members. Lookups return ErrNotFound for unknown
// ids or emails; loaded members carry their CustomRole when one is assigned.
type MemberStore interface {
	FindByID(ctx context.Context, id string) (*Member, error)
	FindByEmail(ctx context.Context, email string) (*Member, error)
	List(ctx context.Context, filter MemberFilter) ([]*Member, error)
	Create(ctx context.Context, m *Member) error
	Update(ctx context.Context, id string, upd MemberUpdate) (*Member, error)
	Delete(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id, ip string, at time.Time) error

	// AdminExists reports whether any member holds an administrative role.
	AdminExists(ctx context.Context) (bool, error)
	// CreateFirstAdmin atomically checks that no administrator exists,
	// upserts the administrative role and inserts m bound to it. It returns
	// ErrConflict when an administrator already exists.
	CreateFirstAdmin(ctx context.Context, m *Member, role *CustomRole) error
}

// RoleStore persists custom roles.
type RoleStore interface {
	Find(ctx context.Context, id string) (*CustomRole, error)
	FindByName(ctx context.Context, name string) (*CustomRole, error)
	List(ctx context.Context) ([]*CustomRole, error)
	Create(ctx context.Context, r *CustomRole) error
	Update(ctx context.Context, r *CustomRole) error
	Delete(ctx context.Context, id string) error
	CountMembers(ctx context.Context, id string) (int, error)
}

// SessionRepository is the durable session tier.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	// Find returns the session joined with its member's email and role.
	Find(ctx context.Context, id string) (*Session, error)
	// Deactivate marks a session inactive. A missing row is not an error.
	Deactivate(ctx context.Context, id string) error
	// DeactivateMember deactivates every active session of the member except
	// keepID and returns the ids it touched.
	DeactivateMember(ctx context.Context, memberID, keepID string) ([]string, error)
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate revokes oldID, linking it to next, and inserts next. Only an
	// unrevoked token can be rotated; otherwise ErrInvalidToken is returned
	// and next is not stored.
	Rotate(ctx context.Context, oldID string, next *RefreshToken, at time.Time) error
	RevokeSession(ctx context.Context, sessionID string, at time.Time) error
	RevokeMember(ctx context.Context, memberID string, at time.Time) error
}
