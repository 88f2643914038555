package auth

import "context"

// Credential method names, also used as metric labels.
const (
	MethodSessionCookie = "session_cookie"
	MethodSessionHeader = "session_header"
	MethodBearer        = "bearer"
)

// Principal is the request-scoped authenticated identity.
type Principal struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	CustomRoleID string      `json:"custom_role_id,omitempty"`
	Permissions  Permissions `json:"permissions"`
	SessionID    string      `json:"session_id,omitempty"`
	Method       string      `json:"-"`
}

// NewPrincipal builds a principal for m with freshly resolved permissions.
func NewPrincipal(m *Member, sessionID, method string) *Principal {
	return &Principal{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		Role:         m.Role,
		CustomRoleID: m.CustomRoleID,
		Permissions:  ResolvePermissions(m),
		SessionID:    sessionID,
		Method:       method,
	}
}

// IsAdmin reports whether the principal holds the administrative role.
func (p *Principal) IsAdmin() bool {
	return p != nil && IsAdminRole(p.Role)
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	if principal == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
