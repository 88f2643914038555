package auth

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

const (
	LoginMethodAny          = "any"
	LoginMethodIPRestricted = "ip_restricted"
)

// AllowAnyIP is the allowed_ips wildcard.
const AllowAnyIP = "*"

// Member is a team member record: the principal that logs in to the back office.
type Member struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	CustomRoleID string
	CustomRole   *CustomRole
	Status       string
	LastLoginAt  *time.Time
	LastLoginIP  string
	AllowedIPs   []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the member may authenticate.
func (m *Member) Active() bool {
	return m != nil && m.Status == StatusActive
}

// AllowsIP reports whether ip is permitted by the member's allow-list.
func (m *Member) AllowsIP(ip string) bool {
	ip = strings.TrimSpace(ip)
	for _, allowed := range m.AllowedIPs {
		allowed = strings.TrimSpace(allowed)
		if allowed == AllowAnyIP || (ip != "" && allowed == ip) {
			return true
		}
	}
	return false
}

// RequiresIPCheck reports whether login must be restricted to AllowedIPs.
func (m *Member) RequiresIPCheck() bool {
	return m.CustomRole != nil && m.CustomRole.LoginMethod == LoginMethodIPRestricted
}

// CustomRole is a named permission document assignable to members.
// Permissions holds the raw document as stored; see ParsePermissionDocument.
type CustomRole struct {
	ID          string
	Name        string
	Description string
	Permissions json.RawMessage
	LoginMethod string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is the durable session row.
type Session struct {
	ID        string
	MemberID  string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time

	// Populated by lookups that join the owning member.
	Email string
	Role  string
}

// Valid reports whether the session may still be used at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.IsActive && now.Before(s.ExpiresAt)
}

// SessionData is what the fast tier caches for a session id.
type SessionData struct {
	MemberID  string    `json:"member_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshToken is a persisted refresh token. ReplacedBy links a rotated token
// to its successor.
type RefreshToken struct {
	ID         string
	MemberID   string
	SessionID  string
	TokenHash  string
	IPAddress  string
	UserAgent  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy string
}

// MemberUpdate carries optional profile changes.
type MemberUpdate struct {
	Name         *string
	Email        *string
	Role         *string
	CustomRoleID *string
	AllowedIPs   []string
	Status       *string
	PasswordHash *string
}

// MemberFilter narrows ListMembers.
type MemberFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// RoleUpdate carries optional custom role changes.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions json.RawMessage
	LoginMethod *string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeIPs(ips []string) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" || slices.Contains(out, ip) {
			continue
		}
		out = append(out, ip)
	}
	return out
}
