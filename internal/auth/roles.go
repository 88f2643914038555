package auth

import (
	"strings"
	"unicode"
)

// Normalized administrative role names.
const (
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

var legacyRoles = map[string]struct{}{
	"MANAGER": {},
	"HR":      {},
}

// NormalizeRole canonicalizes a free-text role name: surrounding space is
// dropped, letters are upper-cased and runs of whitespace, '-' or '_' become
// a single '_'. " Super admin " and "super-admin" both yield "SUPER_ADMIN".
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(role))
	sep := false
	for _, r := range role {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// IsAdminRole reports whether role classifies as the administrative role.
func IsAdminRole(role string) bool {
	switch NormalizeRole(role) {
	case RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func isLegacyRole(role string) bool {
	_, ok := legacyRoles[NormalizeRole(role)]
	return ok
}
