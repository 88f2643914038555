package auth

import "fmt"

// CheckRoles authorizes p when its role is one of allowed. Role names are
// compared normalized, and an administrator passes any list that names an
// administrative role. An empty list admits anyone, even without a principal.
func CheckRoles(p *Principal, allowed ...string) error {
	if len(allowed) == 0 {
		return nil
	}
	if p == nil {
		return ErrUnauthenticated
	}
	role := NormalizeRole(p.Role)
	admin := IsAdminRole(role)
	for _, a := range allowed {
		if NormalizeRole(a) == role || (admin && IsAdminRole(a)) {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s is not permitted", ErrForbidden, p.Role)
}

// CheckPermissions authorizes p when it satisfies every "module:action"
// requirement. No requirements admit anyone, signed in or not.
func CheckPermissions(p *Principal, required ...string) error {
	if len(required) == 0 {
		return nil
	}
	if p == nil {
		return ErrUnauthenticated
	}
	for _, r := range required {
		if !p.Permissions.Allows(r) {
			return fmt.Errorf("%w: missing permission %s", ErrForbidden, r)
		}
	}
	return nil
}
