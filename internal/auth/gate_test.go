package auth

import (
	"errors"
	"testing"
)

func TestCheckRoles(t *testing.T) {
	hr := &Principal{Role: "hr"}
	admin := &Principal{Role: "Super Admin"}

	if err := CheckRoles(nil, "admin"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil principal: %v", err)
	}
	if err := CheckRoles(nil); err != nil {
		t.Fatalf("empty list should admit a missing principal: %v", err)
	}
	if err := CheckRoles(hr); err != nil {
		t.Fatalf("empty list should admit: %v", err)
	}
	if err := CheckRoles(hr, "admin", "HR"); err != nil {
		t.Fatalf("hr should pass: %v", err)
	}
	if err := CheckRoles(hr, "admin"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("hr must not pass admin-only gate: %v", err)
	}
	if err := CheckRoles(admin, "admin"); err != nil {
		t.Fatalf("super admin should pass an admin gate: %v", err)
	}
	if err := CheckRoles(admin, "manager"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin passes only lists naming an admin role: %v", err)
	}
}

func TestCheckPermissions(t *testing.T) {
	p := &Principal{Permissions: Permissions{Modules: map[string][]string{"team": {"edit"}, "role": {"view"}}}}

	if err := CheckPermissions(nil, "team:view"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil principal: %v", err)
	}
	if err := CheckPermissions(nil); err != nil {
		t.Fatalf("no requirements should admit a missing principal: %v", err)
	}
	if err := CheckPermissions(p); err != nil {
		t.Fatalf("empty requirements should admit: %v", err)
	}
	if err := CheckPermissions(p, "team:view", "team:edit", "role:view"); err != nil {
		t.Fatalf("expected all to pass: %v", err)
	}
	err := CheckPermissions(p, "team:view", "role:edit")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err.Error() == ErrForbidden.Error() {
		t.Fatalf("error should name the missing permission: %v", err)
	}
}
