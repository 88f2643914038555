package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"adminhub.org/internal/auth"
)

func member(id, email, role string) *auth.Member {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &auth.Member{ID: id, Email: email, Name: id, Role: role, Status: auth.StatusActive, CreatedAt: now, UpdatedAt: now}
}

func TestMembersEmailIsUnique(t *testing.T) {
	ctx := context.Background()
	members := New().Members()

	if err := members.Create(ctx, member("m1", "a@example.com", "HR")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := members.Create(ctx, member("m2", "a@example.com", "HR")); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := members.Create(ctx, member("m2", "b@example.com", "HR")); err != nil {
		t.Fatalf("create: %v", err)
	}
	email := "a@example.com"
	if _, err := members.Update(ctx, "m2", auth.MemberUpdate{Email: &email}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict on update, got %v", err)
	}
}

func TestMembersReturnCopies(t *testing.T) {
	ctx := context.Background()
	members := New().Members()
	rec := member("m1", "a@example.com", "HR")
	rec.AllowedIPs = []string{"10.0.0.1"}
	if err := members.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec.AllowedIPs[0] = "changed"

	got, err := members.FindByID(ctx, "m1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got.Name = "mutated"
	again, _ := members.FindByEmail(ctx, " A@example.com ")
	if again.Name != "m1" || again.AllowedIPs[0] != "10.0.0.1" {
		t.Fatalf("store leaked internal state: %+v", again)
	}
}

func TestCreateFirstAdminOnce(t *testing.T) {
	ctx := context.Background()
	st := New()
	role := &auth.CustomRole{ID: "r1", Name: auth.RoleAdmin, Permissions: auth.AdminPermissionDocument(), LoginMethod: auth.LoginMethodAny}

	if err := st.Members().CreateFirstAdmin(ctx, member("m1", "root@example.com", auth.RoleAdmin), role); err != nil {
		t.Fatalf("first admin: %v", err)
	}
	exists, _ := st.Members().AdminExists(ctx)
	if !exists {
		t.Fatal("expected admin to exist")
	}
	second := &auth.CustomRole{ID: "r2", Name: "admin"}
	if err := st.Members().CreateFirstAdmin(ctx, member("m2", "other@example.com", auth.RoleAdmin), second); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	roles, _ := st.Roles().List(ctx)
	if len(roles) != 1 {
		t.Fatalf("expected a single admin role, got %d", len(roles))
	}
}

func TestRoleDeleteBlockedByMembers(t *testing.T) {
	ctx := context.Background()
	st := New()
	if err := st.Roles().Create(ctx, &auth.CustomRole{ID: "r1", Name: "Ops"}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := st.Roles().Create(ctx, &auth.CustomRole{ID: "r2", Name: "ops"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected case-insensitive name conflict, got %v", err)
	}
	m := member("m1", "a@example.com", "Ops")
	m.CustomRoleID = "r1"
	if err := st.Members().Create(ctx, m); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if n, _ := st.Roles().CountMembers(ctx, "r1"); n != 1 {
		t.Fatalf("expected 1 member, got %d", n)
	}
	if err := st.Roles().Delete(ctx, "r1"); !errors.Is(err, auth.ErrHasDependents) {
		t.Fatalf("expected dependents error, got %v", err)
	}
	if err := st.Members().Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	if err := st.Roles().Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete role: %v", err)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	st := New()
	if err := st.Members().Create(ctx, member("m1", "a@example.com", "HR")); err != nil {
		t.Fatalf("create member: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, s := range []*auth.Session{
		{ID: "s1", MemberID: "m1", IsActive: true, ExpiresAt: now.Add(time.Hour)},
		{ID: "s2", MemberID: "m1", IsActive: true, ExpiresAt: now.Add(time.Hour)},
		{ID: "s3", MemberID: "m1", IsActive: true, ExpiresAt: now.Add(-time.Minute)},
	} {
		if err := st.Sessions().Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	if err := st.Sessions().Create(ctx, &auth.Session{ID: "s4", MemberID: "ghost"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found for unknown member, got %v", err)
	}

	got, err := st.Sessions().Find(ctx, "s1")
	if err != nil || got.Email != "a@example.com" || got.Role != "HR" {
		t.Fatalf("expected joined session, got %+v (%v)", got, err)
	}

	ids, err := st.Sessions().DeactivateMember(ctx, "m1", "s1")
	if err != nil {
		t.Fatalf("deactivate member: %v", err)
	}
	if len(ids) != 2 || ids[0] != "s2" || ids[1] != "s3" {
		t.Fatalf("unexpected deactivated ids: %v", ids)
	}

	n, err := st.Sessions().Purge(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 purged, got %d (%v)", n, err)
	}
	if _, err := st.Sessions().Find(ctx, "s1"); err != nil {
		t.Fatalf("active session purged: %v", err)
	}
}

func TestRefreshTokenRotateOnce(t *testing.T) {
	ctx := context.Background()
	st := New()
	if err := st.Members().Create(ctx, member("m1", "a@example.com", "HR")); err != nil {
		t.Fatalf("create member: %v", err)
	}
	tokens := st.RefreshTokens()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := tokens.Create(ctx, &auth.RefreshToken{ID: "t1", MemberID: "m1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	next := &auth.RefreshToken{ID: "t2", MemberID: "m1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)}
	if err := tokens.Rotate(ctx, "t1", next, now); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	old, _ := tokens.Find(ctx, "t1")
	if !old.Revoked || old.ReplacedBy != "t2" {
		t.Fatalf("old token not revoked: %+v", old)
	}
	again := &auth.RefreshToken{ID: "t3", MemberID: "m1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)}
	if err := tokens.Rotate(ctx, "t1", again, now); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token on reuse, got %v", err)
	}

	if err := tokens.RevokeSession(ctx, "s1", now); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	cur, _ := tokens.Find(ctx, "t2")
	if !cur.Revoked {
		t.Fatal("expected successor revoked with its session")
	}
}
