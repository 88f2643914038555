package auth_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"adminhub.org/internal/auth"
)

func adminPrincipal(m *auth.Member) *auth.Principal {
	return auth.NewPrincipal(m, "", "")
}

func TestAdminRoleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.admin.CreateRole(ctx, auth.RoleInput{
		Name:        " Coordinator ",
		Permissions: json.RawMessage(`{"team":["view","view"],"project":["add"]}`),
	})
	require.NoError(t, err)
	require.Equal(t, "Coordinator", r.Name)
	require.Equal(t, auth.LoginMethodAny, r.LoginMethod)
	require.JSONEq(t, `{"project":["add"],"team":["view"]}`, string(r.Permissions))

	_, err = f.admin.CreateRole(ctx, auth.RoleInput{Name: "coordinator"})
	require.ErrorIs(t, err, auth.ErrConflict)
	_, err = f.admin.CreateRole(ctx, auth.RoleInput{Name: "Broken", Permissions: json.RawMessage(`["team"]`)})
	require.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.admin.CreateRole(ctx, auth.RoleInput{Name: "Odd", LoginMethod: "vpn"})
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	method := auth.LoginMethodIPRestricted
	updated, err := f.admin.UpdateRole(ctx, r.ID, auth.RoleUpdate{
		Permissions: json.RawMessage(`{"team":["edit"]}`),
		LoginMethod: &method,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"team":["edit"]}`, string(updated.Permissions))
	require.Equal(t, auth.LoginMethodIPRestricted, updated.LoginMethod)

	reserved := "Super Admin"
	_, err = f.admin.UpdateRole(ctx, r.ID, auth.RoleUpdate{Name: &reserved})
	require.ErrorIs(t, err, auth.ErrImmutableRole)

	roles, err := f.admin.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	require.NoError(t, f.admin.DeleteRole(ctx, r.ID))
	_, err = f.admin.GetRole(ctx, r.ID)
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAdminRoleIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.admin.CreateRole(ctx, auth.RoleInput{Name: "admin", Permissions: json.RawMessage(`{"team":["view"]}`)})
	require.NoError(t, err)
	require.JSONEq(t, string(auth.AdminPermissionDocument()), string(r.Permissions),
		"the administrative role always carries the full-access document")

	desc := "changed"
	_, err = f.admin.UpdateRole(ctx, r.ID, auth.RoleUpdate{Description: &desc})
	require.ErrorIs(t, err, auth.ErrImmutableRole)
	_, err = f.admin.UpdateRole(ctx, r.ID, auth.RoleUpdate{Permissions: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, auth.ErrImmutableRole)
	require.ErrorIs(t, f.admin.DeleteRole(ctx, r.ID), auth.ErrImmutableRole)
}

func TestDeleteRoleWithMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.addRole(t, "Coordinator", `{"team":["view"]}`, auth.LoginMethodAny)
	f.addMember(t, "ops@example.com", "Coordinator", func(m *auth.Member) { m.CustomRoleID = r.ID })

	require.ErrorIs(t, f.admin.DeleteRole(ctx, r.ID), auth.ErrHasDependents)
}

func TestAdminMemberLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.addMember(t, "root@example.com", "admin")
	actor := adminPrincipal(root)
	r := f.addRole(t, "Coordinator", `{"team":["view"]}`, auth.LoginMethodAny)

	m, err := f.admin.CreateMember(ctx, actor, auth.MemberInput{
		Email:        "New@Example.com",
		Password:     testPassword,
		Name:         "New Person",
		CustomRoleID: r.ID,
		AllowedIPs:   []string{" 10.0.0.1 ", "10.0.0.1", ""},
	})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", m.Email)
	require.Equal(t, "Coordinator", m.Role, "role defaults to the custom role name")
	require.Equal(t, auth.StatusActive, m.Status)
	require.Equal(t, []string{"10.0.0.1"}, m.AllowedIPs)
	require.NotNil(t, m.CustomRole)

	_, err = f.admin.CreateMember(ctx, actor, auth.MemberInput{Email: "new@example.com", Password: testPassword, Name: "Dup", Role: "hr"})
	require.ErrorIs(t, err, auth.ErrConflict)
	_, err = f.admin.CreateMember(ctx, actor, auth.MemberInput{Email: "x@example.com", Password: testPassword, Name: "X", CustomRoleID: "missing"})
	require.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.admin.CreateMember(ctx, actor, auth.MemberInput{Email: "y@example.com", Password: testPassword, Name: "Y"})
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	name := "Renamed"
	updated, err := f.admin.UpdateMember(ctx, actor, m.ID, auth.MemberUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)

	list, err := f.admin.ListMembers(ctx, auth.MemberFilter{Search: "renamed"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = f.admin.ListMembers(ctx, auth.MemberFilter{Status: "inactive"})
	require.NoError(t, err)
	require.Empty(t, list)
	_, err = f.admin.ListMembers(ctx, auth.MemberFilter{Status: "archived"})
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	require.ErrorIs(t, f.admin.DeleteMember(ctx, actor, root.ID), auth.ErrInvalidInput)
	require.NoError(t, f.admin.DeleteMember(ctx, actor, m.ID))
	_, err = f.admin.GetMember(ctx, m.ID)
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestOnlyAdminsGrantAdminRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hr := f.addMember(t, "hr@example.com", "hr")
	target := f.addMember(t, "ops@example.com", "manager")
	actor := adminPrincipal(hr)

	_, err := f.admin.CreateMember(ctx, actor, auth.MemberInput{Email: "boss@example.com", Password: testPassword, Name: "Boss", Role: "Admin"})
	require.ErrorIs(t, err, auth.ErrForbidden)

	role := "super-admin"
	_, err = f.admin.UpdateMember(ctx, actor, target.ID, auth.MemberUpdate{Role: &role})
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestOnlyAdminsAssignAdminCustomRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminRole, err := f.admin.CreateRole(ctx, auth.RoleInput{Name: "ADMIN"})
	require.NoError(t, err)
	recruiter := f.addRole(t, "Recruiter", `{"team":["view","edit","add"]}`, auth.LoginMethodAny)
	self := f.addMember(t, "recruiter@example.com", "Recruiter", func(m *auth.Member) {
		m.CustomRoleID = recruiter.ID
	})
	res := f.login(t, self.Email)
	actor := res.Principal
	require.True(t, actor.Permissions.Allows("team:edit"))

	_, err = f.admin.UpdateMember(ctx, actor, self.ID, auth.MemberUpdate{CustomRoleID: &adminRole.ID})
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.admin.CreateMember(ctx, actor, auth.MemberInput{
		Email: "crony@example.com", Password: testPassword, Name: "Crony", CustomRoleID: adminRole.ID,
	})
	require.ErrorIs(t, err, auth.ErrForbidden)
	_, err = f.admin.CreateMember(ctx, actor, auth.MemberInput{
		Email: "crony@example.com", Password: testPassword, Name: "Crony", Role: "Recruiter", CustomRoleID: adminRole.ID,
	})
	require.ErrorIs(t, err, auth.ErrForbidden, "a harmless role name must not mask the admin custom role")

	p, err := f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: res.Session.ID})
	require.NoError(t, err)
	require.False(t, p.Permissions.Allows("role:delete"))
	require.False(t, p.Permissions.SuperAdmin)

	// Administrators may still hand it out.
	root := f.addMember(t, "root@example.com", "admin")
	m, err := f.admin.UpdateMember(ctx, adminPrincipal(root), self.ID, auth.MemberUpdate{CustomRoleID: &adminRole.ID})
	require.NoError(t, err)
	require.Equal(t, adminRole.ID, m.CustomRoleID)
}

func TestDeactivateMemberEndsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.addMember(t, "root@example.com", "admin")
	f.addMember(t, "ops@example.com", "manager")
	res := f.login(t, "ops@example.com")

	_, err := f.admin.SetMemberStatus(ctx, adminPrincipal(root), root.ID, "inactive")
	require.ErrorIs(t, err, auth.ErrInvalidInput, "no self-deactivation")

	m, err := f.admin.SetMemberStatus(ctx, adminPrincipal(root), res.Principal.ID, "Inactive")
	require.NoError(t, err)
	require.Equal(t, auth.StatusInactive, m.Status)

	_, err = f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: res.Session.ID})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = f.authn.Authenticate(ctx, auth.Credentials{BearerToken: res.Tokens.AccessToken})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, _, err = f.service.Refresh(ctx, res.Tokens.RefreshToken, "", "")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = f.admin.SetMemberStatus(ctx, adminPrincipal(root), res.Principal.ID, "active")
	require.NoError(t, err)
	f.login(t, "ops@example.com")
}

type failingDelete struct {
	auth.MemberStore
}

func (failingDelete) Delete(context.Context, string) error {
	return auth.ErrHasDependents
}

func TestFailedDeleteKeepsMemberSignedIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.addMember(t, "root@example.com", "admin")
	f.addMember(t, "ops@example.com", "manager")
	res := f.login(t, "ops@example.com")

	admin, err := auth.NewAdminService(failingDelete{MemberStore: f.store.Members()}, f.store.Roles(), f.sessions, f.tokens)
	require.NoError(t, err)
	err = admin.DeleteMember(ctx, adminPrincipal(root), res.Principal.ID)
	require.ErrorIs(t, err, auth.ErrHasDependents)

	p, err := f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: res.Session.ID})
	require.NoError(t, err)
	require.Equal(t, res.Principal.ID, p.ID)
	_, _, err = f.service.Refresh(ctx, res.Tokens.RefreshToken, "", "")
	require.NoError(t, err)

	require.NoError(t, f.admin.DeleteMember(ctx, adminPrincipal(root), res.Principal.ID))
	_, err = f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: res.Session.ID})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}
