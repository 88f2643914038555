package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"adminhub.org/internal/auth"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.addMember(t, "ops@example.com", "manager")

	res, err := f.service.Login(ctx, auth.LoginRequest{Email: " OPS@example.com ", Password: testPassword, IP: "10.0.0.7"})
	require.NoError(t, err)
	require.Equal(t, m.ID, res.Principal.ID)
	require.Equal(t, res.Session.ID, res.Principal.SessionID)
	require.NotEmpty(t, res.Tokens.AccessToken)

	claims, err := f.tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.Session.ID, claims.SessionID)

	stored, err := f.store.Members().FindByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, "10.0.0.7", stored.LastLoginIP)

	p, err := f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: res.Session.ID})
	require.NoError(t, err)
	require.Equal(t, m.ID, p.ID)
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "ops@example.com", "manager")
	f.addMember(t, "gone@example.com", "manager", func(m *auth.Member) { m.Status = auth.StatusInactive })

	cases := map[string]auth.LoginRequest{
		"unknown email":  {Email: "nobody@example.com", Password: testPassword},
		"wrong password": {Email: "ops@example.com", Password: "wrong password"},
		"inactive":       {Email: "gone@example.com", Password: testPassword},
		"empty":          {},
	}
	for name, req := range cases {
		_, err := f.service.Login(ctx, req)
		require.ErrorIs(t, err, auth.ErrInvalidCredentials, name)
	}
}

func TestLoginIPRestriction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	role := f.addRole(t, "Field", `{"task":["view"]}`, auth.LoginMethodIPRestricted)
	f.addMember(t, "field@example.com", "Field", func(m *auth.Member) {
		m.CustomRoleID = role.ID
		m.AllowedIPs = []string{"192.168.1.10"}
	})
	f.addMember(t, "anywhere@example.com", "Field", func(m *auth.Member) {
		m.CustomRoleID = role.ID
		m.AllowedIPs = []string{"*"}
	})

	_, err := f.service.Login(ctx, auth.LoginRequest{Email: "field@example.com", Password: testPassword, IP: "10.1.1.1"})
	require.ErrorIs(t, err, auth.ErrIPNotAllowed)
	_, err = f.service.Login(ctx, auth.LoginRequest{Email: "field@example.com", Password: testPassword, IP: "192.168.1.10"})
	require.NoError(t, err)
	_, err = f.service.Login(ctx, auth.LoginRequest{Email: "anywhere@example.com", Password: testPassword, IP: "10.1.1.1"})
	require.NoError(t, err)
}

func TestLogoutEndsSessionAndRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "ops@example.com", "manager")
	res := f.login(t, "ops@example.com")

	require.NoError(t, f.service.Logout(ctx, res.Principal))
	_, err := f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: res.Session.ID})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, _, err = f.service.Refresh(ctx, res.Tokens.RefreshToken, "", "")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	require.NoError(t, f.service.Logout(ctx, res.Principal), "logout is idempotent")
	require.ErrorIs(t, f.service.Logout(ctx, nil), auth.ErrUnauthenticated)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.addMember(t, "ops@example.com", "manager")
	res := f.login(t, "ops@example.com")

	pair, p, err := f.service.Refresh(ctx, res.Tokens.RefreshToken, "10.0.0.1", "ua")
	require.NoError(t, err)
	require.Equal(t, m.ID, p.ID)
	require.Equal(t, res.Session.ID, p.SessionID)

	_, _, err = f.service.Refresh(ctx, res.Tokens.RefreshToken, "", "")
	require.ErrorIs(t, err, auth.ErrInvalidToken, "a refresh token is single use")

	inactive := auth.StatusInactive
	_, err = f.store.Members().Update(ctx, m.ID, auth.MemberUpdate{Status: &inactive})
	require.NoError(t, err)
	_, _, err = f.service.Refresh(ctx, pair.RefreshToken, "", "")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "ops@example.com", "hr")
	res := f.login(t, "ops@example.com")

	p, m, err := f.service.Me(context.Background(), res.Principal)
	require.NoError(t, err)
	require.Equal(t, res.Principal.ID, m.ID)
	require.Equal(t, res.Session.ID, p.SessionID)
	require.True(t, p.Permissions.Allows("company:add"))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "ops@example.com", "manager")
	current := f.login(t, "ops@example.com")
	other := f.login(t, "ops@example.com")

	err := f.service.ChangePassword(ctx, current.Principal, "wrong password", "new password 123")
	require.ErrorIs(t, err, auth.ErrInvalidInput)
	err = f.service.ChangePassword(ctx, current.Principal, testPassword, "short")
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	require.NoError(t, f.service.ChangePassword(ctx, current.Principal, testPassword, "new password 123"))

	_, err = f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: current.Session.ID})
	require.NoError(t, err, "the current session survives")
	_, err = f.authn.Authenticate(ctx, auth.Credentials{SessionCookie: other.Session.ID})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, _, err = f.service.Refresh(ctx, other.Tokens.RefreshToken, "", "")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = f.service.Login(ctx, auth.LoginRequest{Email: "ops@example.com", Password: testPassword})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, auth.LoginRequest{Email: "ops@example.com", Password: "new password 123"})
	require.NoError(t, err)
}

func TestSetup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done, err := f.service.SetupStatus(ctx)
	require.NoError(t, err)
	require.False(t, done)

	_, err = f.service.Setup(ctx, auth.SetupRequest{Email: "bad", Password: testPassword, Name: "Root"})
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	m, err := f.service.Setup(ctx, auth.SetupRequest{Email: "Root@Example.com", Password: testPassword, Name: "Root"})
	require.NoError(t, err)
	require.Equal(t, "root@example.com", m.Email)
	require.NotEmpty(t, m.CustomRoleID)

	done, err = f.service.SetupStatus(ctx)
	require.NoError(t, err)
	require.True(t, done)

	role, err := f.store.Roles().Find(ctx, m.CustomRoleID)
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, role.Name)
	require.JSONEq(t, string(auth.AdminPermissionDocument()), string(role.Permissions))

	_, err = f.service.Setup(ctx, auth.SetupRequest{Email: "second@example.com", Password: testPassword, Name: "Second"})
	require.ErrorIs(t, err, auth.ErrConflict)

	res := f.login(t, "root@example.com")
	require.True(t, res.Principal.Permissions.SuperAdmin)
}

func TestSetupConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Setup(context.Background(), auth.SetupRequest{
				Email:    "admin" + string(rune('a'+i)) + "@example.com",
				Password: testPassword,
				Name:     "Admin",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, auth.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
}
