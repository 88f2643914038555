package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"adminhub.org/internal/auth"
	"adminhub.org/internal/cache"
	"adminhub.org/internal/ids"
	"adminhub.org/internal/store/memory"
)

const (
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
	testPassword      = "correct horse battery"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock    *clock
	store    *memory.Store
	cache    *cache.Memory
	sessions *auth.SessionStore
	tokens   *auth.TokenIssuer
	authn    *auth.Authenticator
	service  *auth.Service
	admin    *auth.AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: newClock(), store: memory.New()}
	f.cache = cache.NewMemory(f.clock.Now)

	var err error
	f.sessions, err = auth.NewSessionStore(f.cache, f.store.Sessions(),
		auth.WithSessionTTL(time.Hour), auth.WithSessionClock(f.clock.Now))
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	f.tokens, err = auth.NewTokenIssuer(f.store.RefreshTokens(), testAccessSecret, testRefreshSecret,
		auth.WithAccessTTL(15*time.Minute), auth.WithRefreshTTL(24*time.Hour), auth.WithTokenClock(f.clock.Now))
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	f.authn = auth.NewAuthenticator(auth.DefaultMethods(f.sessions, f.tokens, f.store.Members())...)
	f.service, err = auth.NewService(f.store.Members(), f.sessions, f.tokens, auth.WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	f.admin, err = auth.NewAdminService(f.store.Members(), f.store.Roles(), f.sessions, f.tokens)
	if err != nil {
		t.Fatalf("admin service: %v", err)
	}
	return f
}

var (
	hashOnce   sync.Once
	cachedHash string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		cachedHash = h
	})
	return cachedHash
}

// addMember stores an active member with the shared test password.
func (f *fixture) addMember(t *testing.T, email, role string, mutate ...func(*auth.Member)) *auth.Member {
	t.Helper()
	m := &auth.Member{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash(t),
		Name:         email,
		Role:         role,
		Status:       auth.StatusActive,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	for _, fn := range mutate {
		fn(m)
	}
	if err := f.store.Members().Create(context.Background(), m); err != nil {
		t.Fatalf("create member %s: %v", email, err)
	}
	return m
}

func (f *fixture) addRole(t *testing.T, name, doc, loginMethod string) *auth.CustomRole {
	t.Helper()
	r := &auth.CustomRole{
		ID:          ids.New(),
		Name:        name,
		Permissions: []byte(doc),
		LoginMethod: loginMethod,
	}
	if err := f.store.Roles().Create(context.Background(), r); err != nil {
		t.Fatalf("create role %s: %v", name, err)
	}
	return r
}

func (f *fixture) login(t *testing.T, email string) *auth.LoginResult {
	t.Helper()
	res, err := f.service.Login(context.Background(), auth.LoginRequest{
		Email: email, Password: testPassword, IP: "10.0.0.1", UserAgent: "test",
	})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}
