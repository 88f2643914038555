// Package memory keeps every auth record in process memory. It backs the API
// when no database is configured and the service-level tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"adminhub.org/internal/auth"
)

var (
	_ auth.MemberStore       = (*Members)(nil)
	_ auth.RoleStore         = (*Roles)(nil)
	_ auth.SessionRepository = (*Sessions)(nil)
	_ auth.RefreshTokenStore = (*RefreshTokens)(nil)
)

type state struct {
	mu       sync.RWMutex
	members  map[string]*auth.Member
	roles    map[string]*auth.CustomRole
	sessions map[string]*auth.Session
	tokens   map[string]*auth.RefreshToken
}

// Store groups the in-memory repositories over one shared state.
type Store struct {
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: &state{
		members:  make(map[string]*auth.Member),
		roles:    make(map[string]*auth.CustomRole),
		sessions: make(map[string]*auth.Session),
		tokens:   make(map[string]*auth.RefreshToken),
	}}
}

func (s *Store) Members() *Members             { return &Members{st: s.st} }
func (s *Store) Roles() *Roles                 { return &Roles{st: s.st} }
func (s *Store) Sessions() *Sessions           { return &Sessions{st: s.st} }
func (s *Store) RefreshTokens() *RefreshTokens { return &RefreshTokens{st: s.st} }

// Members implements auth.MemberStore.
type Members struct{ st *state }

func (m *Members) FindByID(_ context.Context, id string) (*auth.Member, error) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	rec, ok := m.st.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", auth.ErrNotFound, id)
	}
	return m.st.loadMember(rec), nil
}

func (m *Members) FindByEmail(_ context.Context, email string) (*auth.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	for _, rec := range m.st.members {
		if rec.Email == email {
			return m.st.loadMember(rec), nil
		}
	}
	return nil, fmt.Errorf("%w: member %s", auth.ErrNotFound, email)
}

func (m *Members) List(_ context.Context, filter auth.MemberFilter) ([]*auth.Member, error) {
	search := strings.ToLower(filter.Search)
	m.st.mu.RLock()
	out := make([]*auth.Member, 0, len(m.st.members))
	for _, rec := range m.st.members {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.Name), search) && !strings.Contains(rec.Email, search) {
			continue
		}
		out = append(out, m.st.loadMember(rec))
	}
	m.st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return []*auth.Member{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Members) Create(_ context.Context, rec *auth.Member) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	return m.st.insertMember(rec)
}

func (m *Members) Update(_ context.Context, id string, upd auth.MemberUpdate) (*auth.Member, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	rec, ok := m.st.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", auth.ErrNotFound, id)
	}
	if upd.Email != nil && *upd.Email != rec.Email {
		if m.st.emailTaken(*upd.Email) {
			return nil, fmt.Errorf("%w: email %s already registered", auth.ErrConflict, *upd.Email)
		}
		rec.Email = *upd.Email
	}
	if upd.Name != nil {
		rec.Name = *upd.Name
	}
	if upd.Role != nil {
		rec.Role = *upd.Role
	}
	if upd.CustomRoleID != nil {
		if *upd.CustomRoleID != "" {
			if _, ok := m.st.roles[*upd.CustomRoleID]; !ok {
				return nil, fmt.Errorf("%w: custom role %s", auth.ErrNotFound, *upd.CustomRoleID)
			}
		}
		rec.CustomRoleID = *upd.CustomRoleID
	}
	if upd.AllowedIPs != nil {
		rec.AllowedIPs = slices.Clone(upd.AllowedIPs)
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.PasswordHash != nil {
		rec.PasswordHash = *upd.PasswordHash
	}
	rec.UpdatedAt = time.Now().UTC()
	return m.st.loadMember(rec), nil
}

// Delete removes the member with its sessions and refresh tokens.
func (m *Members) Delete(_ context.Context, id string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if _, ok := m.st.members[id]; !ok {
		return fmt.Errorf("%w: member %s", auth.ErrNotFound, id)
	}
	delete(m.st.members, id)
	for sid, s := range m.st.sessions {
		if s.MemberID == id {
			delete(m.st.sessions, sid)
		}
	}
	for tid, t := range m.st.tokens {
		if t.MemberID == id {
			delete(m.st.tokens, tid)
		}
	}
	return nil
}

func (m *Members) RecordLogin(_ context.Context, id, ip string, at time.Time) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	rec, ok := m.st.members[id]
	if !ok {
		return fmt.Errorf("%w: member %s", auth.ErrNotFound, id)
	}
	at = at.UTC()
	rec.LastLoginAt = &at
	rec.LastLoginIP = ip
	return nil
}

func (m *Members) AdminExists(_ context.Context) (bool, error) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	return m.st.adminExists(), nil
}

// CreateFirstAdmin holds the write lock for the whole check-and-insert, so
// concurrent calls serialize and only the first one succeeds.
func (m *Members) CreateFirstAdmin(_ context.Context, rec *auth.Member, role *auth.CustomRole) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if m.st.adminExists() {
		return fmt.Errorf("%w: an administrator already exists", auth.ErrConflict)
	}
	if existing := m.st.roleByName(role.Name); existing != nil {
		existing.Permissions = slices.Clone(role.Permissions)
		existing.UpdatedAt = role.UpdatedAt
		role.ID = existing.ID
	} else {
		m.st.roles[role.ID] = cloneRole(role)
	}
	rec.CustomRoleID = role.ID
	if err := m.st.insertMember(rec); err != nil {
		return err
	}
	rec.CustomRole = cloneRole(m.st.roles[role.ID])
	return nil
}

func (st *state) adminExists() bool {
	for _, rec := range st.members {
		if auth.IsAdminRole(rec.Role) {
			return true
		}
	}
	return false
}

func (st *state) emailTaken(email string) bool {
	for _, rec := range st.members {
		if rec.Email == email {
			return true
		}
	}
	return false
}

func (st *state) insertMember(rec *auth.Member) error {
	if _, ok := st.members[rec.ID]; ok {
		return fmt.Errorf("%w: member %s already exists", auth.ErrConflict, rec.ID)
	}
	if st.emailTaken(rec.Email) {
		return fmt.Errorf("%w: email %s already registered", auth.ErrConflict, rec.Email)
	}
	if rec.CustomRoleID != "" {
		if _, ok := st.roles[rec.CustomRoleID]; !ok {
			return fmt.Errorf("%w: custom role %s", auth.ErrNotFound, rec.CustomRoleID)
		}
	}
	cp := *rec
	cp.CustomRole = nil
	cp.AllowedIPs = slices.Clone(rec.AllowedIPs)
	st.members[rec.ID] = &cp
	return nil
}

// loadMember returns a detached copy with the custom role attached.
func (st *state) loadMember(rec *auth.Member) *auth.Member {
	cp := *rec
	cp.AllowedIPs = slices.Clone(rec.AllowedIPs)
	if cp.AllowedIPs == nil {
		cp.AllowedIPs = []string{}
	}
	if rec.LastLoginAt != nil {
		at := *rec.LastLoginAt
		cp.LastLoginAt = &at
	}
	cp.CustomRole = nil
	if r, ok := st.roles[rec.CustomRoleID]; ok {
		cp.CustomRole = cloneRole(r)
	}
	return &cp
}

func (st *state) roleByName(name string) *auth.CustomRole {
	for _, r := range st.roles {
		if strings.EqualFold(r.Name, name) {
			return r
		}
	}
	return nil
}

func cloneRole(r *auth.CustomRole) *auth.CustomRole {
	cp := *r
	cp.Permissions = slices.Clone(r.Permissions)
	return &cp
}
