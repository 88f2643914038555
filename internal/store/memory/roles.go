package memory

import (
	"context"
	"fmt"
	"sort"

	"adminhub.org/internal/auth"
)

// Roles implements auth.RoleStore.
type Roles struct{ st *state }

func (r *Roles) Find(_ context.Context, id string) (*auth.CustomRole, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	rec, ok := r.st.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	return cloneRole(rec), nil
}

func (r *Roles) FindByName(_ context.Context, name string) (*auth.CustomRole, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	rec := r.st.roleByName(name)
	if rec == nil {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
	}
	return cloneRole(rec), nil
}

func (r *Roles) List(_ context.Context) ([]*auth.CustomRole, error) {
	r.st.mu.RLock()
	out := make([]*auth.CustomRole, 0, len(r.st.roles))
	for _, rec := range r.st.roles {
		out = append(out, cloneRole(rec))
	}
	r.st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Roles) Create(_ context.Context, role *auth.CustomRole) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.roleByName(role.Name) != nil {
		return fmt.Errorf("%w: role %s already exists", auth.ErrConflict, role.Name)
	}
	r.st.roles[role.ID] = cloneRole(role)
	return nil
}

func (r *Roles) Update(_ context.Context, role *auth.CustomRole) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.roles[role.ID]; !ok {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, role.ID)
	}
	if other := r.st.roleByName(role.Name); other != nil && other.ID != role.ID {
		return fmt.Errorf("%w: role %s already exists", auth.ErrConflict, role.Name)
	}
	r.st.roles[role.ID] = cloneRole(role)
	return nil
}

func (r *Roles) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	for _, m := range r.st.members {
		if m.CustomRoleID == id {
			return fmt.Errorf("%w: role %s is assigned", auth.ErrHasDependents, id)
		}
	}
	delete(r.st.roles, id)
	return nil
}

func (r *Roles) CountMembers(_ context.Context, id string) (int, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	n := 0
	for _, m := range r.st.members {
		if m.CustomRoleID == id {
			n++
		}
	}
	return n, nil
}
