package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"adminhub.org/internal/ids"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AdminService manages team members and custom roles.
type AdminService struct {
	members  MemberStore
	roles    RoleStore
	sessions *SessionStore
	tokens   *TokenIssuer
	now      func() time.Time
}

func NewAdminService(members MemberStore, roles RoleStore, sessions *SessionStore, tokens *TokenIssuer) (*AdminService, error) {
	if members == nil || roles == nil {
		return nil, errors.New("member and role stores are required")
	}
	if sessions == nil || tokens == nil {
		return nil, errors.New("session store and token issuer are required")
	}
	return &AdminService{members: members, roles: roles, sessions: sessions, tokens: tokens, now: time.Now}, nil
}

// MemberInput describes a new team member.
type MemberInput struct {
	Email        string
	Password     string
	Name         string
	Role         string
	CustomRoleID string
	AllowedIPs   []string
	Status       string
}

func (s *AdminService) CreateMember(ctx context.Context, actor *Principal, in MemberInput) (*Member, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	status, err := normalizeStatus(in.Status)
	if err != nil {
		return nil, err
	}
	role := strings.TrimSpace(in.Role)
	customRoleID := strings.TrimSpace(in.CustomRoleID)
	if customRoleID != "" {
		cr, err := s.lookupRole(ctx, customRoleID)
		if err != nil {
			return nil, err
		}
		if err := checkAdminGrant(actor, cr.Name); err != nil {
			return nil, err
		}
		if role == "" {
			role = cr.Name
		}
	}
	if role == "" {
		return nil, fmt.Errorf("%w: role or custom_role_id is required", ErrInvalidInput)
	}
	if err := checkAdminGrant(actor, role); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m := &Member{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		CustomRoleID: customRoleID,
		Status:       status,
		AllowedIPs:   normalizeIPs(in.AllowedIPs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, err
	}
	return s.members.FindByID(ctx, m.ID)
}

func (s *AdminService) GetMember(ctx context.Context, id string) (*Member, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	return s.members.FindByID(ctx, id)
}

func (s *AdminService) ListMembers(ctx context.Context, filter MemberFilter) ([]*Member, error) {
	if filter.Status != "" {
		status, err := normalizeStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.members.List(ctx, filter)
}

// UpdateMember changes profile fields. Status and password have dedicated
// operations and are ignored here.
func (s *AdminService) UpdateMember(ctx context.Context, actor *Principal, id string, upd MemberUpdate) (*Member, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	upd.Status = nil
	upd.PasswordHash = nil
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Role != nil {
		role := strings.TrimSpace(*upd.Role)
		if role == "" {
			return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
		}
		if err := checkAdminGrant(actor, role); err != nil {
			return nil, err
		}
		upd.Role = &role
	}
	if upd.CustomRoleID != nil {
		crID := strings.TrimSpace(*upd.CustomRoleID)
		if crID != "" {
			cr, err := s.lookupRole(ctx, crID)
			if err != nil {
				return nil, err
			}
			if err := checkAdminGrant(actor, cr.Name); err != nil {
				return nil, err
			}
		}
		upd.CustomRoleID = &crID
	}
	if upd.AllowedIPs != nil {
		upd.AllowedIPs = normalizeIPs(upd.AllowedIPs)
	}
	if _, err := s.members.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.members.Update(ctx, id, upd)
}

// SetMemberStatus activates or deactivates a member. Deactivation ends every
// session of the member and revokes its refresh tokens.
func (s *AdminService) SetMemberStatus(ctx context.Context, actor *Principal, id, status string) (*Member, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}
	status, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}
	if status == StatusInactive && actor != nil && actor.ID == id {
		return nil, fmt.Errorf("%w: you cannot deactivate yourself", ErrInvalidInput)
	}
	m, err := s.members.Update(ctx, id, MemberUpdate{Status: &status})
	if err != nil {
		return nil, err
	}
	if status == StatusInactive {
		if err := s.endMemberAccess(ctx, id); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DeleteMember removes a member. Members still referenced by other records
// cannot be deleted (ErrHasDependents).
func (s *AdminService) DeleteMember(ctx context.Context, actor *Principal, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if actor != nil && actor.ID == id {
		return fmt.Errorf("%w: you cannot delete yourself", ErrInvalidInput)
	}
	if _, err := s.members.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.members.Delete(ctx, id); err != nil {
		return err
	}
	// Stores that cascade have already dropped the rows; this clears what is
	// left in the fast tier and in stores that do not.
	return s.endMemberAccess(ctx, id)
}

func (s *AdminService) endMemberAccess(ctx context.Context, id string) error {
	if err := s.sessions.InvalidateMember(ctx, id, ""); err != nil {
		return err
	}
	if err := s.tokens.RevokeMember(ctx, id); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// RoleInput describes a new custom role.
type RoleInput struct {
	Name        string
	Description string
	Permissions json.RawMessage
	LoginMethod string
}

// CreateRole stores a custom role. A role named like the administrative role
// always receives the full-access document.
func (s *AdminService) CreateRole(ctx context.Context, in RoleInput) (*CustomRole, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	method, err := normalizeLoginMethod(in.LoginMethod)
	if err != nil {
		return nil, err
	}
	var doc json.RawMessage
	if IsAdminRole(name) {
		doc = AdminPermissionDocument()
	} else if doc, err = ValidatePermissionDocument(in.Permissions); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := &CustomRole{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Permissions: doc,
		LoginMethod: method,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *AdminService) GetRole(ctx context.Context, id string) (*CustomRole, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.roles.Find(ctx, id)
}

func (s *AdminService) ListRoles(ctx context.Context) ([]*CustomRole, error) {
	return s.roles.List(ctx)
}

// UpdateRole changes a custom role. The administrative role is immutable and
// no role may be renamed into it.
func (s *AdminService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*CustomRole, error) {
	r, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsAdminRole(r.Name) {
		return nil, ErrImmutableRole
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if IsAdminRole(name) {
			return nil, fmt.Errorf("%w: role name %q is reserved", ErrImmutableRole, name)
		}
		r.Name = name
	}
	if upd.Description != nil {
		r.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		doc, err := ValidatePermissionDocument(upd.Permissions)
		if err != nil {
			return nil, err
		}
		r.Permissions = doc
	}
	if upd.LoginMethod != nil {
		method, err := normalizeLoginMethod(*upd.LoginMethod)
		if err != nil {
			return nil, err
		}
		r.LoginMethod = method
	}
	r.UpdatedAt = s.now().UTC()
	if err := s.roles.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRole removes a custom role that no member is assigned to.
func (s *AdminService) DeleteRole(ctx context.Context, id string) error {
	r, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if IsAdminRole(r.Name) {
		return ErrImmutableRole
	}
	n, err := s.roles.CountMembers(ctx, r.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d members are assigned to role %s", ErrHasDependents, n, r.Name)
	}
	return s.roles.Delete(ctx, r.ID)
}

func (s *AdminService) lookupRole(ctx context.Context, id string) (*CustomRole, error) {
	r, err := s.roles.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: custom role %s does not exist", ErrInvalidInput, id)
	}
	return r, err
}

// checkAdminGrant keeps non-administrators from handing out the
// administrative role, either as a legacy role name or as the custom role
// carrying the full-access document.
func checkAdminGrant(actor *Principal, role string) error {
	if IsAdminRole(role) && !actor.IsAdmin() {
		return fmt.Errorf("%w: only administrators may grant role %s", ErrForbidden, role)
	}
	return nil
}

func normalizeStatus(status string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
}

func normalizeLoginMethod(method string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", LoginMethodAny:
		return LoginMethodAny, nil
	case LoginMethodIPRestricted:
		return LoginMethodIPRestricted, nil
	default:
		return "", fmt.Errorf("%w: unsupported login method %s", ErrInvalidInput, method)
	}
}
