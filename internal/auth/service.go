package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"adminhub.org/internal/ids"
	"adminhub.org/internal/obs"
)

// Service implements the session lifecycle: login, logout, token refresh,
// password changes and the first-administrator bootstrap.
type Service struct {
	members  MemberStore
	sessions *SessionStore
	tokens   *TokenIssuer
	now      func() time.Time
	log      logrus.FieldLogger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(members MemberStore, sessions *SessionStore, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if members == nil || sessions == nil || tokens == nil {
		return nil, errors.New("auth: member store, session store and token issuer are required")
	}
	svc := &Service{
		members:  members,
		sessions: sessions,
		tokens:   tokens,
		now:      time.Now,
		log:      obs.Logger().WithField("component", "auth"),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// LoginRequest carries credentials and client metadata.
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Principal *Principal
	Session   *Session
	Tokens    TokenPair
}

// Login verifies credentials, opens a session and issues a token pair bound
// to it. Unknown emails, wrong passwords and inactive members all yield
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	m, err := s.members.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load member: %w", err)
	}
	if !CheckPassword(m.PasswordHash, req.Password) || !m.Active() {
		return nil, ErrInvalidCredentials
	}
	if m.RequiresIPCheck() && !m.AllowsIP(req.IP) {
		return nil, fmt.Errorf("%w: %s", ErrIPNotAllowed, req.IP)
	}

	now := s.now()
	if err := s.members.RecordLogin(ctx, m.ID, req.IP, now); err != nil {
		s.log.WithError(err).WithField("member_id", m.ID).Warn("record login failed")
	} else {
		m.LastLoginAt = &now
		m.LastLoginIP = req.IP
	}

	sess, err := s.sessions.Create(ctx, m, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(ctx, IssueRequest{
		MemberID:  m.ID,
		Email:     m.Email,
		Role:      m.Role,
		SessionID: sess.ID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Principal: NewPrincipal(m, sess.ID, ""),
		Session:   sess,
		Tokens:    pair,
	}, nil
}

// Logout ends the principal's session and revokes the refresh tokens bound
// to it. A principal without a session has nothing to end.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.SessionID == "" {
		return nil
	}
	if err := s.sessions.Invalidate(ctx, p.SessionID); err != nil {
		return err
	}
	if err := s.tokens.RevokeSession(ctx, p.SessionID); err != nil {
		return fmt.Errorf("revoke session tokens: %w", err)
	}
	return nil
}

// Refresh exchanges a refresh token for a new pair once, provided the member
// is still active and the session the token belongs to is still open.
func (s *Service) Refresh(ctx context.Context, raw, ip, userAgent string) (TokenPair, *Principal, error) {
	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		return TokenPair{}, nil, err
	}
	m, err := s.members.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}
	if !m.Active() {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if claims.SessionID != "" {
		if _, err := s.sessions.Get(ctx, claims.SessionID); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return TokenPair{}, nil, ErrInvalidToken
			}
			return TokenPair{}, nil, err
		}
	}
	pair, rotated, err := s.tokens.Rotate(ctx, raw, ip, userAgent)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, NewPrincipal(m, rotated.SessionID, MethodBearer), nil
}

// Me reloads the principal's member so the response reflects current data.
func (s *Service) Me(ctx context.Context, p *Principal) (*Principal, *Member, error) {
	if p == nil {
		return nil, nil, ErrUnauthenticated
	}
	m, err := s.members.FindByID(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return NewPrincipal(m, p.SessionID, p.Method), m, nil
}

// ChangePassword replaces the principal's password after checking the old
// one, then ends every other session of the member and revokes its refresh
// tokens.
func (s *Service) ChangePassword(ctx context.Context, p *Principal, oldPassword, newPassword string) error {
	if p == nil {
		return ErrUnauthenticated
	}
	m, err := s.members.FindByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if !CheckPassword(m.PasswordHash, oldPassword) {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)
	}
	if oldPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the current one", ErrInvalidInput)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.members.Update(ctx, m.ID, MemberUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	if err := s.tokens.RevokeMember(ctx, m.ID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return s.sessions.InvalidateMember(ctx, m.ID, p.SessionID)
}

// SetupRequest describes the first administrator.
type SetupRequest struct {
	Email    string
	Password string
	Name     string
}

// SetupStatus reports whether the system already has an administrator.
func (s *Service) SetupStatus(ctx context.Context) (bool, error) {
	return s.members.AdminExists(ctx)
}

// Setup creates the first administrator together with the administrative
// custom role. It fails with ErrConflict once any administrator exists, also
// when two calls race.
func (s *Service) Setup(ctx context.Context, req SetupRequest) (*Member, error) {
	email := normalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	role := &CustomRole{
		ID:          ids.New(),
		Name:        RoleAdmin,
		Description: "Full access to every module",
		Permissions: AdminPermissionDocument(),
		LoginMethod: LoginMethodAny,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m := &Member{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         RoleAdmin,
		Status:       StatusActive,
		AllowedIPs:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.members.CreateFirstAdmin(ctx, m, role); err != nil {
		return nil, err
	}
	return m, nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email %q is malformed", ErrInvalidInput, email)
	}
	return nil
}
