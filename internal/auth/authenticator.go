package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"adminhub.org/internal/obs"
)

// Credentials are the raw credentials found on a request. Any of them may be
// empty.
type Credentials struct {
	SessionCookie string
	SessionHeader string
	BearerToken   string
}

// Method resolves one kind of credential. Resolve returns ErrNoCredential when
// its credential is absent.
type Method struct {
	Name    string
	Resolve func(ctx context.Context, creds Credentials) (*Principal, error)
}

// Authenticator tries its methods in order and returns the first principal
// resolved.
type Authenticator struct {
	methods []Method
	tracer  trace.Tracer
	log     logrus.FieldLogger
}

// NewAuthenticator builds an Authenticator over methods, evaluated in the
// given order.
func NewAuthenticator(methods ...Method) *Authenticator {
	return &Authenticator{
		methods: methods,
		tracer:  otel.Tracer("adminhub.org/internal/auth"),
		log:     obs.Logger().WithField("component", "authn"),
	}
}

// Authenticate resolves creds to a principal. When no method succeeds the
// result is ErrUnauthenticated; the reason a method failed is logged, never
// returned.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	for _, m := range a.methods {
		p, err := a.attempt(ctx, m, creds)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			a.log.WithError(err).WithField("method", m.Name).Debug("credential rejected")
		}
	}
	return nil, ErrUnauthenticated
}

func (a *Authenticator) attempt(ctx context.Context, m Method, creds Credentials) (*Principal, error) {
	ctx, span := a.tracer.Start(ctx, "auth.authenticate", trace.WithAttributes(attribute.String("auth.method", m.Name)))
	defer span.End()

	p, err := m.Resolve(ctx, creds)
	switch {
	case err == nil && p != nil:
		obs.ObserveAuthAttempt(m.Name, "success")
		span.SetAttributes(attribute.String("auth.member_id", p.ID))
		p.Method = m.Name
		return p, nil
	case err == nil:
		err = ErrUnauthenticated
	case errors.Is(err, ErrNoCredential):
		obs.ObserveAuthAttempt(m.Name, "absent")
		return nil, err
	}
	obs.ObserveAuthAttempt(m.Name, "failure")
	span.SetStatus(codes.Error, "credential rejected")
	return nil, err
}

// DefaultMethods returns the standard chain: session cookie, session header,
// then bearer token.
func DefaultMethods(sessions *SessionStore, tokens *TokenIssuer, members MemberStore) []Method {
	return []Method{
		SessionCookieMethod(sessions, members),
		SessionHeaderMethod(sessions, members),
		BearerMethod(tokens, members),
	}
}

// SessionCookieMethod resolves the session id carried in a cookie.
func SessionCookieMethod(sessions *SessionStore, members MemberStore) Method {
	return Method{
		Name: MethodSessionCookie,
		Resolve: func(ctx context.Context, creds Credentials) (*Principal, error) {
			return resolveSession(ctx, sessions, members, creds.SessionCookie, MethodSessionCookie)
		},
	}
}

// SessionHeaderMethod resolves the session id carried in a request header.
func SessionHeaderMethod(sessions *SessionStore, members MemberStore) Method {
	return Method{
		Name: MethodSessionHeader,
		Resolve: func(ctx context.Context, creds Credentials) (*Principal, error) {
			return resolveSession(ctx, sessions, members, creds.SessionHeader, MethodSessionHeader)
		},
	}
}

// BearerMethod resolves a signed access token. The member is reloaded so a
// deactivation or role change takes effect before the token expires.
func BearerMethod(tokens *TokenIssuer, members MemberStore) Method {
	return Method{
		Name: MethodBearer,
		Resolve: func(ctx context.Context, creds Credentials) (*Principal, error) {
			raw := strings.TrimSpace(creds.BearerToken)
			if raw == "" {
				return nil, ErrNoCredential
			}
			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				return nil, err
			}
			m, err := loadActiveMember(ctx, members, claims.Subject)
			if err != nil {
				return nil, err
			}
			return NewPrincipal(m, claims.SessionID, MethodBearer), nil
		},
	}
}

func resolveSession(ctx context.Context, sessions *SessionStore, members MemberStore, id, method string) (*Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNoCredential
	}
	data, err := sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := loadActiveMember(ctx, members, data.MemberID)
	if err != nil {
		return nil, err
	}
	return NewPrincipal(m, id, method), nil
}

func loadActiveMember(ctx context.Context, members MemberStore, id string) (*Member, error) {
	m, err := members.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member %s: %w", id, err)
	}
	if !m.Active() {
		return nil, fmt.Errorf("member %s is %s", id, strings.ToLower(m.Status))
	}
	return m, nil
}
