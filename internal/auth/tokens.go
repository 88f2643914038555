package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"adminhub.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "adminhub"
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims of both access and refresh tokens.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// IssueRequest describes whom a token pair is minted for.
type IssueRequest struct {
	MemberID  string
	Email     string
	Role      string
	SessionID string
	IP        string
	UserAgent string
}

// TokenIssuer mints and verifies signed access/refresh tokens and keeps the
// refresh token records used for single-use rotation.
type TokenIssuer struct {
	store         RefreshTokenStore
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// TokenOption configures TokenIssuer behavior.
type TokenOption func(*TokenIssuer) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) error {
		if ttl > 0 {
			t.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) error {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
		return nil
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *TokenIssuer) error {
		if fn != nil {
			t.now = fn
		}
		return nil
	}
}

// NewTokenIssuer constructs a TokenIssuer. Access and refresh tokens are
// signed with distinct secrets.
func NewTokenIssuer(store RefreshTokenStore, accessSecret, refreshSecret string, opts ...TokenOption) (*TokenIssuer, error) {
	if store == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	t := &TokenIssuer{
		store:         store,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		issuer:        defaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Issue mints an access/refresh pair and persists the refresh token record.
func (t *TokenIssuer) Issue(ctx context.Context, req IssueRequest) (TokenPair, error) {
	pair, rec, err := t.mint(req, t.now())
	if err != nil {
		return TokenPair{}, err
	}
	if err := t.store.Create(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, nil
}

// VerifyAccess validates an access token.
func (t *TokenIssuer) VerifyAccess(raw string) (*Claims, error) {
	return t.verify(raw, t.accessSecret, TokenTypeAccess)
}

// VerifyRefresh validates a refresh token's signature and claims. It does not
// consult the refresh token records; Rotate does.
func (t *TokenIssuer) VerifyRefresh(raw string) (*Claims, error) {
	return t.verify(raw, t.refreshSecret, TokenTypeRefresh)
}

// Rotate exchanges a refresh token for a new pair. Each refresh token can be
// exchanged once: the old record is revoked and linked to its successor in the
// same store operation, so of two concurrent rotations exactly one succeeds.
func (t *TokenIssuer) Rotate(ctx context.Context, raw, ip, userAgent string) (TokenPair, *Claims, error) {
	claims, err := t.VerifyRefresh(raw)
	if err != nil {
		return TokenPair{}, nil, err
	}
	rec, err := t.store.Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, fmt.Errorf("load refresh token: %w", err)
	}
	now := t.now()
	if rec.Revoked || !now.Before(rec.ExpiresAt) || !hashMatches(rec.TokenHash, raw) {
		return TokenPair{}, nil, ErrInvalidToken
	}

	pair, next, err := t.mint(IssueRequest{
		MemberID:  rec.MemberID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: rec.SessionID,
		IP:        ip,
		UserAgent: userAgent,
	}, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := t.store.Rotate(ctx, rec.ID, next, now); err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return pair, claims, nil
}

// RevokeSession revokes every refresh token bound to a session.
func (t *TokenIssuer) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return t.store.RevokeSession(ctx, sessionID, t.now())
}

// RevokeMember revokes every refresh token of a member.
func (t *TokenIssuer) RevokeMember(ctx context.Context, memberID string) error {
	return t.store.RevokeMember(ctx, memberID, t.now())
}

func (t *TokenIssuer) mint(req IssueRequest, now time.Time) (TokenPair, *RefreshToken, error) {
	if strings.TrimSpace(req.MemberID) == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	accessExp := now.Add(t.accessTTL)
	access, err := t.sign(req, TokenTypeAccess, ids.New(), now, accessExp, t.accessSecret)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refreshID := ids.New()
	refreshExp := now.Add(t.refreshTTL)
	refresh, err := t.sign(req, TokenTypeRefresh, refreshID, now, refreshExp, t.refreshSecret)
	if err != nil {
		return TokenPair{}, nil, err
	}
	rec := &RefreshToken{
		ID:        refreshID,
		MemberID:  req.MemberID,
		SessionID: req.SessionID,
		TokenHash: hashToken(refresh),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, rec, nil
}

func (t *TokenIssuer) sign(req IssueRequest, typ, jti string, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		Email:     req.Email,
		Role:      req.Role,
		SessionID: req.SessionID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.MemberID,
			Issuer:    t.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (t *TokenIssuer) verify(raw string, secret []byte, typ string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != typ || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hashMatches(expected, raw string) bool {
	got := hashToken(raw)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
