package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"adminhub.org/internal/auth"
)

const authHeader = "Authorization"

// authenticate resolves the request principal from the session cookie, the
// session header or a bearer token, in that order.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := a.credentials(r)
		principal, err := a.svc.Authenticator.Authenticate(r.Context(), creds)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				unauthorized(w, r, "authentication required")
				return
			}
			handleServiceError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) credentials(r *http.Request) auth.Credentials {
	var creds auth.Credentials
	if c, err := r.Cookie(a.opts.CookieName); err == nil {
		creds.SessionCookie = c.Value
	}
	creds.SessionHeader = strings.TrimSpace(r.Header.Get(a.opts.SessionHeader))
	creds.BearerToken = extractBearerToken(r.Header.Get(authHeader))
	return creds
}

// RequireRoles admits principals whose role is in roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return gate(func(p *auth.Principal) error { return auth.CheckRoles(p, roles...) })
}

// RequirePermissions admits principals holding every "module:action" listed.
func RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return gate(func(p *auth.Principal) error { return auth.CheckPermissions(p, perms...) })
}

func gate(check func(*auth.Principal) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			if err := check(p); err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					unauthorized(w, r, "authentication required")
					return
				}
				writeError(w, r, http.StatusForbidden, publicMessage(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken returns the token from an Authorization header; the
// scheme is matched case-insensitively.
func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
