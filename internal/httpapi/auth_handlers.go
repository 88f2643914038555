package httpapi

import (
	"net/http"
	"time"

	"adminhub.org/internal/audit"
	"adminhub.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID        string          `json:"session_id"`
	SessionExpiresAt time.Time       `json:"session_expires_at"`
	Tokens           auth.TokenPair  `json:"tokens"`
	Principal        *auth.Principal `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type setupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type meResponse struct {
	*auth.Principal
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Method      string     `json:"auth_method"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ip, ua := audit.Client(r.Context())
	res, err := a.svc.Auth.Login(r.Context(), auth.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IP:        ip,
		UserAgent: ua,
	})
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"email":  req.Email,
			"reason": publicMessage(err),
		})
		handleServiceError(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), res.Principal)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"member_id": res.Principal.ID,
	})
	a.setSessionCookie(w, res.Session.ID, a.opts.SessionTTL)
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID:        res.Session.ID,
		SessionExpiresAt: res.Session.ExpiresAt,
		Tokens:           res.Tokens,
		Principal:        res.Principal,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	if err := a.svc.Auth.Logout(r.Context(), p); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"method": p.Method,
	})
	a.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ip, ua := audit.Client(r.Context())
	pair, principal, err := a.svc.Auth.Refresh(r.Context(), req.RefreshToken, ip, ua)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), principal)
	_ = audit.LogEvent(ctx, "auth.refresh", nil)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	principal, member, err := a.svc.Auth.Me(r.Context(), p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Principal:   principal,
		Status:      member.Status,
		LastLoginAt: member.LastLoginAt,
		Method:      p.Method,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	if err := a.svc.Auth.ChangePassword(r.Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.change", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	exists, err := a.svc.Auth.SetupStatus(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"initialized":    exists,
		"setup_required": !exists,
	})
}

func (a *API) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.svc.Auth.Setup(r.Context(), auth.SetupRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "system.setup", map[string]any{
		"member_id": m.ID,
		"email":     m.Email,
	})
	writeJSON(w, http.StatusCreated, newMemberResponse(m))
}

// setSessionCookie writes the session cookie; a negative maxAge clears it.
func (a *API) setSessionCookie(w http.ResponseWriter, value string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     a.opts.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if a.opts.CookieSecure {
		c.SameSite = http.SameSiteNoneMode
	}
	switch {
	case maxAge < 0:
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	case maxAge > 0:
		c.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, c)
}
