package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"adminhub.org/internal/auth"
	"adminhub.org/internal/obs"
)

// Pinger is anything whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing stores.
type ReadyProbe struct {
	Checks []Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	for _, c := range rp.Checks {
		if c == nil {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Services are the domain dependencies of the HTTP layer.
type Services struct {
	Auth          *auth.Service
	Admin         *auth.AdminService
	Authenticator *auth.Authenticator
}

// Options carries transport settings taken from config.
type Options struct {
	Version           string
	CookieName        string
	SessionHeader     string
	CookieSecure      bool
	CookieDomain      string
	SessionTTL        time.Duration
	AllowedOrigins    []string
	TrustForwardedFor bool
	MaxBodyBytes      int64
	RateBurst         int
	RatePerSecond     int
}

// API is the HTTP layer.
type API struct {
	router     chi.Router
	svc        Services
	opts       Options
	readyProbe ReadyProbe
	started    time.Time
}

func New(svc Services, rp ReadyProbe, opts Options) (*API, error) {
	if svc.Auth == nil || svc.Admin == nil || svc.Authenticator == nil {
		return nil, errors.New("httpapi: auth, admin and authenticator services are required")
	}
	if opts.CookieName == "" {
		opts.CookieName = "admin_session"
	}
	if opts.SessionHeader == "" {
		opts.SessionHeader = "X-Session-Id"
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	a := &API{
		svc:        svc,
		opts:       opts,
		readyProbe: rp,
		started:    time.Now().UTC(),
	}
	a.router = a.routes()
	return a, nil
}

// Handler returns the root handler with the full middleware chain.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		RequestID,
		Recoverer,
		ClientInfo(a.opts.TrustForwardedFor),
		LoggingJSON,
		SecurityHeaders,
		CORS(a.opts.AllowedOrigins, a.opts.SessionHeader),
		obs.Instrument,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	limit := func(next http.Handler) http.Handler {
		return RateLimit(next, a.opts.RateBurst, a.opts.RatePerSecond)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return MaxBodyBytes(next, a.opts.MaxBodyBytes)
		})
		r.Get("/info", a.Info)

		r.Get("/setup/status", a.handleSetupStatus)
		r.With(limit).Post("/setup", a.handleSetup)
		r.With(limit).Post("/auth/login", a.handleLogin)
		r.Post("/auth/refresh", a.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Post("/auth/logout", a.handleLogout)
			r.Get("/auth/me", a.handleMe)
			r.Put("/auth/password", a.handleChangePassword)

			r.Route("/roles", func(r chi.Router) {
				r.With(RequirePermissions("role:view")).Get("/", a.handleListRoles)
				r.With(RequirePermissions("role:add")).Post("/", a.handleCreateRole)
				r.With(RequirePermissions("role:view")).Get("/{id}", a.handleGetRole)
				r.With(RequirePermissions("role:edit")).Put("/{id}", a.handleUpdateRole)
				r.With(RequirePermissions("role:delete")).Delete("/{id}", a.handleDeleteRole)
			})

			r.Route("/team", func(r chi.Router) {
				r.With(RequirePermissions("team:view")).Get("/", a.handleListMembers)
				r.With(RequirePermissions("team:add")).Post("/", a.handleCreateMember)
				r.With(RequirePermissions("team:view")).Get("/{id}", a.handleGetMember)
				r.With(RequirePermissions("team:edit")).Patch("/{id}", a.handleUpdateMember)
				r.With(RequireRoles(auth.RoleAdmin, "hr")).Put("/{id}/status", a.handleSetMemberStatus)
				r.With(RequirePermissions("team:delete")).Delete("/{id}", a.handleDeleteMember)
			})
		})
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "adminhub-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       "adminhub-api",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"started_at": a.started.Format(time.RFC3339),
		"version":    a.opts.Version,
	})
}
