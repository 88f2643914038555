package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"adminhub.org/internal/auth"
	"adminhub.org/internal/cache"
	"adminhub.org/internal/config"
	"adminhub.org/internal/httpapi"
	"adminhub.org/internal/obs"
	"adminhub.org/internal/store/memory"
	"adminhub.org/internal/store/pg"
)

// Set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "api",
		Short:         "Back-office session and permission API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s (%s)\n", version, commit)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		obs.Logger().WithError(err).Error("api exited")
		os.Exit(1)
	}
}

// backend is the durable tier chosen at start-up.
type backend struct {
	members  auth.MemberStore
	roles    auth.RoleStore
	sessions auth.SessionRepository
	tokens   auth.RefreshTokenStore
	ping     httpapi.Pinger
	close    func() error
}

func openBackend(ctx context.Context, cfg config.Database, log logrus.FieldLogger) (*backend, error) {
	if cfg.DSN == "" {
		log.Warn("database.dsn is empty; using the in-memory store")
		st := memory.New()
		return &backend{
			members:  st.Members(),
			roles:    st.Roles(),
			sessions: st.Sessions(),
			tokens:   st.RefreshTokens(),
			close:    func() error { return nil },
		}, nil
	}
	st, err := pg.Open(cfg.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx, st.DB()); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return &backend{
		members:  st.Members(),
		roles:    st.Roles(),
		sessions: st.Sessions(),
		tokens:   st.RefreshTokens(),
		ping:     st,
		close:    st.Close,
	}, nil
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func openCache(cfg config.Redis, log logrus.FieldLogger) (cache.Cache, httpapi.Pinger, func() error) {
	if cfg.Addr == "" {
		log.Warn("redis.addr is empty; using the in-process session cache")
		return cache.NewMemory(time.Now), nil, func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return cache.NewRedisCache(client, cache.WithPrefix(cfg.KeyPrefix), cache.WithTimeout(cfg.Timeout)),
		redisPinger{client: client}, client.Close
}

func run(ctx context.Context, cfg config.Config) error {
	obs.Init(cfg.Log.Level, cfg.Log.Format)
	obs.InitMetrics()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger().WithField("component", "api")

	db, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.close()

	sessionCache, cachePing, closeCache := openCache(cfg.Redis, log)
	defer closeCache()

	sessions, err := auth.NewSessionStore(sessionCache, db.sessions, auth.WithSessionTTL(cfg.Auth.SessionTTL))
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(db.tokens, cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(db.members, sessions, tokens)
	if err != nil {
		return err
	}
	admin, err := auth.NewAdminService(db.members, db.roles, sessions, tokens)
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Services{
		Auth:          svc,
		Admin:         admin,
		Authenticator: auth.NewAuthenticator(auth.DefaultMethods(sessions, tokens, db.members)...),
	}, httpapi.ReadyProbe{Checks: []httpapi.Pinger{db.ping, cachePing}}, httpapi.Options{
		Version:           version,
		CookieName:        cfg.Auth.CookieName,
		SessionHeader:     cfg.Auth.SessionHeader,
		CookieSecure:      cfg.Auth.CookieSecure,
		CookieDomain:      cfg.Auth.CookieDomain,
		SessionTTL:        cfg.Auth.SessionTTL,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		TrustForwardedFor: cfg.HTTP.TrustForwardedFor,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		RateBurst:         cfg.RateLimit.Burst,
		RatePerSecond:     cfg.RateLimit.PerSecond,
	})
	if err != nil {
		return err
	}

	if cfg.Auth.PurgeInterval > 0 {
		go sessions.RunJanitor(ctx, cfg.Auth.PurgeInterval)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).WithField("version", version).Info("starting adminhub-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}
