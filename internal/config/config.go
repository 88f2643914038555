// Package config loads the process configuration once at start-up.
// Values come from defaults, an optional YAML file and ADMINHUB_* environment
// variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the process reads.
const EnvPrefix = "ADMINHUB"

type HTTP struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
}

type Database struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type Redis struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// Auth holds secrets and lifetimes. Access and refresh tokens are signed with
// independent secrets.
type Auth struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"` // 0 disables the session janitor
	Issuer        string        `mapstructure:"issuer"`
	CookieName    string        `mapstructure:"cookie_name"`
	SessionHeader string        `mapstructure:"session_header"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	CookieDomain  string        `mapstructure:"cookie_domain"`
}

type RateLimit struct {
	Burst     int `mapstructure:"burst"`
	PerSecond int `mapstructure:"per_second"`
}

type Log struct {
	Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
	Format string `mapstructure:"format"` // text|json
}

// Config is the root configuration. It is treated as immutable after Load.
type Config struct {
	HTTP      HTTP      `mapstructure:"http"`
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	Auth      Auth      `mapstructure:"auth"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Log       Log       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.trust_forwarded_for", false)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", 500*time.Millisecond)
	v.SetDefault("redis.key_prefix", "adminhub:")

	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.purge_interval", time.Hour)
	v.SetDefault("auth.issuer", "adminhub")
	v.SetDefault("auth.cookie_name", "admin_session")
	v.SetDefault("auth.session_header", "X-Session-Id")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.per_second", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. An empty path falls back to ADMINHUB_CONFIG and
// then to ./config.yaml; a missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"auth.access_secret", "auth.refresh_secret", "auth.cookie_domain", "redis.password"} {
		v.SetDefault(key, "")
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the conditions the rest of the process relies on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr must not be empty")
	}
	if strings.TrimSpace(c.Auth.AccessSecret) == "" {
		return errors.New("auth.access_secret must be set")
	}
	if strings.TrimSpace(c.Auth.RefreshSecret) == "" {
		return errors.New("auth.refresh_secret must be set")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return errors.New("auth ttl values must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return errors.New("auth.refresh_ttl must not be shorter than auth.access_ttl")
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" || strings.TrimSpace(c.Auth.SessionHeader) == "" {
		return errors.New("auth.cookie_name and auth.session_header must be set")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		return errors.New("rate_limit values must be positive")
	}
	return nil
}
