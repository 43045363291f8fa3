package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:3000"

var configFiles = []string{"config.yaml", "/etc/storefront/config.yaml"}

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:3000" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	StaticDir   string `default:"" usage:"Serve a prebuilt front-end from this directory" flag:"static-dir"`
	Timezone    string `default:"Asia/Jerusalem" usage:"Store timezone for daily figures and date filters"`
	Auth        AuthConfig
	Orders      OrdersConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls admin tokens and login throttling.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" usage:"HMAC secret for admin tokens (STORE_AUTH_JWT_SECRET or JWT_SECRET)" flag:"jwt-secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" default:"24h" usage:"Admin token lifetime" flag:"token-ttl"`
	SetupKey  string        `usage:"Key unlocking the admin setup endpoint; empty disables it" flag:"setup-key"`
	// LoginRate is in attempts per second per email.
	LoginRate  float64 `default:"0.1" usage:"Sustained login attempts per second per email; 0 disables throttling"`
	LoginBurst int     `default:"5"   usage:"Login attempts allowed in a burst"`
}

// OrdersConfig controls the order workflow and listings.
type OrdersConfig struct {
	VerifyCatalog     bool `default:"true"  usage:"Check prices and delivery fees against the menu" flag:"verify-catalog"`
	StrictTransitions bool `default:"false" usage:"Reject status changes outside the lifecycle" flag:"strict-transitions"`
	DefaultLimit      int  `default:"50"    usage:"Default page size for admin listings"`
	MaxLimit          int  `default:"200"   usage:"Maximum page size for admin listings"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then configuration from environment variables, YAML
// config files and flags, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{Files: configFiles})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	ac.EnvPrefix = "STORE"
	ac.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL, PORT and JWT_SECRET to the application's
// STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set STORE_AUTH_JWT_SECRET or JWT_SECRET")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	if c.StaticDir != "" {
		info, err := os.Stat(c.StaticDir)
		if err != nil {
			return errors.Wrap(err, "static dir")
		}
		if !info.IsDir() {
			return errors.Errorf("static dir %q is not a directory", c.StaticDir)
		}
	}
	return nil
}

// Location returns the store timezone. The name is checked by LoadConfig.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
