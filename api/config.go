package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/caarlos0/env/v11"
)

// DefaultExtendBy is used when an extend request names no duration
const DefaultExtendBy = 5 * time.Minute

// AuthConfig decides how callers are identified. Without a JWT secret the server
// runs in development mode and trusts the X-User-* headers.
type AuthConfig struct {
	JWTSecret string        `env:"DLOCK_AUTH_JWT_SECRET"`
	Issuer    string        `env:"DLOCK_AUTH_ISSUER"`
	Leeway    time.Duration `env:"DLOCK_AUTH_LEEWAY" envDefault:"30s"`
}

// LoadAuthConfigFromEnv reads the auth configuration from the environment
func LoadAuthConfigFromEnv() (AuthConfig, error) {
	var cfg AuthConfig
	if err := env.Parse(&cfg); err != nil {
		return AuthConfig{}, fmt.Errorf("parse auth env: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	return cfg, nil
}

// DevMode reports whether identities are taken from trusted headers
func (c AuthConfig) DevMode() bool {
	return c.JWTSecret == ""
}

// Config holds everything the REST handler needs besides the lock service
type Config struct {
	// Endpoint is the listen address of the api server
	Endpoint string
	// Leases decides the lease of acquire and transfer per collection
	Leases lockmgr.LeasePolicy
	// Auth configures the identity of callers
	Auth AuthConfig
	// LogLevel enables request logging at debug level
	LogLevel string
}

// String prints the configuration the way "dlock api" shows it on startup
func (c *Config) String() string {
	var p common.ConfigPrinter

	p.Section("REST API")
	p.Field("Endpoint", c.Endpoint)
	p.Field("Log Level", c.LogLevel)

	p.Section("Leases")
	p.Field("Default", c.Leases.Default)
	collections := make([]string, 0, len(c.Leases.Overrides))
	for collection := range c.Leases.Overrides {
		collections = append(collections, collection)
	}
	sort.Strings(collections)
	for _, collection := range collections {
		p.Field(collection, c.Leases.Overrides[collection])
	}

	p.Section("Auth")
	if c.Auth.DevMode() {
		p.Field("Mode", "development (X-User-* headers)")
		return p.String()
	}
	p.Field("Mode", "jwt (HS256)")
	p.Field("Issuer", c.Auth.Issuer)
	p.Field("Leeway", c.Auth.Leeway)
	return p.String()
}
