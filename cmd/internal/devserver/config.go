package devserver

import (
	"fmt"
	"strings"
	"time"

	"go-simpler.org/env"
)

// Config configures the dev backend. Durations and sizes have working
// defaults; an empty PasetoKeyHex makes the server mint a throwaway key.
type Config struct {
	Addr   string `env:"DAYCHECK_DEV_ADDR" default:"127.0.0.1:8080"`
	DBPath string `env:"DAYCHECK_DEV_DB_PATH"`

	Issuer            string        `env:"DAYCHECK_DEV_ISSUER" default:"daycheck-dev"`
	AccessTokenTTL    time.Duration `env:"DAYCHECK_DEV_ACCESS_TTL" default:"15m"`
	RefreshTokenTTL   time.Duration `env:"DAYCHECK_DEV_REFRESH_TTL" default:"720h"`
	ClockSkew         time.Duration `env:"DAYCHECK_DEV_CLOCK_SKEW" default:"30s"`
	RefreshTokenBytes int           `env:"DAYCHECK_DEV_REFRESH_BYTES" default:"32"`
	PasetoKeyHex      string        `env:"DAYCHECK_DEV_PASETO_KEY_HEX"`
	TokenHMACKey      string        `env:"DAYCHECK_DEV_TOKEN_HMAC_KEY"`

	// RequireVerifiedEmail rejects logins (403 M002) until the address is verified.
	RequireVerifiedEmail bool          `env:"DAYCHECK_DEV_REQUIRE_VERIFIED" default:"true"`
	VerificationTTL      time.Duration `env:"DAYCHECK_DEV_VERIFICATION_TTL" default:"10m"`

	// LoginMaxFailures per LoginWindow before login and code checks answer 429.
	// Zero disables throttling.
	LoginMaxFailures int           `env:"DAYCHECK_DEV_LOGIN_MAX_FAILURES" default:"10"`
	LoginWindow      time.Duration `env:"DAYCHECK_DEV_LOGIN_WINDOW" default:"15m"`

	CORSOrigins  []string      `env:"DAYCHECK_DEV_CORS_ORIGINS" default:"http://localhost:3000 http://127.0.0.1:*"`
	MaxBodyBytes int64         `env:"DAYCHECK_DEV_MAX_BODY_BYTES" default:"65536"`
	SSEQueueSize int           `env:"DAYCHECK_DEV_SSE_QUEUE" default:"32"`
	KeepAlive    time.Duration `env:"DAYCHECK_DEV_SSE_KEEPALIVE" default:"25s"`
}

// DefaultConfig mirrors the env defaults without reading the environment.
func DefaultConfig() Config {
	return Config{
		Addr:                 "127.0.0.1:8080",
		Issuer:               "daycheck-dev",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		ClockSkew:            30 * time.Second,
		RefreshTokenBytes:    32,
		RequireVerifiedEmail: true,
		VerificationTTL:      10 * time.Minute,
		LoginMaxFailures:     10,
		LoginWindow:          15 * time.Minute,
		CORSOrigins:          []string{"http://localhost:3000", "http://127.0.0.1:*"},
		MaxBodyBytes:         64 << 10,
		SSEQueueSize:         32,
		KeepAlive:            25 * time.Second,
	}
}

// LoadConfig reads DAYCHECK_DEV_* variables. Password hashing has its own
// variables, read by password.FromEnv.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: empty listen address", ErrConfig)
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: empty issuer", ErrConfig)
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.VerificationTTL <= 0:
		return fmt.Errorf("%w: token lifetimes must be positive", ErrConfig)
	case c.AccessTokenTTL >= c.RefreshTokenTTL:
		return fmt.Errorf("%w: access ttl %s must be shorter than refresh ttl %s", ErrConfig, c.AccessTokenTTL, c.RefreshTokenTTL)
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return fmt.Errorf("%w: clock skew %s out of range [0..5m]", ErrConfig, c.ClockSkew)
	case c.RefreshTokenBytes < 16 || c.RefreshTokenBytes > 128:
		return fmt.Errorf("%w: refresh token bytes %d out of range [16..128]", ErrConfig, c.RefreshTokenBytes)
	case c.LoginMaxFailures < 0:
		return fmt.Errorf("%w: login max failures must not be negative", ErrConfig)
	case c.LoginMaxFailures > 0 && c.LoginWindow <= 0:
		return fmt.Errorf("%w: login window must be positive", ErrConfig)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max body bytes must be positive", ErrConfig)
	case c.SSEQueueSize <= 0:
		return fmt.Errorf("%w: sse queue size must be positive", ErrConfig)
	}
	return nil
}
