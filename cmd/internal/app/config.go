package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"daycheck/cmd/internal/auth/session"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go-simpler.org/env"
)

// ErrConfig marks an invalid runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Config contains the client runtime configuration loaded from environment variables.
// The dev backend reads its own DAYCHECK_DEV_* variables (see devserver.LoadConfig).
type Config struct {
	APIURL    string `env:"DAYCHECK_API_URL" default:"http://127.0.0.1:8080"`
	LogLevel  string `env:"DAYCHECK_LOG_LEVEL" default:"warn"`
	LogFormat string `env:"DAYCHECK_LOG_FORMAT" default:"json"`
	Locale    string `env:"DAYCHECK_LOCALE" default:"en"`

	TokenStore string `env:"DAYCHECK_TOKEN_STORE" default:"file"`
	TokenPath  string `env:"DAYCHECK_TOKEN_PATH"`

	HTTPTimeout          time.Duration `env:"DAYCHECK_HTTP_TIMEOUT" default:"15s"`
	StreamReconnectDelay time.Duration `env:"DAYCHECK_STREAM_RECONNECT_DELAY" default:"3s"`
	StreamMaxReconnects  int           `env:"DAYCHECK_STREAM_MAX_RECONNECTS" default:"5"`

	// PollSchedule is a cron spec for the unread poll of `watch`. Empty disables polling.
	PollSchedule string `env:"DAYCHECK_POLL_SCHEDULE" default:"@every 1m"`
}

// DefaultConfig mirrors the env defaults without reading the environment.
func DefaultConfig() Config {
	return Config{
		APIURL:               "http://127.0.0.1:8080",
		LogLevel:             "warn",
		LogFormat:            "json",
		Locale:               "en",
		TokenStore:           string(session.StoreFile),
		HTTPTimeout:          15 * time.Second,
		StreamReconnectDelay: 3 * time.Second,
		StreamMaxReconnects:  5,
		PollSchedule:         "@every 1m",
	}
}

// LoadConfig reads an optional dotenv file and then the DAYCHECK_* variables.
// Variables already set in the environment win over the file.
func LoadConfig(envFile string) (Config, error) {
	cfg, err := readConfig(envFile)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func readConfig(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, envFile, err)
		}
		slog.Debug("config.dotenv.missing", "path", envFile)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIURL))
	switch {
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		return fmt.Errorf("%w: api url %q must be an absolute http(s) url", ErrConfig, c.APIURL)
	case !knownFormat(c.LogFormat):
		return fmt.Errorf("%w: log format %q (want json, text or pretty)", ErrConfig, c.LogFormat)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("%w: http timeout must be positive", ErrConfig)
	case c.StreamReconnectDelay <= 0:
		return fmt.Errorf("%w: stream reconnect delay must be positive", ErrConfig)
	case c.StreamMaxReconnects < 0:
		return fmt.Errorf("%w: stream max reconnects must be >= 0", ErrConfig)
	}

	sc := c.StoreConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if _, err := c.pollSchedule(); err != nil {
		return err
	}
	return nil
}

// StoreConfig is the token store selected by TokenStore and TokenPath.
func (c Config) StoreConfig() session.StoreConfig {
	return session.StoreConfig{Kind: session.StoreKind(c.TokenStore), Path: c.TokenPath}
}

// pollSchedule parses PollSchedule. A nil schedule means polling is off.
func (c Config) pollSchedule() (cron.Schedule, error) {
	spec := strings.TrimSpace(c.PollSchedule)
	if spec == "" {
		return nil, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: poll schedule %q: %v", ErrConfig, spec, err)
	}
	return sched, nil
}

func knownFormat(f string) bool {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "", "json", "text", "pretty":
		return true
	}
	return false
}
