package password

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go-simpler.org/env"
)

// Config holds the Argon2id cost and the acceptance policy. The dev backend
// favors fast logins over attack resistance, so the defaults sit at the
// OWASP minimum rather than an interactive-login baseline.
type Config struct {
	MemoryKiB   uint32 `env:"DAYCHECK_DEV_ARGON2_MEMORY_KIB" default:"19456"`
	Iterations  uint32 `env:"DAYCHECK_DEV_ARGON2_ITERATIONS" default:"2"`
	Parallelism uint8  `env:"DAYCHECK_DEV_ARGON2_PARALLELISM" default:"1"`
	SaltLength  uint32 `env:"DAYCHECK_DEV_ARGON2_SALT_LEN" default:"16"`
	KeyLength   uint32 `env:"DAYCHECK_DEV_ARGON2_KEY_LEN" default:"32"`

	MinLength    int  `env:"DAYCHECK_DEV_PASSWORD_MIN_LEN" default:"8"`
	MaxLength    int  `env:"DAYCHECK_DEV_PASSWORD_MAX_LEN" default:"128"`
	RejectCommon bool `env:"DAYCHECK_DEV_PASSWORD_REJECT_COMMON" default:"true"`
}

// DefaultConfig mirrors the env defaults without reading the environment.
func DefaultConfig() Config {
	return Config{
		MemoryKiB:    19 * 1024,
		Iterations:   2,
		Parallelism:  1,
		SaltLength:   16,
		KeyLength:    32,
		MinLength:    8,
		MaxLength:    128,
		RejectCommon: true,
	}
}

// FromEnv loads Config from DAYCHECK_DEV_* variables and validates it.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates the cost parameters and policy bounds.
func (c Config) Check() error {
	switch {
	case c.MemoryKiB < 8*1024 || c.MemoryKiB > 1024*1024:
		return fmt.Errorf("%w: memory %d KiB out of range [8192..1048576]", ErrConfig, c.MemoryKiB)
	case c.Iterations < 1 || c.Iterations > 20:
		return fmt.Errorf("%w: iterations %d out of range [1..20]", ErrConfig, c.Iterations)
	case c.Parallelism < 1 || c.Parallelism > 64:
		return fmt.Errorf("%w: parallelism %d out of range [1..64]", ErrConfig, c.Parallelism)
	case c.SaltLength < 8 || c.SaltLength > 64:
		return fmt.Errorf("%w: salt length %d out of range [8..64]", ErrConfig, c.SaltLength)
	case c.KeyLength < 16 || c.KeyLength > 64:
		return fmt.Errorf("%w: key length %d out of range [16..64]", ErrConfig, c.KeyLength)
	case c.MinLength < 1 || c.MaxLength > 4096:
		return fmt.Errorf("%w: length bounds [%d..%d]", ErrConfig, c.MinLength, c.MaxLength)
	case c.MinLength > c.MaxLength:
		return fmt.Errorf("%w: min length %d > max length %d", ErrConfig, c.MinLength, c.MaxLength)
	}
	return nil
}

var common = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"iloveyou":    {},
	"11111111":    {},
}

// Validate applies the length policy (counted in runes) and, when enabled,
// rejects a short list of common passwords and single-character repeats.
func (c Config) Validate(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < c.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.MaxLength {
		return ErrPasswordTooLong
	}
	if !c.RejectCommon {
		return nil
	}
	s := strings.ToLower(strings.TrimSpace(pw))
	if _, ok := common[s]; ok {
		return ErrWeakPassword
	}
	if r, _ := utf8.DecodeRuneInString(s); strings.Trim(s, string(r)) == "" {
		return ErrWeakPassword
	}
	return nil
}
