package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StoreKind selects a TokenStore implementation.
type StoreKind string

const (
	// StoreFile is a YAML file under the user config directory.
	StoreFile StoreKind = "file"
	// StoreSQLite is a SQLite database under the user config directory.
	StoreSQLite StoreKind = "sqlite"
	// StoreMemory keeps tokens for the lifetime of the process only.
	StoreMemory StoreKind = "memory"
)

// StoreConfig configures token persistence.
type StoreConfig struct {
	Kind StoreKind

	// Path is the backing file. Empty means the default location for Kind.
	Path string
}

// DefaultStoreConfig returns the YAML file store at its default location.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Kind: StoreFile}
}

// Validate normalizes the kind and fills the default path.
func (c *StoreConfig) Validate() error {
	c.Kind = StoreKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	if c.Kind == "" {
		c.Kind = StoreFile
	}
	switch c.Kind {
	case StoreMemory:
		return nil
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("%w: unknown token store %q", ErrConfig, c.Kind)
	}

	c.Path = strings.TrimSpace(c.Path)
	if c.Path != "" {
		return nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("%w: no user config dir: %v", ErrConfig, err)
	}
	name := "tokens.yaml"
	if c.Kind == StoreSQLite {
		name = "tokens.db"
	}
	c.Path = filepath.Join(dir, "daycheck", name)
	return nil
}

// OpenStore builds the TokenStore described by cfg.
func OpenStore(ctx context.Context, cfg StoreConfig) (TokenStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("token db dir: %w", err)
		}
		return OpenSQLiteStore(ctx, cfg.Path)
	default:
		return NewFileStore(cfg.Path)
	}
}
