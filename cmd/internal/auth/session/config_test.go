package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreConfigValidate_DefaultsPathPerKind(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cases := []struct {
		kind StoreKind
		want string
	}{
		{kind: "", want: "tokens.yaml"},
		{kind: " FILE ", want: "tokens.yaml"},
		{kind: StoreSQLite, want: "tokens.db"},
	}
	for _, tc := range cases {
		cfg := StoreConfig{Kind: tc.kind}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(%q): %v", tc.kind, err)
		}
		if filepath.Base(cfg.Path) != tc.want || !strings.Contains(cfg.Path, "daycheck") {
			t.Fatalf("Validate(%q) path=%q want=.../daycheck/%s", tc.kind, cfg.Path, tc.want)
		}
	}
}

func TestStoreConfigValidate_KeepsExplicitPath(t *testing.T) {
	t.Parallel()

	cfg := StoreConfig{Kind: StoreFile, Path: "  /tmp/x/tokens.yaml "}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Path != "/tmp/x/tokens.yaml" {
		t.Fatalf("path=%q", cfg.Path)
	}
}

func TestStoreConfigValidate_UnknownKind(t *testing.T) {
	t.Parallel()

	cfg := StoreConfig{Kind: "keychain"}
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestOpenStore_Kinds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		cfg  StoreConfig
		want string
	}{
		{cfg: StoreConfig{Kind: StoreMemory}, want: "*session.MemoryStore"},
		{cfg: StoreConfig{Kind: StoreFile, Path: filepath.Join(dir, "a", "tokens.yaml")}, want: "*session.FileStore"},
		{cfg: StoreConfig{Kind: StoreSQLite, Path: filepath.Join(dir, "b", "tokens.db")}, want: "*session.SQLiteStore"},
	}
	for _, tc := range cases {
		s, err := OpenStore(context.Background(), tc.cfg)
		if err != nil {
			t.Fatalf("OpenStore(%s): %v", tc.cfg.Kind, err)
		}
		if got := fmt.Sprintf("%T", s); got != tc.want {
			t.Fatalf("OpenStore(%s)=%s want=%s", tc.cfg.Kind, got, tc.want)
		}
		_ = s.Close()
	}
}

func TestMessagesFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Messages
	}{
		{in: "", want: EnglishMessages()},
		{in: "en-US", want: EnglishMessages()},
		{in: "ko", want: KoreanMessages()},
		{in: " KO-kr ", want: KoreanMessages()},
		{in: "ko_KR", want: KoreanMessages()},
		{in: "kok", want: EnglishMessages()},
	}
	for _, tc := range cases {
		if got := MessagesFor(tc.in); got != tc.want {
			t.Fatalf("MessagesFor(%q) picked the wrong catalog", tc.in)
		}
	}
}
