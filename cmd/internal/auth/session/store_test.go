package session

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func storeFactories() map[string]func(t *testing.T) TokenStore {
	return map[string]func(t *testing.T) TokenStore{
		"memory": func(*testing.T) TokenStore { return NewMemoryStore() },
		"file": func(t *testing.T) TokenStore {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "tokens.yaml"))
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) TokenStore {
			s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "tokens.db"))
			if err != nil {
				t.Fatalf("OpenSQLiteStore: %v", err)
			}
			return s
		},
	}
}

func TestTokenStores_RoundTripAndClear(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			got, err := s.Load(ctx)
			if err != nil || !got.IsZero() {
				t.Fatalf("empty Load=%+v err=%v", got, err)
			}

			if err := s.Save(ctx, Tokens{AccessToken: " A1 ", RefreshToken: "R1"}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err = s.Load(ctx)
			if err != nil || got.AccessToken != "A1" || got.RefreshToken != "R1" {
				t.Fatalf("Load=%+v err=%v", got, err)
			}

			if err := s.Save(ctx, Tokens{AccessToken: "A2", RefreshToken: "R2"}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, _ = s.Load(ctx)
			if got.AccessToken != "A2" || got.RefreshToken != "R2" {
				t.Fatalf("overwrite Load=%+v", got)
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("second Clear: %v", err)
			}
			got, _ = s.Load(ctx)
			if !got.IsZero() {
				t.Fatalf("after Clear Load=%+v", got)
			}
		})
	}
}

func TestFileStore_PermissionsAndReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cfg", "tokens.yaml")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Save(context.Background(), Tokens{AccessToken: "A", RefreshToken: "R"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if perm := fi.Mode().Perm(); perm != 0o600 {
			t.Fatalf("perm=%o want=600", perm)
		}
	}

	again, _ := NewFileStore(path)
	got, err := again.Load(context.Background())
	if err != nil || got.AccessToken != "A" || got.RefreshToken != "R" {
		t.Fatalf("reopen Load=%+v err=%v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.yaml")
	if err := os.WriteFile(path, []byte("accessToken: [unterminated"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, _ := NewFileStore(path)
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSQLiteStore_EmptyValueDeletesKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	_ = s.Save(ctx, Tokens{AccessToken: "A", RefreshToken: "R"})
	if err := s.Save(ctx, Tokens{AccessToken: "B"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.Load(ctx)
	if got.AccessToken != "B" || got.RefreshToken != "" {
		t.Fatalf("Load=%+v", got)
	}
}
