package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daycheck/cmd/security/password"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cheapPasswords keeps Argon2id fast enough for tests.
func cheapPasswords() password.Config {
	c := password.DefaultConfig()
	c.MemoryKiB = 8 * 1024
	c.Iterations = 1
	return c
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), "")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, id, email string) User {
	t.Helper()
	u := User{ID: id, Email: email, Name: id, PasswordHash: "x", CreatedAt: time.Unix(1_700_000_000, 0).UTC()}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

// newTestServer starts the full handler chain on an httptest server.
// Streams are ended before the listener closes so Close does not hang.
func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.KeepAlive = 0
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(context.Background(), cfg, WithLogger(quietLogger()), WithPasswordConfig(cheapPasswords()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.broker.Close()
		ts.Close()
		_ = srv.store.Close()
	})
	return srv, ts
}

// call sends a JSON request and decodes a JSON response into out when non-nil.
func call(t *testing.T, ts *httptest.Server, method, path, bearer string, in, out any) int {
	t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
