package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"daycheck/cmd/internal/devserver"
	"daycheck/cmd/security/password"
	v1 "daycheck/shared/contracts/push/v1"
)

const testPassword = "correct-horse-battery"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newBackend runs a dev backend on an httptest server for the test.
func newBackend(t *testing.T, mutate func(*devserver.Config)) (*devserver.Server, string) {
	t.Helper()

	pw := password.DefaultConfig()
	pw.MemoryKiB = 8 * 1024
	pw.Iterations = 1

	cfg := devserver.DefaultConfig()
	cfg.KeepAlive = 0
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := devserver.New(context.Background(), cfg,
		devserver.WithLogger(quietLogger()),
		devserver.WithPasswordConfig(pw),
	)
	if err != nil {
		t.Fatalf("devserver.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
	})
	return srv, ts.URL
}

func newTestApp(t *testing.T, apiURL string) *App {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIURL = apiURL
	cfg.TokenStore = "memory"
	cfg.PollSchedule = ""
	cfg.StreamReconnectDelay = 50 * time.Millisecond

	a, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// pendingCode reads the verification code the dev backend would have emailed.
func pendingCode(t *testing.T, apiURL, email string) string {
	t.Helper()
	resp, err := http.Get(apiURL + "/api/dev/verifications?email=" + url.QueryEscape(email))
	if err != nil {
		t.Fatalf("GET verifications: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET verifications status=%d", resp.StatusCode)
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode verification: %v", err)
	}
	return out.Code
}

// inject publishes a notification to the user with email through the dev endpoint.
func inject(t *testing.T, apiURL, email, msg string) v1.Notification {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "message": msg})
	resp, err := http.Post(apiURL+"/api/dev/notifications", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST notifications: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST notifications status=%d", resp.StatusCode)
	}
	var n v1.Notification
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	return n
}
