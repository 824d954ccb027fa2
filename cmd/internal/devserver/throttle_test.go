package devserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestEvaluateWindowThrottle(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	failures := []time.Time{
		now.Add(-1 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-6 * time.Minute),
	}

	blocked, retry := evaluateWindowThrottle(now, failures, 2, 5*time.Minute)
	if !blocked || retry != 3*time.Minute {
		t.Fatalf("blocked=%v retry=%v want=true 3m", blocked, retry)
	}

	blocked, retry = evaluateWindowThrottle(now, failures, 3, 5*time.Minute)
	if blocked || retry != 0 {
		t.Fatalf("blocked=%v retry=%v want=false 0", blocked, retry)
	}
}

func TestEvaluateProgressiveLockout(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ago := func(ds ...time.Duration) []time.Time {
		out := make([]time.Time, len(ds))
		for i, d := range ds {
			out[i] = now.Add(-d)
		}
		return out
	}
	twenty := make([]time.Duration, 20)
	for i := range twenty {
		twenty[i] = time.Duration(i+1) * time.Minute
	}

	cases := []struct {
		name        string
		failures    []time.Time
		tiers       []lockoutTier
		wantBlocked bool
		wantRetry   time.Duration
	}{
		{
			name:        "short tier",
			failures:    ago(30*time.Second, time.Minute, 2*time.Minute, 3*time.Minute, 4*time.Minute),
			tiers:       defaultLockoutTiers,
			wantBlocked: true,
			wantRetry:   4*time.Minute + 30*time.Second,
		},
		{
			name:     "clears after duration",
			failures: ago(6*time.Minute, 7*time.Minute, 8*time.Minute, 9*time.Minute, 10*time.Minute),
			tiers:    []lockoutTier{{Threshold: 5, Duration: 5 * time.Minute}},
		},
		{
			name:        "severe tier wins",
			failures:    ago(twenty...),
			tiers:       defaultLockoutTiers,
			wantBlocked: true,
			wantRetry:   2*time.Hour - time.Minute,
		},
		{
			name:     "below every threshold",
			failures: ago(time.Second, 2*time.Second),
			tiers:    defaultLockoutTiers,
		},
		{
			name:  "no failures",
			tiers: defaultLockoutTiers,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			blocked, retry := evaluateProgressiveLockout(now, tc.failures, tc.tiers)
			if blocked != tc.wantBlocked || retry != tc.wantRetry {
				t.Fatalf("blocked=%v retry=%v want=%v %v", blocked, retry, tc.wantBlocked, tc.wantRetry)
			}
		})
	}
}

func TestThrottle_WindowAndReset(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	th := newThrottle(3, 15*time.Minute, nil)

	for i := 0; i < 3; i++ {
		if err := th.Check("ada", now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("attempt %d err=%v", i, err)
		}
		th.Fail("ada", now.Add(time.Duration(i)*time.Minute))
	}

	err := th.Check("ada", now.Add(3*time.Minute))
	var limited *RateLimitedError
	if !errors.As(err, &limited) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v want=%v", err, ErrRateLimited)
	}
	if limited.RetryAfter != 12*time.Minute {
		t.Fatalf("retry=%v want=12m", limited.RetryAfter)
	}
	if err := th.Check("grace", now.Add(3*time.Minute)); err != nil {
		t.Fatalf("other key err=%v", err)
	}
	if err := th.Check("ada", now.Add(16*time.Minute)); err != nil {
		t.Fatalf("after window err=%v", err)
	}

	for i := 0; i < 3; i++ {
		th.Fail("ada", now.Add(16*time.Minute))
	}
	if err := th.Check("ada", now.Add(17*time.Minute)); err == nil {
		t.Fatalf("expected block with three failures in window")
	}
	th.Reset("ada")
	if err := th.Check("ada", now.Add(17*time.Minute)); err != nil {
		t.Fatalf("after reset err=%v", err)
	}
}

func TestThrottle_DisabledIsNil(t *testing.T) {
	t.Parallel()
	th := newThrottle(0, time.Minute, defaultLockoutTiers)
	if th != nil {
		t.Fatalf("throttle=%v want nil", th)
	}
	th.Fail("ada", time.Now())
	th.Reset("ada")
	if err := th.Check("ada", time.Now()); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestLogin_ThrottledAfterFailures(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, func(c *Config) {
		c.RequireVerifiedEmail = false
		c.LoginMaxFailures = 3
	})
	const email = "ada@example.com"
	signup(t, ts, email)
	signup(t, ts, "grace@example.com")

	for i := 0; i < 3; i++ {
		var e errorResponse
		st := call(t, ts, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "wrong-password-1"}, &e)
		wantError(t, st, e, http.StatusUnauthorized, CodeBadCredentials)
	}

	body, _ := json.Marshal(map[string]string{"email": email, "password": testPassword})
	resp, err := ts.Client().Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST login: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantError(t, resp.StatusCode, e, http.StatusTooManyRequests, CodeRateLimited)
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err != nil || secs <= 0 {
		t.Fatalf("Retry-After=%q", resp.Header.Get("Retry-After"))
	}

	login(t, ts, "grace@example.com")
}

func TestVerifyCode_ThrottledAfterFailures(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, func(c *Config) { c.LoginMaxFailures = 2 })
	const email = "ada@example.com"
	signup(t, ts, email)

	for i := 0; i < 2; i++ {
		var e errorResponse
		st := call(t, ts, http.MethodPost, "/api/auth/verify-code", "", map[string]string{"email": email, "code": "not-a-code"}, &e)
		wantError(t, st, e, http.StatusBadRequest, CodeInvalidAuthCode)
	}
	var e errorResponse
	st := call(t, ts, http.MethodPost, "/api/auth/verify-code", "", map[string]string{"email": email, "code": "not-a-code"}, &e)
	wantError(t, st, e, http.StatusTooManyRequests, CodeRateLimited)
}
