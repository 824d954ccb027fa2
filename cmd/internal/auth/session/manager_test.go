package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"daycheck/cmd/internal/restapi"
)

type fakeAPI struct {
	mu     sync.Mutex
	bearer string
	calls  []string

	// store is inspected when the profile is requested to check write ordering.
	store TokenStore

	login      func(email, password string) (restapi.TokenPair, error)
	refresh    func(refreshToken string) (restapi.TokenPair, error)
	user       func(bearer string) (restapi.User, error)
	signup     func(req restapi.SignupRequest) (restapi.Result, error)
	verifyCode func(email, code string) error
	verifyTok  func(token string) (restapi.Result, error)

	profileSawTokens Tokens
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) SetBearer(token string) {
	f.mu.Lock()
	f.bearer = token
	f.mu.Unlock()
}

func (f *fakeAPI) ClearBearer() { f.SetBearer("") }

func (f *fakeAPI) currentBearer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bearer
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (restapi.TokenPair, error) {
	f.record("login")
	return f.login(email, password)
}

func (f *fakeAPI) Refresh(_ context.Context, refreshToken string) (restapi.TokenPair, error) {
	f.record("refresh")
	return f.refresh(refreshToken)
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (restapi.User, error) {
	f.record("me")
	if f.store != nil {
		t, _ := f.store.Load(ctx)
		f.mu.Lock()
		f.profileSawTokens = t
		f.mu.Unlock()
	}
	return f.user(f.currentBearer())
}

func (f *fakeAPI) Signup(_ context.Context, req restapi.SignupRequest) (restapi.Result, error) {
	f.record("signup")
	return f.signup(req)
}

func (f *fakeAPI) SendVerification(_ context.Context, _ string) error {
	f.record("send_verification")
	return nil
}

func (f *fakeAPI) VerifyCode(_ context.Context, email, code string) error {
	f.record("verify_code")
	return f.verifyCode(email, code)
}

func (f *fakeAPI) VerifyToken(_ context.Context, token string) (restapi.Result, error) {
	f.record("verify_token")
	return f.verifyTok(token)
}

func okUser(bearer string) (restapi.User, error) {
	if bearer == "" {
		return restapi.User{}, &restapi.Error{Status: http.StatusUnauthorized}
	}
	return restapi.User{ID: "u1", Email: "a@b.c", Raw: []byte(`{"id":"u1"}`)}, nil
}

func okLogin(_, _ string) (restapi.TokenPair, error) {
	return restapi.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, nil
}

func newTestManager(t *testing.T, api *fakeAPI, store TokenStore) *Manager {
	t.Helper()
	if api.user == nil {
		api.user = okUser
	}
	if api.login == nil {
		api.login = okLogin
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(api, store, WithLogger(log))
}

func mustLoad(t *testing.T, s TokenStore) Tokens {
	t.Helper()
	tok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tok
}

func TestInitialize_NoStoredToken(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := newTestManager(t, api, NewMemoryStore())

	if !m.Loading() {
		t.Fatalf("expected Loading before Initialize")
	}
	m.Initialize(context.Background())

	snap := m.Snapshot()
	if snap.State != StateUnauthenticated || snap.Loading || snap.User != nil {
		t.Fatalf("snapshot=%+v", snap)
	}
	if n := api.count("me"); n != 0 {
		t.Fatalf("profile requests=%d want 0", n)
	}
}

func TestInitialize_ProfileFailureExpiresSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_ = store.Save(context.Background(), Tokens{AccessToken: "stale", RefreshToken: "R"})

	api := &fakeAPI{user: func(string) (restapi.User, error) {
		return restapi.User{}, &restapi.Error{Status: http.StatusUnauthorized}
	}}
	m := newTestManager(t, api, store)
	m.Initialize(context.Background())

	snap := m.Snapshot()
	if snap.State != StateSessionExpired || snap.Loading {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.Err != EnglishMessages().SessionExpired {
		t.Fatalf("Err=%q", snap.Err)
	}
	if got := mustLoad(t, store); !got.IsZero() {
		t.Fatalf("tokens not purged: %+v", got)
	}
	if api.currentBearer() != "" {
		t.Fatalf("bearer not cleared")
	}
	if n := api.count("refresh"); n != 0 {
		t.Fatalf("unexpected refresh attempts: %d", n)
	}
}

func TestInitialize_RestoresSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_ = store.Save(context.Background(), Tokens{AccessToken: "A0", RefreshToken: "R0"})

	api := &fakeAPI{}
	m := newTestManager(t, api, store)
	m.Initialize(context.Background())

	snap := m.Snapshot()
	if snap.State != StateAuthenticated || snap.User == nil || snap.User.ID != "u1" || snap.Loading {
		t.Fatalf("snapshot=%+v", snap)
	}
	if api.currentBearer() != "A0" {
		t.Fatalf("bearer=%q want A0", api.currentBearer())
	}
}

func TestLogin_SuccessOrdersPersistBearerProfile(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	api := &fakeAPI{store: store}
	m := newTestManager(t, api, store)
	m.Initialize(context.Background())

	if ok := m.Login(context.Background(), " a@b.c ", "pw"); !ok {
		t.Fatalf("Login failed: %q", m.Err())
	}

	api.mu.Lock()
	saw := api.profileSawTokens
	api.mu.Unlock()
	if saw.AccessToken != "A1" || saw.RefreshToken != "R1" {
		t.Fatalf("profile fetched before tokens were persisted: %+v", saw)
	}
	if api.currentBearer() != "A1" {
		t.Fatalf("bearer=%q", api.currentBearer())
	}
	snap := m.Snapshot()
	if snap.State != StateAuthenticated || snap.Loading || snap.Err != "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestLogin_FailureMessages(t *testing.T) {
	t.Parallel()

	msgs := EnglishMessages()
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "bad credentials", err: &restapi.Error{Status: 401, Message: "ignored"}, want: msgs.BadCredentials},
		{name: "email not verified", err: &restapi.Error{Status: 403, Code: restapi.CodeEmailNotVerified}, want: msgs.EmailNotVerified},
		{name: "other 403 uses server message", err: &restapi.Error{Status: 403, Code: "X", Message: "locked"}, want: "locked"},
		{name: "malformed", err: fmt.Errorf("%w: missing", restapi.ErrMalformedResponse), want: msgs.MalformedLogin},
		{name: "network", err: errors.New("dial tcp: refused"), want: msgs.LoginFailed},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := NewMemoryStore()
			_ = store.Save(context.Background(), Tokens{AccessToken: "keep-a", RefreshToken: "keep-r"})

			api := &fakeAPI{login: func(string, string) (restapi.TokenPair, error) {
				return restapi.TokenPair{}, tc.err
			}}
			m := newTestManager(t, api, store)

			if m.Login(context.Background(), "a@b.c", "wrong") {
				t.Fatalf("Login returned true")
			}
			snap := m.Snapshot()
			if snap.Err != tc.want || snap.Loading || snap.State != StateUnauthenticated {
				t.Fatalf("snapshot=%+v want Err=%q", snap, tc.want)
			}
			if got := mustLoad(t, store); got.AccessToken != "keep-a" || got.RefreshToken != "keep-r" {
				t.Fatalf("tokens changed: %+v", got)
			}
			if api.count("me") != 0 {
				t.Fatalf("profile requested after failed login")
			}
		})
	}
}

func TestLogin_FailureKeepsExistingSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	api := &fakeAPI{}
	m := newTestManager(t, api, store)
	if !m.Login(context.Background(), "a@b.c", "pw") {
		t.Fatalf("first login failed")
	}

	api.login = func(string, string) (restapi.TokenPair, error) {
		return restapi.TokenPair{}, &restapi.Error{Status: 401}
	}
	if m.Login(context.Background(), "a@b.c", "wrong") {
		t.Fatalf("second login should fail")
	}

	snap := m.Snapshot()
	if snap.State != StateAuthenticated || snap.User == nil {
		t.Fatalf("existing session lost: %+v", snap)
	}
	if api.currentBearer() != "A1" {
		t.Fatalf("bearer=%q want A1", api.currentBearer())
	}
}

func TestLogin_ProfileFailureExpires(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	api := &fakeAPI{user: func(string) (restapi.User, error) {
		return restapi.User{}, &restapi.Error{Status: 500}
	}}
	m := newTestManager(t, api, store)

	if m.Login(context.Background(), "a@b.c", "pw") {
		t.Fatalf("Login should fail when the profile cannot be fetched")
	}
	if m.State() != StateSessionExpired {
		t.Fatalf("state=%s", m.State())
	}
	if got := mustLoad(t, store); !got.IsZero() {
		t.Fatalf("tokens not purged: %+v", got)
	}
}

func TestLogout_FromEveryStateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	api := &fakeAPI{}
	m := newTestManager(t, api, store)

	m.Logout()
	if !m.Login(context.Background(), "a@b.c", "pw") {
		t.Fatalf("Login failed")
	}

	for i := 0; i < 2; i++ {
		m.Logout()
		snap := m.Snapshot()
		if snap.State != StateUnauthenticated || snap.User != nil || snap.Err != "" || snap.Loading {
			t.Fatalf("logout #%d snapshot=%+v", i, snap)
		}
		if got := mustLoad(t, store); !got.IsZero() {
			t.Fatalf("logout #%d tokens=%+v", i, got)
		}
		if api.currentBearer() != "" {
			t.Fatalf("logout #%d bearer still set", i)
		}
	}
}

func TestRefreshToken_KeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_ = store.Save(context.Background(), Tokens{AccessToken: "A0", RefreshToken: "R0"})

	api := &fakeAPI{refresh: func(rt string) (restapi.TokenPair, error) {
		if rt != "R0" {
			return restapi.TokenPair{}, &restapi.Error{Status: 401}
		}
		return restapi.TokenPair{AccessToken: "A1"}, nil
	}}
	m := newTestManager(t, api, store)

	if !m.RefreshToken(context.Background()) {
		t.Fatalf("RefreshToken failed")
	}
	got := mustLoad(t, store)
	if got.AccessToken != "A1" || got.RefreshToken != "R0" {
		t.Fatalf("tokens=%+v want A1/R0", got)
	}
	if api.currentBearer() != "A1" {
		t.Fatalf("bearer=%q", api.currentBearer())
	}
}

func TestRefreshToken_StoresRotatedRefreshToken(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_ = store.Save(context.Background(), Tokens{AccessToken: "A0", RefreshToken: "R0"})

	api := &fakeAPI{refresh: func(string) (restapi.TokenPair, error) {
		return restapi.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, nil
	}}
	m := newTestManager(t, api, store)

	if !m.RefreshToken(context.Background()) {
		t.Fatalf("RefreshToken failed")
	}
	if got := mustLoad(t, store); got.RefreshToken != "R1" {
		t.Fatalf("tokens=%+v want rotated R1", got)
	}
}

func TestRefreshToken_FailureLogsOut(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	api := &fakeAPI{}
	m := newTestManager(t, api, store)
	if !m.Login(context.Background(), "a@b.c", "pw") {
		t.Fatalf("Login failed")
	}

	api.refresh = func(string) (restapi.TokenPair, error) {
		return restapi.TokenPair{}, &restapi.Error{Status: 401}
	}
	if m.RefreshToken(context.Background()) {
		t.Fatalf("RefreshToken should fail")
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("state=%s", m.State())
	}
	if got := mustLoad(t, store); !got.IsZero() {
		t.Fatalf("tokens=%+v", got)
	}
}

func TestRefreshToken_NoStoredTokenLogsOutWithoutRequest(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := newTestManager(t, api, NewMemoryStore())

	if m.RefreshToken(context.Background()) {
		t.Fatalf("RefreshToken should fail")
	}
	if api.count("refresh") != 0 {
		t.Fatalf("unexpected refresh request")
	}
	if m.State() != StateUnauthenticated || m.Loading() {
		t.Fatalf("snapshot=%+v", m.Snapshot())
	}
}

func TestRefreshToken_ConcurrentCallersShareOneRequest(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_ = store.Save(context.Background(), Tokens{AccessToken: "A0", RefreshToken: "R0"})

	release := make(chan struct{})
	var inflight atomic.Int32
	api := &fakeAPI{refresh: func(string) (restapi.TokenPair, error) {
		inflight.Add(1)
		<-release
		return restapi.TokenPair{AccessToken: "A1"}, nil
	}}
	m := newTestManager(t, api, store)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.RefreshToken(context.Background())
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for inflight.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for ok := range results {
		if !ok {
			t.Fatalf("a caller saw a failed refresh")
		}
	}
	if n := api.count("refresh"); n != 1 {
		t.Fatalf("refresh requests=%d want 1", n)
	}
}

func TestLogout_DuringLoginDiscardsLogin(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{login: func(string, string) (restapi.TokenPair, error) {
		close(entered)
		<-release
		return restapi.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, nil
	}}
	m := newTestManager(t, api, store)

	done := make(chan bool)
	go func() { done <- m.Login(context.Background(), "a@b.c", "pw") }()

	<-entered
	m.Logout()
	close(release)

	if <-done {
		t.Fatalf("Login should report failure after Logout")
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("state=%s", m.State())
	}
	if got := mustLoad(t, store); !got.IsZero() {
		t.Fatalf("login resurrected tokens: %+v", got)
	}
	if api.currentBearer() != "" {
		t.Fatalf("bearer re-armed after logout")
	}
}

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := newTestManager(t, api, NewMemoryStore())

	var (
		mu     sync.Mutex
		states []State
	)
	unsubscribe := m.Subscribe(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	m.Login(context.Background(), "a@b.c", "pw")
	unsubscribe()
	m.Logout()

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[0] != StateAuthenticating || states[len(states)-1] != StateAuthenticated {
		t.Fatalf("states=%v", states)
	}
}
