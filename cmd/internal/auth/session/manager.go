package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"daycheck/cmd/internal/metrics"
	"daycheck/cmd/internal/restapi"

	"golang.org/x/sync/singleflight"
)

// AuthAPI is the part of the REST client the Manager drives.
type AuthAPI interface {
	SetBearer(token string)
	ClearBearer()

	Login(ctx context.Context, email, password string) (restapi.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (restapi.TokenPair, error)
	CurrentUser(ctx context.Context) (restapi.User, error)

	Signup(ctx context.Context, req restapi.SignupRequest) (restapi.Result, error)
	SendVerification(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) error
	VerifyToken(ctx context.Context, token string) (restapi.Result, error)
}

// Manager is the single owner of the session of one process.
//
// Every exported method is safe for concurrent use. Initialize, Login and
// RefreshToken run one at a time; Logout never waits for them and instead
// invalidates whatever they were about to commit.
type Manager struct {
	api     AuthAPI
	store   TokenStore
	msgs    Messages
	log     *slog.Logger
	metrics *metrics.Metrics

	flight  sync.Mutex
	refresh singleflight.Group

	mu     sync.Mutex
	snap   Snapshot
	epoch  uint64
	subs   map[uint64]func(Snapshot)
	nextID uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithMessages sets the user-facing message catalog.
func WithMessages(msgs Messages) Option {
	return func(m *Manager) { m.msgs = msgs }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics records login/refresh outcomes and state changes.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// NewManager builds a Manager. The session reports Loading until Initialize runs.
func NewManager(api AuthAPI, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		msgs:  EnglishMessages(),
		log:   slog.Default(),
		snap:  Snapshot{State: StateUnauthenticated, Loading: true},
		subs:  make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// State returns the current state.
func (m *Manager) State() State { return m.Snapshot().State }

// CurrentUser returns the cached profile, or nil.
func (m *Manager) CurrentUser() *restapi.User { return m.Snapshot().User }

// Err returns the last user-facing error message ("" when none).
func (m *Manager) Err() string { return m.Snapshot().Err }

// Loading reports whether an operation is in flight.
func (m *Manager) Loading() bool { return m.Snapshot().Loading }

// Messages returns the active message catalog.
func (m *Manager) Messages() Messages { return m.msgs }

// Subscribe registers fn to receive a Snapshot after every change.
// Callbacks run outside the Manager lock and may call back into it.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Initialize restores a persisted session. Without a stored access token it
// settles in StateUnauthenticated without any request. A stored token that the
// backend rejects is purged and the session moves to StateSessionExpired.
func (m *Manager) Initialize(ctx context.Context) {
	m.flight.Lock()
	defer m.flight.Unlock()

	epoch := m.begin(func(s *Snapshot) {
		s.Loading = true
		s.Err = ""
	})

	tokens, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("session.init.store.fail", "err", err)
	}
	if tokens.AccessToken == "" {
		m.commit(epoch, func(s *Snapshot) {
			s.State = StateUnauthenticated
			s.User = nil
			s.Loading = false
		})
		m.log.Info("session.init.anonymous")
		return
	}

	if !m.commit(epoch, func(s *Snapshot) { s.State = StateAuthenticating }) {
		return
	}
	if !m.armBearer(epoch, tokens.AccessToken) {
		return
	}

	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		m.log.Info("session.init.profile.fail", "status", restapi.StatusOf(err), "err", err)
		m.expire(ctx, epoch)
		return
	}

	if m.commit(epoch, func(s *Snapshot) {
		s.State = StateAuthenticated
		s.User = &user
		s.Loading = false
	}) {
		m.log.Info("session.init.ok", "user_id", user.ID)
	}
}

// Login authenticates with email and password. On success the token pair is
// persisted, the bearer armed and the profile fetched, in that order.
// On failure nothing stored is touched and Err carries the reason.
func (m *Manager) Login(ctx context.Context, email, password string) bool {
	m.flight.Lock()
	defer m.flight.Unlock()

	var prev Snapshot
	epoch := m.begin(func(s *Snapshot) {
		prev = *s
		s.Err = ""
		s.Loading = true
		s.State = StateAuthenticating
	})

	pair, err := m.api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		m.log.Info("session.login.fail", "status", restapi.StatusOf(err), "code", restapi.CodeOf(err), "err", err)
		m.failLogin(epoch, prev, m.loginMessage(err))
		return false
	}

	if err := m.persist(ctx, epoch, Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		if errors.Is(err, ErrSuperseded) {
			m.metrics.ObserveLogin(false)
			return false
		}
		m.log.Error("session.login.store.fail", "err", err)
		m.failLogin(epoch, prev, m.msgs.LoginFailed)
		return false
	}

	user, err := m.api.CurrentUser(ctx)
	if err != nil {
		m.log.Info("session.login.profile.fail", "status", restapi.StatusOf(err), "err", err)
		m.metrics.ObserveLogin(false)
		m.expire(ctx, epoch)
		return false
	}

	ok := m.commit(epoch, func(s *Snapshot) {
		s.State = StateAuthenticated
		s.User = &user
		s.Loading = false
		s.Err = ""
	})
	m.metrics.ObserveLogin(ok)
	if ok {
		m.log.Info("session.login.ok", "user_id", user.ID)
	}
	return ok
}

// failLogin settles a failed login. A session that was authenticated before
// the attempt stays authenticated, since none of its state was touched.
func (m *Manager) failLogin(epoch uint64, prev Snapshot, msg string) {
	m.metrics.ObserveLogin(false)
	m.commit(epoch, func(s *Snapshot) {
		s.Err = msg
		s.Loading = false
		if prev.State == StateAuthenticated && prev.User != nil {
			s.State = StateAuthenticated
			s.User = prev.User
			return
		}
		s.State = StateUnauthenticated
	})
}

func (m *Manager) loginMessage(err error) string {
	switch {
	case errors.Is(err, restapi.ErrMalformedResponse):
		return m.msgs.MalformedLogin
	case restapi.StatusOf(err) == http.StatusUnauthorized:
		return m.msgs.BadCredentials
	case restapi.StatusOf(err) == http.StatusForbidden && restapi.CodeOf(err) == restapi.CodeEmailNotVerified:
		return m.msgs.EmailNotVerified
	case restapi.MessageOf(err) != "":
		return restapi.MessageOf(err)
	default:
		return m.msgs.LoginFailed
	}
}

// Logout purges both tokens, clears the bearer and resets the session.
// It is synchronous, never fails and may be called from any state.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.epoch++
	m.purgeLocked(context.Background())
	snap, subs := m.applyLocked(func(s *Snapshot) { *s = Snapshot{State: StateUnauthenticated} })
	m.mu.Unlock()

	m.log.Info("session.logout")
	m.publish(snap, subs)
}

// RefreshToken exchanges the stored refresh token for a new access token.
// A missing refresh token or any failure logs the session out.
// Concurrent callers share a single request.
func (m *Manager) RefreshToken(ctx context.Context) bool {
	v, _, _ := m.refresh.Do("refresh", func() (any, error) {
		return m.refreshOnce(ctx), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (m *Manager) refreshOnce(ctx context.Context) bool {
	m.flight.Lock()
	defer m.flight.Unlock()

	epoch := m.currentEpoch()

	stored, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("session.refresh.store.fail", "err", err)
	}
	if stored.RefreshToken == "" {
		m.log.Info("session.refresh.fail", "err", ErrNoRefreshToken)
		m.metrics.ObserveRefresh(false)
		m.logoutIf(epoch)
		return false
	}

	pair, err := m.api.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		m.log.Info("session.refresh.fail", "status", restapi.StatusOf(err), "err", err)
		m.metrics.ObserveRefresh(false)
		m.logoutIf(epoch)
		return false
	}

	next := Tokens{AccessToken: pair.AccessToken, RefreshToken: stored.RefreshToken}
	if pair.RefreshToken != "" {
		next.RefreshToken = pair.RefreshToken
	}
	if err := m.persist(ctx, epoch, next); err != nil {
		m.metrics.ObserveRefresh(false)
		if !errors.Is(err, ErrSuperseded) {
			m.log.Error("session.refresh.store.fail", "err", err)
			m.logoutIf(epoch)
		}
		return false
	}

	m.metrics.ObserveRefresh(true)
	m.log.Info("session.refresh.ok", "rotated", pair.RefreshToken != "")
	return true
}

// ---- state plumbing ----

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) applyLocked(fn func(*Snapshot)) (Snapshot, []func(Snapshot)) {
	fn(&m.snap)
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	return m.snap, subs
}

func (m *Manager) publish(snap Snapshot, subs []func(Snapshot)) {
	m.metrics.SetSessionState(snap.State.String(), stateLabels())
	for _, fn := range subs {
		fn(snap)
	}
}

// update applies fn unconditionally.
func (m *Manager) update(fn func(*Snapshot)) {
	m.mu.Lock()
	snap, subs := m.applyLocked(fn)
	m.mu.Unlock()
	m.publish(snap, subs)
}

// begin applies fn and returns the epoch later commits must match.
func (m *Manager) begin(fn func(*Snapshot)) uint64 {
	m.mu.Lock()
	epoch := m.epoch
	snap, subs := m.applyLocked(fn)
	m.mu.Unlock()
	m.publish(snap, subs)
	return epoch
}

// commit applies fn only if no Logout happened since epoch was taken.
func (m *Manager) commit(epoch uint64, fn func(*Snapshot)) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	snap, subs := m.applyLocked(fn)
	m.mu.Unlock()
	m.publish(snap, subs)
	return true
}

// persist stores the pair and then arms the bearer.
func (m *Manager) persist(ctx context.Context, epoch uint64, t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return ErrSuperseded
	}
	if err := m.store.Save(context.WithoutCancel(ctx), t); err != nil {
		return err
	}
	m.api.SetBearer(t.AccessToken)
	return nil
}

func (m *Manager) armBearer(epoch uint64, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.api.SetBearer(token)
	return true
}

// expire purges a rejected session and moves to StateSessionExpired.
func (m *Manager) expire(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++
	m.purgeLocked(context.WithoutCancel(ctx))
	snap, subs := m.applyLocked(func(s *Snapshot) {
		*s = Snapshot{State: StateSessionExpired, Err: m.msgs.SessionExpired}
	})
	m.mu.Unlock()

	m.log.Info("session.expired")
	m.publish(snap, subs)
}

func (m *Manager) logoutIf(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.Logout()
}

func (m *Manager) purgeLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error("session.store.clear.fail", "err", err)
	}
	m.api.ClearBearer()
}
