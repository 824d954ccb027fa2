package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"daycheck/cmd/identity/ids"
	"daycheck/cmd/security/password"
	"daycheck/cmd/security/token"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/jonboulle/clockwork"
)

// Issued is the result of a login or a refresh rotation.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Service implements accounts, sessions and notification delivery on top of
// Store and Broker.
type Service struct {
	cfg    Config
	store  *Store
	broker *Broker
	tokens *accessTokens
	hasher token.Hasher
	pw     password.Config
	ids    *ids.Generator
	clock  clockwork.Clock
	log    *slog.Logger
	limit  *throttle

	// dummyHash keeps login timing similar for unknown addresses.
	dummyHash string
}

func NewService(cfg Config, pw password.Config, store *Store, broker *Broker, clock clockwork.Clock, log *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := pw.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	tokens, err := newAccessTokens(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := token.NewHasher(cfg.TokenHMACKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if !hasher.Keyed() {
		log.Warn("devserver.refresh_hash.unkeyed", "hint", "set DAYCHECK_DEV_TOKEN_HMAC_KEY to hash refresh tokens with HMAC")
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		broker: broker,
		tokens: tokens,
		hasher: hasher,
		pw:     pw,
		ids:    ids.NewGenerator(),
		clock:  clock,
		log:    log,
		limit:  newThrottle(cfg.LoginMaxFailures, cfg.LoginWindow, defaultLockoutTiers),
	}
	if h, err := pw.Hash("timing-equalizer-only"); err == nil {
		s.dummyHash = h
	}
	return s, nil
}

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account. An address verified ahead of signup starts out
// verified; any other gets its first verification issued.
func (s *Service) Signup(ctx context.Context, email, pw, name string) (User, error) {
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return User{}, err
	}
	hash, err := s.pw.Hash(pw)
	if err != nil {
		return User{}, err
	}
	now := s.now()
	id, err := s.ids.New(now)
	if err != nil {
		return User{}, err
	}
	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return User{}, ErrDuplicateEmail
	}
	verified, err := s.store.TakePreverified(ctx, now, email)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Verified:     verified,
		CreatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.log.Info("devserver.signup", "user_id", u.ID, "email", u.Email, "verified", u.Verified)

	if !u.Verified {
		if _, err := s.issueVerification(ctx, email); err != nil {
			return User{}, err
		}
	}
	return u, nil
}

func checkEmail(email string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// SendVerification replaces the pending verification of email. The address
// need not belong to an account yet.
func (s *Service) SendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return err
	}
	_, err := s.issueVerification(ctx, email)
	return err
}

// issueVerification stores a fresh code and link token. Nothing is mailed;
// both are logged for the developer to use.
func (s *Service) issueVerification(ctx context.Context, email string) (verification, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return verification{}, fmt.Errorf("verification code: %w", err)
	}
	link, _, err := s.hasher.NewOpaque(24)
	if err != nil {
		return verification{}, err
	}
	v := verification{
		Email:     email,
		Code:      fmt.Sprintf("%06d", n.Int64()),
		Token:     link,
		ExpiresAt: s.now().Add(s.cfg.VerificationTTL),
	}
	if err := s.store.PutVerification(ctx, v); err != nil {
		return verification{}, err
	}
	s.log.Info("devserver.verification.issued", "email", email, "code", v.Code, "token", v.Token)
	return v, nil
}

// VerifyCode marks email verified when code matches its pending verification.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrInvalidCode
	}
	key := "code:" + email
	if err := s.limit.Check(key, s.now()); err != nil {
		s.log.Warn("devserver.verify_code.throttled", "email", email)
		return err
	}
	got, err := s.store.ConsumeVerification(ctx, s.now(), email, code, "")
	if errors.Is(err, ErrInvalidCode) {
		s.limit.Fail(key, s.now())
	}
	if err != nil {
		return err
	}
	s.limit.Reset(key)
	return s.markVerified(ctx, got)
}

// VerifyToken marks the address behind an email-link token verified.
func (s *Service) VerifyToken(ctx context.Context, tok string) (string, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", ErrInvalidCode
	}
	email, err := s.store.ConsumeVerification(ctx, s.now(), "", "", tok)
	if err != nil {
		return "", err
	}
	return email, s.markVerified(ctx, email)
}

// markVerified flags the account of email, or remembers the address for a
// signup that has not happened yet.
func (s *Service) markVerified(ctx context.Context, email string) error {
	err := s.store.SetVerified(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("devserver.verification.preverified", "email", email)
		return s.store.MarkPreverified(ctx, email, s.now().Add(s.cfg.VerificationTTL))
	}
	return err
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, pw string) (Issued, error) {
	email = normalizeEmail(email)
	if err := s.limit.Check(email, s.now()); err != nil {
		s.log.Warn("devserver.login.throttled", "email", email)
		return Issued{}, err
	}

	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		if s.dummyHash != "" {
			_, _ = s.pw.Verify(s.dummyHash, pw)
		}
		s.limit.Fail(email, s.now())
		return Issued{}, ErrBadCredentials
	}
	if err != nil {
		return Issued{}, err
	}

	ok, err := s.pw.Verify(u.PasswordHash, pw)
	if err != nil || !ok {
		s.limit.Fail(email, s.now())
		return Issued{}, ErrBadCredentials
	}
	s.limit.Reset(email)
	if s.cfg.RequireVerifiedEmail && !u.Verified {
		return Issued{}, ErrEmailNotVerified
	}
	return s.openSession(ctx, u.ID)
}

func (s *Service) openSession(ctx context.Context, userID string) (Issued, error) {
	now := s.now()
	sid, err := s.ids.New(now)
	if err != nil {
		return Issued{}, err
	}
	plain, digest, err := s.hasher.NewOpaque(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	row := sessionRow{
		ID:          sid,
		UserID:      userID,
		RefreshHash: digest,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.store.CreateSession(ctx, row); err != nil {
		return Issued{}, err
	}

	access, exp := s.tokens.Issue(userID, sid, now)
	s.log.Info("devserver.session.open", "user_id", userID, "session_id", sid)
	return Issued{
		SessionID:    sid,
		AccessToken:  access,
		AccessExp:    exp,
		RefreshToken: plain,
		RefreshExp:   row.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh token: the presented token's session is closed
// and a new session with a new pair replaces it.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Issued, error) {
	oldDigest, err := s.hasher.Hash(refreshToken)
	if err != nil {
		return Issued{}, ErrSessionNotFound
	}

	now := s.now()
	sid, err := s.ids.New(now)
	if err != nil {
		return Issued{}, err
	}
	plain, digest, err := s.hasher.NewOpaque(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	next, err := s.store.RotateSession(ctx, now, oldDigest, sessionRow{
		ID:          sid,
		RefreshHash: digest,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
	})
	if errors.Is(err, ErrRefreshReuseDetected) {
		s.log.Warn("devserver.refresh.reuse_detected")
	}
	if err != nil {
		return Issued{}, err
	}

	access, exp := s.tokens.Issue(next.UserID, next.ID, now)
	return Issued{
		SessionID:    next.ID,
		AccessToken:  access,
		AccessExp:    exp,
		RefreshToken: plain,
		RefreshExp:   next.ExpiresAt,
	}, nil
}

// Authenticate verifies an access token and checks that its session is
// still open.
func (s *Service) Authenticate(ctx context.Context, access string) (Claims, error) {
	now := s.now()
	claims, err := s.tokens.Verify(access, now)
	if err != nil {
		return Claims{}, err
	}
	row, err := s.store.SessionByID(ctx, claims.SessionID)
	if err != nil {
		return Claims{}, err
	}
	switch {
	case row.UserID != claims.UserID:
		return Claims{}, ErrInvalidToken
	case row.RevokedAt != nil:
		return Claims{}, ErrSessionRevoked
	case !row.ExpiresAt.After(now):
		return Claims{}, ErrSessionExpired
	}
	return claims, nil
}

// Logout closes one session. Its access token stops authenticating at once.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.store.RevokeSession(ctx, s.now(), sessionID)
}

// Notify stores a notification for userID and pushes it to the user's open
// streams. It returns the stored notification and the number of streams
// that took it.
func (s *Service) Notify(ctx context.Context, userID, message string) (v1.Notification, int, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return v1.Notification{}, 0, fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}
	n, err := s.store.AddNotification(ctx, userID, message, s.now())
	if err != nil {
		return v1.Notification{}, 0, err
	}
	delivered := s.broker.Publish(userID, n)
	s.log.Info("devserver.notify", "user_id", userID, "notification_id", n.ID.String(), "streams", delivered)
	return n, delivered, nil
}
