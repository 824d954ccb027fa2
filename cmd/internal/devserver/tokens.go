package devserver

import (
	"fmt"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Claims is what an access token asserts.
type Claims struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// accessTokens signs and verifies PASETO v4.public access tokens.
type accessTokens struct {
	issuer string
	ttl    time.Duration
	skew   time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// newAccessTokens loads the Ed25519 key from hex, or generates one when keyHex
// is empty. Tokens signed with a generated key do not survive a restart.
func newAccessTokens(cfg Config) (*accessTokens, error) {
	var secret paseto.V4AsymmetricSecretKey
	if hexKey := strings.TrimSpace(cfg.PasetoKeyHex); hexKey != "" {
		k, err := paseto.NewV4AsymmetricSecretKeyFromHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("%w: paseto key: %v", ErrConfig, err)
		}
		secret = k
	} else {
		secret = paseto.NewV4AsymmetricSecretKey()
	}

	return &accessTokens{
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		skew:   cfg.ClockSkew,
		secret: secret,
		public: secret.Public(),
	}, nil
}

func (m *accessTokens) Issue(userID, sessionID string, now time.Time) (string, time.Time) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	_ = tok.Set("uid", userID)
	_ = tok.Set("sid", sessionID)

	return tok.V4Sign(m.secret, nil), exp
}

// Verify checks signature and issuer. Issued-at and not-before may lie up to
// the configured skew in the future; expiry must be after now itself.
func (m *accessTokens) Verify(token string, now time.Time) (Claims, error) {
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil || !exp.After(now) {
		return Claims{}, ErrInvalidToken
	}
	latest := now.Add(m.skew)
	iat, err := parsed.GetIssuedAt()
	if err != nil || iat.After(latest) {
		return Claims{}, ErrInvalidToken
	}
	if nbf, err := parsed.GetNotBefore(); err == nil && nbf.After(latest) {
		return Claims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return Claims{}, ErrInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: uid, SessionID: sid, IssuedAt: iat, ExpiresAt: exp}, nil
}
