package devserver

import "errors"

var (
	ErrConfig = errors.New("devserver: invalid config")

	ErrInvalidToken         = errors.New("invalid token")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	ErrDuplicateEmail   = errors.New("email already registered")
	ErrBadCredentials   = errors.New("bad credentials")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrNotFound         = errors.New("not found")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrRateLimited      = errors.New("too many attempts")
)
