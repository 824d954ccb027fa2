package session

import "errors"

var (
	// ErrConfig is returned for invalid store configuration.
	ErrConfig = errors.New("invalid config")

	// ErrNoRefreshToken is returned when a refresh is attempted without a stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSuperseded is returned internally when a Logout happened while an
	// operation was in flight; the operation's result is discarded.
	ErrSuperseded = errors.New("session superseded by logout")
)
