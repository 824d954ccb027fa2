package token

import "errors"

var (
	ErrKeyTooShort = errors.New("token HMAC key too short")
	ErrEmptyToken  = errors.New("empty token")
)
