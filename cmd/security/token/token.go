package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// MinKeyBytes is the shortest HMAC key NewHasher accepts.
const MinKeyBytes = 32

// MaxTokenLen bounds the plain tokens Hash will digest.
const MaxTokenLen = 4096

// Hasher digests opaque tokens. The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key selects SHA-256.
func NewHasher(key string) (Hasher, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Hasher{}, nil
	}
	if len(key) < MinKeyBytes {
		return Hasher{}, fmt.Errorf("%w: %d bytes, need %d", ErrKeyTooShort, len(key), MinKeyBytes)
	}
	return Hasher{key: []byte(key)}, nil
}

// Keyed reports whether h uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the hex digest of tok after trimming surrounding whitespace.
func (h Hasher) Hash(tok string) (string, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > MaxTokenLen {
		return "", ErrEmptyToken
	}
	if !h.Keyed() {
		sum := sha256.Sum256([]byte(tok))
		return hex.EncodeToString(sum[:]), nil
	}
	m := hmac.New(sha256.New, h.key)
	_, _ = m.Write([]byte(tok))
	return hex.EncodeToString(m.Sum(nil)), nil
}

// Equal compares two hex digests in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// NewOpaque returns a random URL-safe token of n bytes of entropy and its digest.
func (h Hasher) NewOpaque(n int) (plain, digest string, err error) {
	if n < 16 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("token entropy: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(b)
	digest, err = h.Hash(plain)
	if err != nil {
		return "", "", err
	}
	return plain, digest, nil
}
