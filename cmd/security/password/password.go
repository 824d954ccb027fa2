package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var b64 = base64.RawStdEncoding

// phc is a decoded Argon2id hash string.
type phc struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, ErrInvalidHash
	}

	var p phc
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return phc{}, ErrInvalidHash
	}
	if p.memory == 0 || p.time == 0 || threads == 0 || threads > 255 {
		return phc{}, ErrInvalidHash
	}
	p.threads = uint8(threads)

	var err error
	if p.salt, err = b64.DecodeString(parts[4]); err != nil || len(p.salt) < 8 || len(p.salt) > 64 {
		return phc{}, ErrInvalidHash
	}
	if p.key, err = b64.DecodeString(parts[5]); err != nil || len(p.key) < 16 || len(p.key) > 128 {
		return phc{}, ErrInvalidHash
	}
	return p, nil
}

// Hash validates pw against the policy and returns its encoded Argon2id hash.
func (c Config) Hash(pw string) (string, error) {
	if err := c.Validate(pw); err != nil {
		return "", err
	}

	p := phc{memory: c.MemoryKiB, time: c.Iterations, threads: c.Parallelism}
	p.salt = make([]byte, c.SaltLength)
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	p.key = argon2.IDKey([]byte(pw), p.salt, p.time, p.memory, p.threads, c.KeyLength)
	return p.String(), nil
}

// Verify reports whether pw matches encoded. A malformed hash, or one whose
// cost exceeds twice the configured cost, yields ErrInvalidHash.
func (c Config) Verify(encoded, pw string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if p.memory > 2*c.MemoryKiB || p.time > 2*c.Iterations || uint32(p.threads) > 2*uint32(c.Parallelism) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(pw), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) // #nosec G115 -- bounded by parsePHC
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}
