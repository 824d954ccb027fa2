// Package token mints opaque refresh tokens and hashes them for storage.
//
// Only digests are ever persisted. With a key configured the digest is
// HMAC-SHA256(token, key); without one it falls back to plain SHA-256, which
// is acceptable for the dev backend only. Digests are 64 hex characters.
package token
