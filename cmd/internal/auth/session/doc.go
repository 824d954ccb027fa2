// Package session implements the DayCheck client session manager.
//
// A Manager owns the access/refresh token pair, derives the authenticated
// user from it, and arms the shared REST client with the bearer credential.
// Tokens are persisted through a TokenStore (YAML file, SQLite or memory) and
// are always written and cleared as a pair.
//
// State machine:
//
//	Unauthenticated -> Authenticating -> Authenticated
//	                                  \-> SessionExpired
//
// Logout returns every state to Unauthenticated. Refresh is never triggered
// automatically; callers invoke RefreshToken explicitly.
package session
