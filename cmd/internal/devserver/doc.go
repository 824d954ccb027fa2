// Package devserver is a local stand-in for the DayCheck backend.
//
// It serves the REST and SSE contract the client consumes: signup and email
// verification, login with PASETO access tokens and rotating refresh tokens,
// the notification inbox, recurring schedules, and the per-user notification
// stream. State lives in SQLite (in memory unless a path is configured).
//
// It exists for development and end-to-end tests and makes no attempt at
// production hardening: verification codes are logged instead of mailed. Failed
// logins and code checks are throttled per address in memory only.
package devserver
