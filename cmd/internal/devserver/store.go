package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"daycheck/cmd/internal/schedule"
	v1 "daycheck/shared/contracts/push/v1"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	verified      INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS verifications (
	email      TEXT PRIMARY KEY COLLATE NOCASE,
	code       TEXT NOT NULL,
	token      TEXT NOT NULL UNIQUE,
	expires_at INTEGER NOT NULL
);

-- Addresses confirmed before their account exists.
CREATE TABLE IF NOT EXISTS preverified (
	email      TEXT PRIMARY KEY COLLATE NOCASE,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	refresh_hash TEXT NOT NULL UNIQUE,
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL,
	revoked_at   INTEGER,
	replaced_by  TEXT
);
CREATE INDEX IF NOT EXISTS sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS notifications (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL REFERENCES users(id),
	message           TEXT NOT NULL,
	notification_time INTEGER NOT NULL,
	read              INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS notifications_user ON notifications(user_id, read);

CREATE TABLE IF NOT EXISTS schedules (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL REFERENCES users(id),
	body    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule_exceptions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	schedule_id    INTEGER NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	user_id        TEXT NOT NULL,
	exception_date TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT ''
);`

// User is an account row.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
}

type verification struct {
	Email     string
	Code      string
	Token     string
	ExpiresAt time.Time
}

type sessionRow struct {
	ID          string
	UserID      string
	RefreshHash string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	ReplacedBy  string
}

// Store keeps dev backend state in SQLite. One connection is shared, so a
// transaction holds the whole database for its duration.
type Store struct {
	db *sql.DB
}

// OpenStore opens path, or a private in-memory database when path is empty.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("devserver db: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if dsn != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("devserver db: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("devserver db: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ---- users ----

// CreateUser inserts u, failing with ErrDuplicateEmail when the address
// (case-insensitively) is taken.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("devserver db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, u.Email).Scan(&n); err != nil {
		return fmt.Errorf("devserver db: user lookup: %w", err)
	}
	if n > 0 {
		return ErrDuplicateEmail
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Verified, nanos(u.CreatedAt)); err != nil {
		return fmt.Errorf("devserver db: insert user: %w", err)
	}
	return tx.Commit()
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.user(ctx, `email = ?`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	return s.user(ctx, `id = ?`, id)
}

func (s *Store) user(ctx context.Context, where string, arg string) (User, error) {
	var (
		u       User
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, verified, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Verified, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("devserver db: user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func (s *Store) SetVerified(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET verified = 1 WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("devserver db: verify user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- verification codes ----

// PutVerification replaces any pending verification for v.Email.
func (s *Store) PutVerification(ctx context.Context, v verification) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO verifications (email, code, token, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET code = excluded.code, token = excluded.token, expires_at = excluded.expires_at
	`, v.Email, v.Code, v.Token, nanos(v.ExpiresAt)); err != nil {
		return fmt.Errorf("devserver db: put verification: %w", err)
	}
	return nil
}

// PendingVerification returns the unconsumed verification of email.
func (s *Store) PendingVerification(ctx context.Context, email string) (verification, error) {
	var (
		v   verification
		exp int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, code, token, expires_at FROM verifications WHERE email = ?`, email,
	).Scan(&v.Email, &v.Code, &v.Token, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return verification{}, ErrNotFound
	}
	if err != nil {
		return verification{}, fmt.Errorf("devserver db: verification: %w", err)
	}
	v.ExpiresAt = fromNanos(exp)
	return v, nil
}

// ConsumeVerification deletes the pending verification matching either
// (email, code) or token and returns its email. A missing or expired entry
// yields ErrInvalidCode.
func (s *Store) ConsumeVerification(ctx context.Context, now time.Time, email, code, token string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("devserver db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		row *sql.Row
		v   verification
		exp int64
	)
	if token != "" {
		row = tx.QueryRowContext(ctx, `SELECT email, expires_at FROM verifications WHERE token = ?`, token)
	} else {
		row = tx.QueryRowContext(ctx, `SELECT email, expires_at FROM verifications WHERE email = ? AND code = ?`, email, code)
	}
	if err := row.Scan(&v.Email, &exp); errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCode
	} else if err != nil {
		return "", fmt.Errorf("devserver db: verification: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM verifications WHERE email = ?`, v.Email); err != nil {
		return "", fmt.Errorf("devserver db: delete verification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("devserver db: commit: %w", err)
	}
	if !fromNanos(exp).After(now) {
		return "", ErrInvalidCode
	}
	return v.Email, nil
}

// MarkPreverified remembers that email passed verification before signing up.
func (s *Store) MarkPreverified(ctx context.Context, email string, until time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO preverified (email, expires_at) VALUES (?, ?)
		ON CONFLICT(email) DO UPDATE SET expires_at = excluded.expires_at
	`, email, nanos(until)); err != nil {
		return fmt.Errorf("devserver db: preverify: %w", err)
	}
	return nil
}

// TakePreverified consumes a pending pre-verification and reports whether an
// unexpired one existed.
func (s *Store) TakePreverified(ctx context.Context, now time.Time, email string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("devserver db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exp int64
	err = tx.QueryRowContext(ctx, `SELECT expires_at FROM preverified WHERE email = ?`, email).Scan(&exp)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("devserver db: preverified: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM preverified WHERE email = ?`, email); err != nil {
		return false, fmt.Errorf("devserver db: preverified: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("devserver db: commit: %w", err)
	}
	return fromNanos(exp).After(now), nil
}

// ---- sessions ----

func (s *Store) CreateSession(ctx context.Context, r sessionRow) error {
	return insertSession(ctx, s.db, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, r sessionRow) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, refresh_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.RefreshHash, nanos(r.CreatedAt), nanos(r.ExpiresAt)); err != nil {
		return fmt.Errorf("devserver db: insert session: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSession(row *sql.Row) (sessionRow, error) {
	var (
		r                sessionRow
		created, expires int64
		revoked          sql.NullInt64
		replaced         sql.NullString
	)
	err := row.Scan(&r.ID, &r.UserID, &r.RefreshHash, &created, &expires, &revoked, &replaced)
	if errors.Is(err, sql.ErrNoRows) {
		return sessionRow{}, ErrSessionNotFound
	}
	if err != nil {
		return sessionRow{}, fmt.Errorf("devserver db: session: %w", err)
	}
	r.CreatedAt = fromNanos(created)
	r.ExpiresAt = fromNanos(expires)
	if revoked.Valid {
		t := fromNanos(revoked.Int64)
		r.RevokedAt = &t
	}
	r.ReplacedBy = replaced.String
	return r, nil
}

const sessionColumns = `id, user_id, refresh_hash, created_at, expires_at, revoked_at, replaced_by`

func sessionBy(ctx context.Context, db queryRower, where, arg string) (sessionRow, error) {
	return scanSession(db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE `+where, arg))
}

func (s *Store) SessionByID(ctx context.Context, id string) (sessionRow, error) {
	return sessionBy(ctx, s.db, `id = ?`, id)
}

// RotateSession replaces the session holding oldHash with next inside one
// transaction. Presenting the hash of an already rotated session revokes
// every session of its user and fails with ErrRefreshReuseDetected.
func (s *Store) RotateSession(ctx context.Context, now time.Time, oldHash string, next sessionRow) (sessionRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sessionRow{}, fmt.Errorf("devserver db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := sessionBy(ctx, tx, `refresh_hash = ?`, oldHash)
	if err != nil {
		return sessionRow{}, err
	}
	if !old.ExpiresAt.After(now) {
		return sessionRow{}, ErrSessionExpired
	}
	if old.RevokedAt != nil && old.ReplacedBy != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
			nanos(now), old.UserID,
		); err != nil {
			return sessionRow{}, fmt.Errorf("devserver db: revoke all: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return sessionRow{}, fmt.Errorf("devserver db: commit: %w", err)
		}
		return sessionRow{}, ErrRefreshReuseDetected
	}
	if old.RevokedAt != nil {
		return sessionRow{}, ErrSessionRevoked
	}

	next.UserID = old.UserID
	if err := insertSession(ctx, tx, next); err != nil {
		return sessionRow{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ?, replaced_by = ? WHERE id = ?`,
		nanos(now), next.ID, old.ID,
	); err != nil {
		return sessionRow{}, fmt.Errorf("devserver db: mark rotated: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return sessionRow{}, fmt.Errorf("devserver db: commit: %w", err)
	}
	return next, nil
}

func (s *Store) RevokeSession(ctx context.Context, now time.Time, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, nanos(now), id,
	); err != nil {
		return fmt.Errorf("devserver db: revoke: %w", err)
	}
	return nil
}

// ---- notifications ----

func (s *Store) AddNotification(ctx context.Context, userID, message string, at time.Time) (v1.Notification, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, message, notification_time) VALUES (?, ?, ?)`,
		userID, message, nanos(at),
	)
	if err != nil {
		return v1.Notification{}, fmt.Errorf("devserver db: insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return v1.Notification{}, fmt.Errorf("devserver db: notification id: %w", err)
	}
	return v1.Notification{
		ID:               v1.ID(strconv.FormatInt(id, 10)),
		Message:          message,
		NotificationTime: v1.Timestamp{Time: fromNanos(nanos(at))},
	}, nil
}

// Notifications lists a user's notifications newest first.
func (s *Store) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]v1.Notification, error) {
	q := `SELECT id, message, notification_time, read FROM notifications WHERE user_id = ?`
	if unreadOnly {
		q += ` AND read = 0`
	}
	q += ` ORDER BY notification_time DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("devserver db: notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []v1.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("devserver db: notifications: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(sc scanner) (v1.Notification, error) {
	var (
		id   int64
		n    v1.Notification
		at   int64
		read bool
	)
	if err := sc.Scan(&id, &n.Message, &at, &read); err != nil {
		return v1.Notification{}, err
	}
	n.ID = v1.ID(strconv.FormatInt(id, 10))
	n.NotificationTime = v1.Timestamp{Time: fromNanos(at)}
	n.Read = read
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID string, id v1.ID) (v1.Notification, error) {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return v1.Notification{}, ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, n, userID,
	); err != nil {
		return v1.Notification{}, fmt.Errorf("devserver db: mark read: %w", err)
	}
	out, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT id, message, notification_time, read FROM notifications WHERE id = ? AND user_id = ?`, n, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return v1.Notification{}, ErrNotFound
	}
	if err != nil {
		return v1.Notification{}, fmt.Errorf("devserver db: mark read: %w", err)
	}
	return out, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("devserver db: mark all read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---- schedules ----

func parseRowID(id v1.ID) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id.String()), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func (s *Store) CreateSchedule(ctx context.Context, userID string, sc schedule.RecurringSchedule) (schedule.RecurringSchedule, error) {
	sc.ID = ""
	body, err := json.Marshal(sc)
	if err != nil {
		return schedule.RecurringSchedule{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO schedules (user_id, body) VALUES (?, ?)`, userID, string(body))
	if err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("devserver db: insert schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("devserver db: schedule id: %w", err)
	}
	sc.ID = v1.ID(strconv.FormatInt(id, 10))
	return sc, nil
}

func (s *Store) Schedules(ctx context.Context, userID string) ([]schedule.RecurringSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM schedules WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("devserver db: schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []schedule.RecurringSchedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("devserver db: schedules: %w", err)
	}
	return out, nil
}

func scanSchedule(sc scanner) (schedule.RecurringSchedule, error) {
	var (
		id   int64
		body string
		out  schedule.RecurringSchedule
	)
	if err := sc.Scan(&id, &body); err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, fmt.Errorf("devserver db: schedule %d body: %w", id, err)
	}
	out.ID = v1.ID(strconv.FormatInt(id, 10))
	return out, nil
}

func (s *Store) Schedule(ctx context.Context, userID string, id v1.ID) (schedule.RecurringSchedule, error) {
	n, err := parseRowID(id)
	if err != nil {
		return schedule.RecurringSchedule{}, err
	}
	out, err := scanSchedule(s.db.QueryRowContext(ctx,
		`SELECT id, body FROM schedules WHERE id = ? AND user_id = ?`, n, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.RecurringSchedule{}, ErrNotFound
	}
	return out, err
}

// UpdateSchedule merges the JSON members present in patch into the stored
// schedule and validates the result.
func (s *Store) UpdateSchedule(ctx context.Context, userID string, id v1.ID, patch []byte) (schedule.RecurringSchedule, error) {
	n, err := parseRowID(id)
	if err != nil {
		return schedule.RecurringSchedule{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("devserver db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanSchedule(tx.QueryRowContext(ctx,
		`SELECT id, body FROM schedules WHERE id = ? AND user_id = ?`, n, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.RecurringSchedule{}, ErrNotFound
	}
	if err != nil {
		return schedule.RecurringSchedule{}, err
	}
	if err := json.Unmarshal(patch, &cur); err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("%w: %v", schedule.ErrInvalid, err)
	}
	cur.ID = ""
	if err := cur.Validate(); err != nil {
		return schedule.RecurringSchedule{}, err
	}
	body, err := json.Marshal(cur)
	if err != nil {
		return schedule.RecurringSchedule{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schedules SET body = ? WHERE id = ?`, string(body), n); err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("devserver db: update schedule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("devserver db: commit: %w", err)
	}
	cur.ID = v1.ID(strconv.FormatInt(n, 10))
	return cur, nil
}

func (s *Store) DeleteSchedule(ctx context.Context, userID string, id v1.ID) error {
	n, err := parseRowID(id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND user_id = ?`, n, userID)
	if err != nil {
		return fmt.Errorf("devserver db: delete schedule: %w", err)
	}
	if c, _ := res.RowsAffected(); c == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Exceptions(ctx context.Context, userID string, scheduleID v1.ID) ([]schedule.Exception, error) {
	n, err := parseRowID(scheduleID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, exception_date, reason FROM schedule_exceptions
		WHERE schedule_id = ? AND user_id = ? ORDER BY exception_date
	`, n, userID)
	if err != nil {
		return nil, fmt.Errorf("devserver db: exceptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []schedule.Exception{}
	for rows.Next() {
		var (
			id, sid int64
			ex      schedule.Exception
		)
		if err := rows.Scan(&id, &sid, &ex.ExceptionDate, &ex.Reason); err != nil {
			return nil, fmt.Errorf("devserver db: exceptions: %w", err)
		}
		ex.ID = v1.ID(strconv.FormatInt(id, 10))
		ex.RecurringScheduleID = v1.ID(strconv.FormatInt(sid, 10))
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("devserver db: exceptions: %w", err)
	}
	return out, nil
}

func (s *Store) CreateException(ctx context.Context, userID string, ex schedule.Exception) (schedule.Exception, error) {
	sid, err := parseRowID(ex.RecurringScheduleID)
	if err != nil {
		return schedule.Exception{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schedule.Exception{}, fmt.Errorf("devserver db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM schedules WHERE id = ?`, sid).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return schedule.Exception{}, ErrNotFound
	}
	if err != nil {
		return schedule.Exception{}, fmt.Errorf("devserver db: exception owner: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_exceptions (schedule_id, user_id, exception_date, reason) VALUES (?, ?, ?, ?)
	`, sid, userID, ex.ExceptionDate, ex.Reason)
	if err != nil {
		return schedule.Exception{}, fmt.Errorf("devserver db: insert exception: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schedule.Exception{}, fmt.Errorf("devserver db: exception id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return schedule.Exception{}, fmt.Errorf("devserver db: commit: %w", err)
	}
	ex.ID = v1.ID(strconv.FormatInt(id, 10))
	ex.RecurringScheduleID = v1.ID(strconv.FormatInt(sid, 10))
	return ex, nil
}

func (s *Store) DeleteException(ctx context.Context, userID string, id v1.ID) error {
	n, err := parseRowID(id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_exceptions WHERE id = ? AND user_id = ?`, n, userID)
	if err != nil {
		return fmt.Errorf("devserver db: delete exception: %w", err)
	}
	if c, _ := res.RowsAffected(); c == 0 {
		return ErrNotFound
	}
	return nil
}
