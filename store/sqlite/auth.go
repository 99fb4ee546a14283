package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/ledger"
)

var _ auth.Store = (*Store)(nil)

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts the user row, its Account and the opening journal
// entries in one transaction.
func (s *Store) CreateUser(ctx context.Context, u auth.User, a ledger.Account, opening ...ledger.Transaction) error {
	return s.WithTx(ctx, func(ls ledger.Store) error {
		q := ls.(*queries)
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO users (id, username, email, display_name, password_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(u.ID), u.Username, u.Email, nullString(u.DisplayName), u.PasswordHash, formatTime(u.CreatedAt))
		if isUniqueConstraintError(err) {
			return auth.ErrUserExists
		}
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := q.CreateAccount(ctx, a); err != nil {
			return err
		}
		for _, tx := range opening {
			if err := q.Append(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UserByLogin(ctx context.Context, login string) (auth.User, error) {
	return s.queryUser(ctx, `WHERE username = ? OR email = lower(?)`, login, login)
}

func (s *Store) UserByID(ctx context.Context, id ledger.UserID) (auth.User, error) {
	return s.queryUser(ctx, `WHERE id = ?`, string(id))
}

func (s *Store) queryUser(ctx context.Context, where string, args ...any) (auth.User, error) {
	var (
		u           auth.User
		id, created string
		display     nullableString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, display_name, password_hash, created_at
		FROM users `+where, args...,
	).Scan(&id, &u.Username, &u.Email, &display, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	u.ID = ledger.UserID(id)
	u.DisplayName = string(display)
	if u.CreatedAt, err = parseTime(created); err != nil {
		return auth.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (s *Store) SaveSession(ctx context.Context, sess auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)
	`, sess.Token, string(sess.UserID), formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, token string) (auth.Session, error) {
	var (
		sess             auth.Session
		user             string
		created, expires string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &user, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	sess.UserID = ledger.UserID(user)
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return auth.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.ExpiresAt, err = parseTime(expires); err != nil {
		return auth.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
