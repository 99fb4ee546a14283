/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One database file holds everything the service persists: accounts,
  the like relation, the append-only journal, engagement content and
  auth sessions. Every interface the processors need is implemented on
  the same query layer, so a single SQL transaction can cover an Account
  change and the content row it pays for.

INTERFACES IMPLEMENTED:
  ledger.TxStore:       Accounts, likes, journal, WithTx
  rewards.ContentStore: Posts, comments, stories, channels
  auth.Store:           Users and sessions

APPEND-ONLY ENFORCEMENT:
  The journal (transactions table) is never updated or deleted.
  idempotency_key is UNIQUE across the journal.

KEY TABLES:
  accounts:              Balance + entitlement flags per user
  likes:                 (user_id, target_id) membership
  transactions:          Immutable journal of every committed change
  posts, comments:       Engagement content
  stories:               Expiring content, swept by DeleteExpiredStories
  channels, channel_subscriptions
  users, sessions:       Credentials and session tokens

CONCURRENCY:
  The pool is capped at one connection. SQLite allows a single writer
  anyway, and a capped pool keeps ":memory:" databases on one connection.
  Per-account serialization is the ledger Core's job, not the store's.

USAGE:
  store, err := sqlite.New("./data/yn.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  core := ledger.NewCore(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/ynaut/reward-ledger/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. Store runs them on the pool; WithTx runs
// them on a transaction.
type queries struct {
	q querier
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a database transaction. The store handed to fn
// also implements rewards.ContentStore.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ledger.ErrTransactionFailed, err)
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (mutable snapshot; history lives in transactions)
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		is_premium INTEGER NOT NULL DEFAULT 0,
		is_verified INTEGER NOT NULL DEFAULT 0,
		verification_color TEXT NOT NULL DEFAULT 'none',
		custom_theme TEXT NOT NULL DEFAULT 'default',
		premium_emoji_enabled INTEGER NOT NULL DEFAULT 0,
		super_likes_count INTEGER NOT NULL DEFAULT 0 CHECK (super_likes_count >= 0),
		boost_active_until TEXT,
		updated_at TEXT NOT NULL
	);

	-- Like relation, keyed by the liking user
	CREATE TABLE IF NOT EXISTS likes (
		user_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		super INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, target_id)
	);

	CREATE INDEX IF NOT EXISTS idx_likes_target ON likes(target_id);

	-- Journal (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		delta TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reason TEXT NOT NULL,
		reference_id TEXT,
		effect_json TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Channels
	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		is_private INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channel_subscriptions (
		channel_id TEXT NOT NULL REFERENCES channels(id),
		user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	);

	-- Posts and comments
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		channel_id TEXT REFERENCES channels(id),
		media_url TEXT,
		media_type TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id),
		user_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);

	-- Stories (expire; credits do not)
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		media_url TEXT NOT NULL,
		media_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stories_expires ON stories(expires_at);

	-- One row per (story, viewer); swept with the story
	CREATE TABLE IF NOT EXISTS story_views (
		story_id TEXT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		viewed_at TEXT NOT NULL,
		PRIMARY KEY (story_id, user_id)
	);

	-- Users and sessions
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT,
		password_hash BLOB NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so that TEXT comparisons order chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func constraintCode(err error) (sqlite3.ErrNoExtended, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return se.ExtendedCode, true
	}
	return 0, false
}

func isUniqueConstraintError(err error) bool {
	code, ok := constraintCode(err)
	return ok && (code == sqlite3.ErrConstraintUnique || code == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	code, ok := constraintCode(err)
	return ok && code == sqlite3.ErrConstraintForeignKey
}
