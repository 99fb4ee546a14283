/*
cache.go - Client-side mirror of the authoritative Account

PURPOSE:
  Holds the session token and the last Account snapshot the server
  confirmed, persisted to a YAML file so a session survives restart.

RULES:
  - The snapshot is replaced only by a successful server result
  - Failed results never touch it
  - Balances are never recomputed locally
  - A file without a session token is discarded on load; the Account
    is then unknown, which is not the same as a zero balance

SEE ALSO:
  - client.go: Calls Reconcile after every mutating request
*/
package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ynaut/reward-ledger/ledger"
	"gopkg.in/yaml.v3"
)

// ErrAccountMismatch is returned when a result belongs to a different user
// than the cached session.
var ErrAccountMismatch = errors.New("result is for a different account")

// Cache is safe for concurrent use.
type Cache struct {
	path string
	now  func() time.Time

	mu       sync.Mutex
	token    string
	account  *ledger.Account
	syncedAt time.Time
}

// OpenCache loads the cache at path. A missing file yields an empty cache.
// An empty path keeps the cache in memory only.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, now: time.Now}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var rec cacheRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse cache %s: %w", path, err)
	}

	if rec.Token == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to discard cache: %w", err)
		}
		return c, nil
	}

	c.token = rec.Token
	c.syncedAt = rec.SyncedAt
	if rec.Account != nil {
		acct, err := rec.Account.toAccount()
		if err != nil {
			return nil, fmt.Errorf("failed to parse cache %s: %w", path, err)
		}
		c.account = &acct
	}
	return c, nil
}

// Path returns the backing file, or "" for an in-memory cache.
func (c *Cache) Path() string { return c.path }

// Token returns the cached session token, or "".
func (c *Cache) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Account returns the last confirmed snapshot. ok is false when the Account
// is unknown.
func (c *Cache) Account() (acct ledger.Account, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == nil {
		return ledger.Account{}, false
	}
	return *c.account, true
}

// SyncedAt is when the snapshot was last confirmed.
func (c *Cache) SyncedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncedAt
}

// Begin starts a session with the Account the server returned at login.
func (c *Cache) Begin(token string, acct ledger.Account) error {
	if token == "" {
		return fmt.Errorf("cache: empty session token")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.account = &acct
	c.syncedAt = c.now()
	return c.saveLocked()
}

// Reconcile adopts the Account from a successful result. Unsuccessful
// results are ignored.
func (c *Cache) Reconcile(res ledger.Result) error {
	if !res.Success {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.account != nil && c.account.UserID != res.Account.UserID {
		return fmt.Errorf("%w: cached %s, got %s", ErrAccountMismatch, c.account.UserID, res.Account.UserID)
	}

	acct := res.Account
	c.account = &acct
	c.syncedAt = c.now()
	return c.saveLocked()
}

// Clear forgets the session and the snapshot and removes the file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.account = nil
	c.syncedAt = time.Time{}

	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cache: %w", err)
	}
	return nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

type cacheRecord struct {
	Token    string         `yaml:"token"`
	SyncedAt time.Time      `yaml:"synced_at"`
	Account  *accountRecord `yaml:"account,omitempty"`
}

type accountRecord struct {
	UserID              string     `yaml:"user_id"`
	Balance             string     `yaml:"balance"`
	IsPremium           bool       `yaml:"is_premium"`
	IsVerified          bool       `yaml:"is_verified"`
	VerificationColor   string     `yaml:"verification_color"`
	CustomTheme         string     `yaml:"custom_theme"`
	PremiumEmojiEnabled bool       `yaml:"premium_emoji_enabled"`
	SuperLikesCount     int        `yaml:"super_likes_count"`
	BoostActiveUntil    *time.Time `yaml:"boost_active_until,omitempty"`
	UpdatedAt           time.Time  `yaml:"updated_at"`
}

func newAccountRecord(a ledger.Account) *accountRecord {
	return &accountRecord{
		UserID:              string(a.UserID),
		Balance:             a.Balance.String(),
		IsPremium:           a.IsPremium,
		IsVerified:          a.IsVerified,
		VerificationColor:   string(a.VerificationColor),
		CustomTheme:         string(a.CustomTheme),
		PremiumEmojiEnabled: a.PremiumEmojiEnabled,
		SuperLikesCount:     a.SuperLikesCount,
		BoostActiveUntil:    a.BoostActiveUntil,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (r *accountRecord) toAccount() (ledger.Account, error) {
	bal, err := ledger.ParseAmount(r.Balance)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("balance: %w", err)
	}
	return ledger.Account{
		UserID:              ledger.UserID(r.UserID),
		Balance:             bal,
		IsPremium:           r.IsPremium,
		IsVerified:          r.IsVerified,
		VerificationColor:   ledger.VerificationColor(r.VerificationColor),
		CustomTheme:         ledger.Theme(r.CustomTheme),
		PremiumEmojiEnabled: r.PremiumEmojiEnabled,
		SuperLikesCount:     r.SuperLikesCount,
		BoostActiveUntil:    r.BoostActiveUntil,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

// saveLocked writes through a temp file and rename so a crash never leaves
// a half-written cache.
func (c *Cache) saveLocked() error {
	if c.path == "" {
		return nil
	}

	rec := cacheRecord{Token: c.token, SyncedAt: c.syncedAt}
	if c.account != nil {
		rec.Account = newAccountRecord(*c.account)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cache-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
