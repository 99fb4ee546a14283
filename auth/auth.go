/*
Package auth resolves requests to an Account.

PURPOSE:
  The ledger never authenticates anyone; it only needs a resolved user id
  per call. Provider is that boundary. Service is the reference
  implementation: bcrypt password hashes and opaque session tokens with a
  fixed lifetime.

FLOW:
  Register -> user row + zero Account (one SQL transaction)
           -> optional signup bonus credited through the ledger
           -> session token
  Login    -> bcrypt compare -> session token
  Resolve  -> token -> user id, or ErrNotAuthenticated
  Logout   -> token deleted

  Register and Login hand back the Account snapshot; clients seed their
  cache from it at session start.

SEE ALSO:
  - store/sqlite/auth.go: Store implementation
  - api/middleware.go: Bearer token middleware
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ynaut/reward-ledger/ledger"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = fmt.Errorf("%w: username or email taken", ledger.ErrAccountExists)

	// ErrInvalidCredentials is returned for a failed login.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ledger.ErrNotAuthenticated)

	// ErrInvalidRegistration is returned for malformed registration input.
	ErrInvalidRegistration = errors.New("invalid registration")

	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// User is a credential record. PasswordHash never leaves the service.
type User struct {
	ID           ledger.UserID `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	DisplayName  string        `json:"display_name"`
	PasswordHash []byte        `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Session binds a token to a user until ExpiresAt.
type Session struct {
	Token     string
	UserID    ledger.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists users and sessions.
type Store interface {
	// CreateUser inserts the user, its Account and any opening journal
	// entries atomically.
	CreateUser(ctx context.Context, u User, a ledger.Account, opening ...ledger.Transaction) error
	// UserByLogin finds a user by username or email.
	UserByLogin(ctx context.Context, login string) (User, error)
	UserByID(ctx context.Context, id ledger.UserID) (User, error)
	SaveSession(ctx context.Context, s Session) error
	Session(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// RegisterInput is what a new user supplies.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// Grant is a freshly issued session and the Account it resolves to.
type Grant struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      User           `json:"user"`
	Account   ledger.Account `json:"account"`
}

// Provider is the boundary the API depends on.
type Provider interface {
	Register(ctx context.Context, in RegisterInput) (Grant, error)
	Login(ctx context.Context, login, password string) (Grant, error)
	Resolve(ctx context.Context, token string) (ledger.UserID, error)
	Logout(ctx context.Context, token string) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Options tune a Service.
type Options struct {
	SessionTTL  time.Duration
	BcryptCost  int
	SignupBonus int64
	Now         func() time.Time
}

// Service is the reference Provider.
type Service struct {
	store Store
	core  *ledger.Core
	opts  Options
}

var _ Provider = (*Service)(nil)

// NewService creates a Service. Zero options take defaults: 30 day
// sessions, bcrypt.DefaultCost, no signup bonus.
func NewService(store Store, core *ledger.Core, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, core: core, opts: opts}
}

// Register creates a user and its Account, credited with the signup bonus
// in the same commit, and opens a session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Grant, error) {
	if err := validateRegistration(in); err != nil {
		return Grant{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.opts.Now()
	u := User{
		ID:           ledger.UserID(uuid.NewString()),
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}

	acct, opening, err := ledger.Opening(u.ID, ledger.YN(s.opts.SignupBonus), ledger.ReasonSignupBonus, now)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to open account: %w", err)
	}
	if err := s.store.CreateUser(ctx, u, acct, opening...); err != nil {
		return Grant{}, err
	}

	return s.issue(ctx, u)
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, login, password string) (Grant, error) {
	u, err := s.store.UserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, ErrUserNotFound) {
		return Grant{}, ErrInvalidCredentials
	}
	if err != nil {
		return Grant{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return Grant{}, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Resolve maps a token to its user. Expired sessions are removed.
func (s *Service) Resolve(ctx context.Context, token string) (ledger.UserID, error) {
	if token == "" {
		return "", ledger.ErrNotAuthenticated
	}
	sess, err := s.store.Session(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return "", ledger.ErrNotAuthenticated
	}
	if err != nil {
		return "", err
	}
	if !s.opts.Now().Before(sess.ExpiresAt) {
		_ = s.store.DeleteSession(ctx, token)
		return "", fmt.Errorf("%w: session expired", ledger.ErrNotAuthenticated)
	}
	return sess.UserID, nil
}

// Logout revokes a token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// User returns the public profile of a user.
func (s *Service) User(ctx context.Context, id ledger.UserID) (User, error) {
	return s.store.UserByID(ctx, id)
}

// PurgeExpired deletes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.opts.Now())
}

func (s *Service) issue(ctx context.Context, u User) (Grant, error) {
	now := s.opts.Now()
	sess := Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return Grant{}, fmt.Errorf("failed to save session: %w", err)
	}

	acct, err := s.core.Account(ctx, u.ID)
	if err != nil {
		return Grant{}, err
	}

	u.PasswordHash = nil
	return Grant{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u, Account: acct}, nil
}

func validateRegistration(in RegisterInput) error {
	username := strings.TrimSpace(in.Username)
	switch {
	case len(username) < 3:
		return fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidRegistration)
	case strings.ContainsAny(username, " @"):
		return fmt.Errorf("%w: username may not contain spaces or @", ErrInvalidRegistration)
	case len(in.Password) < 6:
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidRegistration)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidRegistration)
	}
	return nil
}
