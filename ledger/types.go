/*
types.go - Core value types for the YN reward ledger

PURPOSE:
  Defines the vocabulary shared by every package: amounts of YN, account
  identity, the Account record itself, journal entries and operation
  results. Nothing here touches storage or locking.

KEY TYPES:
  - Amount:      A quantity of YN. Always integral, never fractional.
  - Account:     Balance plus entitlement flags for one user.
  - Transaction: One immutable journal entry (credit, debit, grant, consume).
  - Result:      What a committed operation hands back to the caller.

AMOUNTS:
  YN is an integer currency. Amount wraps decimal.Decimal so that inputs
  arriving as JSON numbers ("12.5") can be rejected as InvalidAmount
  instead of being silently truncated by an int decode.

    price := ledger.YN(500)
    if balance.LessThan(price) { ... }

SEE ALSO:
  - effect.go: Entitlement effects applied to an Account
  - ledger.go: Core operations producing Results
*/
package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Integral quantity of YN
// =============================================================================

// Amount is a quantity of YN.
type Amount struct {
	Value decimal.Decimal
}

// YN builds an Amount from an integer.
func YN(n int64) Amount { return Amount{Value: decimal.NewFromInt(n)} }

// MaxAmount is the largest amount or balance the stores can hold.
var MaxAmount = YN(math.MaxInt64)

// ParseAmount parses a decimal string. Fractional values parse successfully
// but fail IsIntegral, so callers decide how to reject them.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{Value: d}, nil
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) IsIntegral() bool          { return a.Value.IsInteger() }
func (a Amount) Int64() int64              { return a.Value.IntPart() }
func (a Amount) String() string            { return a.Value.String() }

// MarshalJSON writes the amount as a bare JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Value.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Value.UnmarshalJSON(data)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID        string
	TargetID      string
	TransactionID string
)

// =============================================================================
// ACCOUNT
// =============================================================================

// VerificationColor is the badge color shown next to a verified account.
type VerificationColor string

const (
	VerificationNone VerificationColor = "none"
	VerificationRed  VerificationColor = "red"
	VerificationBlue VerificationColor = "blue"
)

func (c VerificationColor) Valid() bool {
	switch c {
	case VerificationNone, VerificationRed, VerificationBlue:
		return true
	}
	return false
}

// Theme names a profile theme slot.
type Theme string

const (
	ThemeDefault  Theme = "default"
	ThemeCustom   Theme = "custom"
	ThemeOcean    Theme = "ocean"
	ThemeSunset   Theme = "sunset"
	ThemeForest   Theme = "forest"
	ThemeMidnight Theme = "midnight"
)

// premiumPalette is unlocked by is_premium. It is not ledger state.
var premiumPalette = []Theme{ThemeOcean, ThemeSunset, ThemeForest, ThemeMidnight}

func (t Theme) Valid() bool {
	if t == ThemeDefault || t == ThemeCustom {
		return true
	}
	for _, p := range premiumPalette {
		if t == p {
			return true
		}
	}
	return false
}

// Account is the authoritative balance and entitlement record of one user.
//
// INVARIANTS:
//   - Balance >= 0
//   - SuperLikesCount >= 0
//   - IsPremium implies IsVerified with VerificationBlue
type Account struct {
	UserID              UserID            `json:"user_id"`
	Balance             Amount            `json:"balance"`
	IsPremium           bool              `json:"is_premium"`
	IsVerified          bool              `json:"is_verified"`
	VerificationColor   VerificationColor `json:"verification_color"`
	CustomTheme         Theme             `json:"custom_theme"`
	PremiumEmojiEnabled bool              `json:"premium_emoji_enabled"`
	SuperLikesCount     int               `json:"super_likes_count"`
	BoostActiveUntil    *time.Time        `json:"boost_active_until,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewAccount returns the registration-time state: zero balance, no flags.
func NewAccount(id UserID) Account {
	return Account{
		UserID:            id,
		Balance:           YN(0),
		VerificationColor: VerificationNone,
		CustomTheme:       ThemeDefault,
	}
}

// BoostActive reports whether a visibility boost covers the given instant.
func (a Account) BoostActive(at time.Time) bool {
	return a.BoostActiveUntil != nil && at.Before(*a.BoostActiveUntil)
}

// AvailableThemes lists the themes a profile may display. Premium accounts
// see the full palette; everyone else sees default plus a purchased slot.
func AvailableThemes(a Account) []Theme {
	themes := []Theme{ThemeDefault}
	if a.CustomTheme != ThemeDefault && a.CustomTheme != "" {
		themes = append(themes, a.CustomTheme)
	}
	if !a.IsPremium {
		return themes
	}
	for _, p := range premiumPalette {
		if p != a.CustomTheme {
			themes = append(themes, p)
		}
	}
	return themes
}

// checkInvariants guards every commit.
func (a Account) checkInvariants() error {
	if a.Balance.IsNegative() {
		return &InvariantError{UserID: a.UserID, Rule: "balance must be non-negative"}
	}
	if !a.Balance.IsIntegral() {
		return &InvariantError{UserID: a.UserID, Rule: "balance must be integral"}
	}
	if a.Balance.GreaterThan(MaxAmount) {
		return &InvariantError{UserID: a.UserID, Rule: "balance exceeds int64"}
	}
	if a.SuperLikesCount < 0 {
		return &InvariantError{UserID: a.UserID, Rule: "super_likes_count must be non-negative"}
	}
	return nil
}

// =============================================================================
// JOURNAL
// =============================================================================

// TxType classifies a journal entry.
type TxType string

const (
	TxCredit      TxType = "credit"
	TxDebit       TxType = "debit"
	TxEntitlement TxType = "entitlement"
	TxConsume     TxType = "consume"
)

// Reason records why a balance moved.
type Reason string

const (
	ReasonLike          Reason = "like"
	ReasonComment       Reason = "comment"
	ReasonPost          Reason = "post"
	ReasonStory         Reason = "story"
	ReasonChannelCreate Reason = "channel_create"
	ReasonPurchase      Reason = "purchase"
	ReasonSuperLike     Reason = "super_like"
	ReasonSignupBonus   Reason = "signup_bonus"
	ReasonAdjustment    Reason = "adjustment"
)

// Transaction is one immutable journal entry. Entries are written in the
// same storage transaction as the Account change they describe.
type Transaction struct {
	ID             TransactionID `json:"id"`
	UserID         UserID        `json:"user_id"`
	Type           TxType        `json:"type"`
	Delta          Amount        `json:"delta"`
	BalanceAfter   Amount        `json:"balance_after"`
	Reason         Reason        `json:"reason"`
	ReferenceID    string        `json:"reference_id,omitempty"`
	Effect         *Effect       `json:"effect,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Like is one (user, target) membership of the like relation.
type Like struct {
	UserID    UserID    `json:"user_id"`
	TargetID  TargetID  `json:"target_id"`
	Super     bool      `json:"super"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// RESULT
// =============================================================================

// Result is returned by every committed operation. Account is the full
// authoritative snapshot after the commit; clients reconcile from it.
type Result struct {
	Success         bool              `json:"success"`
	NewBalance      Amount            `json:"new_balance"`
	Delta           *EntitlementDelta `json:"entitlement_delta,omitempty"`
	AlreadyEntitled bool              `json:"already_entitled,omitempty"`
	Account         Account           `json:"account"`
	Transactions    []Transaction     `json:"-"`
}
