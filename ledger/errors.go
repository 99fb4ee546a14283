/*
errors.go - Centralized error types for the reward ledger

PURPOSE:
  Every failure a ledger operation can report, in one place. Processors
  (rewards, shop, auth) return these directly or wrap them with context;
  the HTTP layer maps them to status codes through Code and the Is* helpers.

ERROR CATEGORIES:
  1. Rejections    - InvalidAmount, InsufficientFunds, NoSuperLikes,
                     UnknownItem, PriceMismatch, DuplicateRequest
  2. Informational - AlreadyEntitled (a grant that changed nothing)
  3. Session       - NotAuthenticated, AccountNotFound, AccountExists
  4. Internal      - TransactionFailed, InvariantViolation, StoreRequired

GUARANTEE:
  Whatever the error, the Account is exactly as it was before the call.

SEE ALSO:
  - ledger.go: Returns these errors
  - api/errors.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for zero, negative or fractional amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoSuperLikes is returned when a super-like is attempted with none left.
	ErrNoSuperLikes = errors.New("no super-likes remaining")

	// ErrUnknownItem is returned for an item id absent from the catalog.
	ErrUnknownItem = errors.New("unknown catalog item")

	// ErrPriceMismatch is returned when a declared price differs from the catalog.
	ErrPriceMismatch = errors.New("price mismatch")

	// ErrAlreadyEntitled marks a grant that changed nothing. Direct grants
	// report it as a flag on Result; purchases decline with it.
	ErrAlreadyEntitled = errors.New("already entitled")

	// ErrNotAuthenticated is returned when no Account is resolved for the call.
	ErrNotAuthenticated = errors.New("not authenticated")

	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// ErrInvalidEffect is returned for an effect the handler cannot apply.
	ErrInvalidEffect = errors.New("invalid entitlement effect")

	// ErrDuplicateRequest is returned when an idempotency key was already used.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrTransactionFailed is returned when a transaction cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInvariantViolation is returned when a commit would break an Account invariant.
	ErrInvariantViolation = errors.New("account invariant violated")

	// ErrStoreRequired is returned when an operation requires a specific store capability.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError names the rejected amount.
type InvalidAmountError struct {
	Amount Amount
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: must be a positive int64", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	UserID    UserID
	Available Amount
	Requested Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is how much more YN the debit needed.
func (e *InsufficientFundsError) Shortfall() Amount {
	return e.Requested.Sub(e.Available)
}

// PriceMismatchError records both sides of a rejected price check.
type PriceMismatchError struct {
	ItemID   string
	Declared Amount
	Actual   Amount
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch for %s: declared %s, catalog %s",
		e.ItemID, e.Declared, e.Actual)
}

func (e *PriceMismatchError) Unwrap() error { return ErrPriceMismatch }

// UnknownItemError names the item id that failed lookup.
type UnknownItemError struct {
	ItemID string
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("unknown catalog item %q", e.ItemID)
}

func (e *UnknownItemError) Unwrap() error { return ErrUnknownItem }

// InvariantError names the rule a pending commit would have broken.
type InvariantError struct {
	UserID UserID
	Rule   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("account %s: %s", e.UserID, e.Rule)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request
// rather than a storage or programming fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNoSuperLikes) ||
		errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrPriceMismatch) ||
		errors.Is(err, ErrAlreadyEntitled) ||
		errors.Is(err, ErrInvalidEffect) ||
		errors.Is(err, ErrDuplicateRequest) ||
		errors.Is(err, ErrAccountExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed) && !errors.Is(err, ErrInvariantViolation)
}

// IsConflict returns true for rejections caused by current Account state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNoSuperLikes) ||
		errors.Is(err, ErrPriceMismatch) ||
		errors.Is(err, ErrAlreadyEntitled) ||
		errors.Is(err, ErrDuplicateRequest) ||
		errors.Is(err, ErrAccountExists)
}

// codes is ordered: the first sentinel matched wins.
var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrNoSuperLikes, "no_super_likes"},
	{ErrUnknownItem, "unknown_item"},
	{ErrPriceMismatch, "price_mismatch"},
	{ErrAlreadyEntitled, "already_entitled"},
	{ErrNotAuthenticated, "not_authenticated"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrAccountExists, "account_exists"},
	{ErrInvalidEffect, "invalid_effect"},
	{ErrDuplicateRequest, "duplicate_request"},
	{ErrInvariantViolation, "invariant_violation"},
	{ErrStoreRequired, "store_required"},
	{ErrTransactionFailed, "transaction_failed"},
}

// Code maps an error to a stable wire code. Unknown errors are "internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of Code: it returns the sentinel for a wire
// code, or nil if the code is not a ledger code.
func ErrorForCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
