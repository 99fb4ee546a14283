/*
ledger.go - The reward ledger Core

PURPOSE:
  The Core is the only writer of Account state. Every balance or
  entitlement change (credit, debit, grant, super-like consumption) and
  every like-relation change goes through it.

CRITICAL INVARIANTS:
  1. SERIALIZED PER ACCOUNT: operations on one user run one at a time.
     Different users never share a lock.
  2. ALL-OR-NOTHING: an operation either commits every row it touched
     (Account, journal, relation, staged content) or none of them.
  3. NON-NEGATIVE: balance and super_likes_count never drop below zero.
  4. DURABLE BEFORE SUCCESS: a Result is only returned after commit.

COMPOUND OPERATIONS:
  Processors need several steps to succeed or fail together ("consume a
  super-like, then credit, then record the like"). Transact runs a callback
  against a working Tx under the account lock and commits at the end:

    res, err := core.Transact(ctx, user, func(tx *ledger.Tx) error {
        if err := tx.Debit(price, ledger.ReasonPurchase, item.ID); err != nil {
            return err
        }
        _, err := tx.Grant(item.Effect, ledger.ReasonPurchase, item.ID)
        return err
    })

  Any error returned by the callback rolls everything back.

SEE ALSO:
  - store.go: Persistence interface
  - effect.go: Entitlement handler
  - rewards/, shop/: Processors built on Transact
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Observer is notified after each commit or rejection.
type Observer interface {
	Committed(res Result)
	Rejected(err error)
}

// Option configures a Core.
type Option func(*Core)

// WithClock overrides time.Now, for tests and deterministic boosts.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// WithObserver attaches a metrics or audit observer.
func WithObserver(o Observer) Option {
	return func(c *Core) { c.observer = o }
}

// =============================================================================
// CORE
// =============================================================================

// Core serializes and commits all Account mutations.
type Core struct {
	store    TxStore
	locks    *accountLocks
	now      func() time.Time
	observer Observer
}

// NewCore creates a Core over the given store.
func NewCore(store TxStore, opts ...Option) *Core {
	c := &Core{
		store: store,
		locks: newAccountLocks(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the underlying store for read paths.
func (c *Core) Store() TxStore { return c.store }

// Open creates the registration-time Account for id.
func (c *Core) Open(ctx context.Context, id UserID) (Account, error) {
	if id == "" {
		return Account{}, ErrNotAuthenticated
	}
	unlock := c.locks.lock(id)
	defer unlock()

	a := NewAccount(id)
	a.UpdatedAt = c.now()
	if err := c.store.CreateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Opening builds a registration-time Account that already holds an
// opening credit, with the journal entry recording it. Stores that create a
// user and its Account in one transaction persist both together. A zero
// credit yields a bare Account and no entries.
func Opening(id UserID, credit Amount, reason Reason, at time.Time) (Account, []Transaction, error) {
	tx := &Tx{account: NewAccount(id), now: at}
	if !credit.IsZero() {
		if err := tx.Credit(credit, reason, ""); err != nil {
			return Account{}, nil, err
		}
	}
	if err := tx.account.checkInvariants(); err != nil {
		return Account{}, nil, err
	}
	tx.account.UpdatedAt = at
	return tx.account, tx.journal, nil
}

// Account returns the current committed snapshot.
func (c *Core) Account(ctx context.Context, id UserID) (Account, error) {
	if id == "" {
		return Account{}, ErrNotAuthenticated
	}
	return c.store.GetAccount(ctx, id)
}

// Transactions returns the user's journal, oldest first.
func (c *Core) Transactions(ctx context.Context, id UserID) ([]Transaction, error) {
	if id == "" {
		return nil, ErrNotAuthenticated
	}
	return c.store.Transactions(ctx, id)
}

// Credit adds a positive integer amount to the balance.
func (c *Core) Credit(ctx context.Context, id UserID, amount Amount, reason Reason, ref string) (Result, error) {
	return c.Transact(ctx, id, func(tx *Tx) error {
		return tx.Credit(amount, reason, ref)
	})
}

// Debit removes amount if the balance covers it, else InsufficientFunds.
func (c *Core) Debit(ctx context.Context, id UserID, amount Amount, reason Reason, ref string) (Result, error) {
	return c.Transact(ctx, id, func(tx *Tx) error {
		return tx.Debit(amount, reason, ref)
	})
}

// GrantEntitlement applies an effect outside of a purchase. A grant that
// changes nothing succeeds with AlreadyEntitled set.
func (c *Core) GrantEntitlement(ctx context.Context, id UserID, e Effect) (Result, error) {
	return c.Transact(ctx, id, func(tx *Tx) error {
		_, err := tx.Grant(e, ReasonAdjustment, "")
		return err
	})
}

// ConsumeSuperLike spends one super-like or fails with NoSuperLikes.
func (c *Core) ConsumeSuperLike(ctx context.Context, id UserID) (Result, error) {
	return c.Transact(ctx, id, func(tx *Tx) error {
		return tx.ConsumeSuperLike("")
	})
}

// Transact runs fn inside id's critical section and one storage
// transaction. fn sees a working copy of the Account; nothing is written
// unless fn returns nil and the commit succeeds.
func (c *Core) Transact(ctx context.Context, id UserID, fn func(*Tx) error) (res Result, err error) {
	if id == "" {
		return Result{}, ErrNotAuthenticated
	}

	unlock := c.locks.lock(id)
	defer unlock()

	err = c.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccount(ctx, id)
		if err != nil {
			return err
		}

		tx := &Tx{ctx: ctx, store: s, account: acct, now: c.now()}
		if err := tx.run(fn); err != nil {
			return err
		}
		if err := tx.commit(); err != nil {
			return err
		}
		res = tx.result()
		return nil
	})
	if err != nil {
		if c.observer != nil {
			c.observer.Rejected(err)
		}
		return Result{}, err
	}

	if c.observer != nil {
		c.observer.Committed(res)
	}
	return res, nil
}

// =============================================================================
// TX - Working transaction handed to Transact callbacks
// =============================================================================

// Tx accumulates changes to one Account. It is only valid inside the
// Transact callback that received it.
type Tx struct {
	ctx     context.Context
	store   Store
	account Account
	now     time.Time

	journal         []Transaction
	delta           *EntitlementDelta
	alreadyEntitled bool
	idempotencyKey  string
	dirty           bool
}

func (tx *Tx) Context() context.Context { return tx.ctx }
func (tx *Tx) Account() Account         { return tx.account }
func (tx *Tx) Now() time.Time           { return tx.now }

// Store returns the transactional store. Writes made through it commit or
// roll back with the Account. Processors type-assert it for extra
// capabilities such as content creation.
func (tx *Tx) Store() Store { return tx.store }

// Credit adds amount to the working balance.
func (tx *Tx) Credit(amount Amount, reason Reason, ref string) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	tx.account.Balance = tx.account.Balance.Add(amount)
	tx.record(TxCredit, amount, reason, ref, nil)
	return nil
}

// Debit removes amount from the working balance.
func (tx *Tx) Debit(amount Amount, reason Reason, ref string) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if tx.account.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			UserID:    tx.account.UserID,
			Available: tx.account.Balance,
			Requested: amount,
		}
	}
	tx.account.Balance = tx.account.Balance.Sub(amount)
	tx.record(TxDebit, amount.Neg(), reason, ref, nil)
	return nil
}

// Grant applies e to the working Account. An empty delta means the Account
// already held the entitlement.
func (tx *Tx) Grant(e Effect, reason Reason, ref string) (EntitlementDelta, error) {
	next := tx.account
	d, err := e.apply(&next, tx.now)
	if err != nil {
		return EntitlementDelta{}, err
	}
	if d.Empty() {
		tx.alreadyEntitled = true
		return d, nil
	}

	tx.account = next
	if tx.delta == nil {
		tx.delta = &EntitlementDelta{}
	}
	tx.delta.merge(d)
	tx.record(TxEntitlement, YN(0), reason, ref, &e)
	return d, nil
}

// ConsumeSuperLike spends one super-like from the working Account.
func (tx *Tx) ConsumeSuperLike(ref string) error {
	if tx.account.SuperLikesCount <= 0 {
		return ErrNoSuperLikes
	}
	tx.account.SuperLikesCount--
	tx.record(TxConsume, YN(0), ReasonSuperLike, ref, nil)
	return nil
}

// Liked reports whether the user currently likes target.
func (tx *Tx) Liked(target TargetID) (bool, error) {
	return tx.store.HasLike(tx.ctx, tx.account.UserID, target)
}

// Like inserts (user, target) into the relation.
func (tx *Tx) Like(target TargetID, super bool) error {
	return tx.store.AddLike(tx.ctx, Like{
		UserID:    tx.account.UserID,
		TargetID:  target,
		Super:     super,
		CreatedAt: tx.now,
	})
}

// Unlike removes (user, target) from the relation.
func (tx *Tx) Unlike(target TargetID) error {
	return tx.store.RemoveLike(tx.ctx, tx.account.UserID, target)
}

// Claim reserves an idempotency key for this transaction. It is stored on
// the next journal entry recorded.
func (tx *Tx) Claim(key string) error {
	if key == "" {
		return nil
	}
	used, err := tx.store.Exists(tx.ctx, key)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: idempotency key %q", ErrDuplicateRequest, key)
	}
	tx.idempotencyKey = key
	return nil
}

func (tx *Tx) record(typ TxType, delta Amount, reason Reason, ref string, e *Effect) {
	tx.journal = append(tx.journal, Transaction{
		ID:             TransactionID(uuid.NewString()),
		UserID:         tx.account.UserID,
		Type:           typ,
		Delta:          delta,
		BalanceAfter:   tx.account.Balance,
		Reason:         reason,
		ReferenceID:    ref,
		Effect:         e,
		IdempotencyKey: tx.idempotencyKey,
		CreatedAt:      tx.now,
	})
	tx.idempotencyKey = ""
	tx.dirty = true
}

func (tx *Tx) run(fn func(*Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransactionFailed, r)
		}
	}()
	return fn(tx)
}

func (tx *Tx) commit() error {
	if !tx.dirty {
		return nil
	}
	if err := tx.account.checkInvariants(); err != nil {
		return err
	}
	tx.account.UpdatedAt = tx.now
	if err := tx.store.SaveAccount(tx.ctx, tx.account); err != nil {
		return err
	}
	for _, entry := range tx.journal {
		if err := tx.store.Append(tx.ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) result() Result {
	return Result{
		Success:         true,
		NewBalance:      tx.account.Balance,
		Delta:           tx.delta,
		AlreadyEntitled: tx.alreadyEntitled,
		Account:         tx.account,
		Transactions:    tx.journal,
	}
}

func validAmount(a Amount) error {
	if !a.IsPositive() || !a.IsIntegral() || a.GreaterThan(MaxAmount) {
		return &InvalidAmountError{Amount: a}
	}
	return nil
}
