/*
store.go - Persistence interface for accounts, likes and the journal

PURPOSE:
  Defines the boundary between the ledger Core and the database. The Core
  owns all locking and business rules; a Store only reads and writes rows.

KEY INTERFACES:
  Store:   Account rows, the like relation, the append-only journal
  TxStore: Store plus WithTx for atomic multi-row commits

JOURNAL CONTRACT:
  Append is the only journal write. Entries are never updated or deleted.
  An idempotency key, when present, is unique across the journal.

ATOMICITY:
  Every Core operation runs inside exactly one WithTx call. If the callback
  returns an error nothing it wrote is visible afterwards.

IMPLEMENTATIONS:
  - store/sqlite: SQLite, used by the server
  - ledger/store: In-memory, used by the ledger, shop and metrics tests

SEE ALSO:
  - ledger.go: The Core built on TxStore
*/
package ledger

import "context"

// Store persists Account state, the like relation and the journal.
type Store interface {
	// CreateAccount inserts a fresh account. ErrAccountExists if present.
	CreateAccount(ctx context.Context, a Account) error

	// GetAccount returns ErrAccountNotFound for unknown users.
	GetAccount(ctx context.Context, id UserID) (Account, error)

	// SaveAccount overwrites an existing account row.
	SaveAccount(ctx context.Context, a Account) error

	HasLike(ctx context.Context, user UserID, target TargetID) (bool, error)
	AddLike(ctx context.Context, like Like) error
	RemoveLike(ctx context.Context, user UserID, target TargetID) error

	// CountLikes returns how many users currently like target.
	CountLikes(ctx context.Context, target TargetID) (int, error)

	// Append persists a journal entry.
	Append(ctx context.Context, tx Transaction) error

	// Transactions returns a user's journal, oldest first.
	Transactions(ctx context.Context, user UserID) ([]Transaction, error)

	// Exists checks if an idempotency key was already used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
