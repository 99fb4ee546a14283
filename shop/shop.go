/*
Package shop is the Purchase Processor.

PURPOSE:
  Validates a purchase order against the catalog, then debits the price
  and applies the item's entitlement as one ledger transaction.

ORDER OF CHECKS:
  1. Item exists                     -> else UnknownItem
  2. Declared price == catalog price -> else PriceMismatch
  3. Idempotency key unused          -> else DuplicateRequest
  4. Balance covers price            -> else InsufficientFunds
  5. Effect changes the Account      -> else AlreadyEntitled

  Steps 1-2 touch no state. Steps 3-5 run inside Transact, so a failure
  at any of them leaves the balance untouched.

DECLINING NO-OP PURCHASES:
  Buying an entitlement the Account already holds (premium twice,
  verification on a blue account) would take YN for nothing. The purchase
  is declined with AlreadyEntitled and the debit never persists.

SEE ALSO:
  - catalog/: Items and prices
  - ledger/ledger.go: Transact
*/
package shop

import (
	"context"

	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
)

// Order is a purchase request.
type Order struct {
	UserID         ledger.UserID
	ItemID         string
	DeclaredPrice  ledger.Amount
	IdempotencyKey string
}

// Receipt is a committed purchase.
type Receipt struct {
	ledger.Result
	Item catalog.Item `json:"item"`
}

// Processor executes purchases.
type Processor struct {
	core    *ledger.Core
	catalog *catalog.Catalog
}

// NewProcessor creates a processor over the given catalog.
func NewProcessor(core *ledger.Core, c *catalog.Catalog) *Processor {
	return &Processor{core: core, catalog: c}
}

// Catalog returns the catalog purchases are checked against.
func (p *Processor) Catalog() *catalog.Catalog { return p.catalog }

// Purchase validates and executes an order.
func (p *Processor) Purchase(ctx context.Context, o Order) (Receipt, error) {
	item, err := p.catalog.Lookup(o.ItemID)
	if err != nil {
		return Receipt{}, err
	}
	if !o.DeclaredPrice.Equal(item.Price) {
		return Receipt{}, &ledger.PriceMismatchError{
			ItemID:   item.ID,
			Declared: o.DeclaredPrice,
			Actual:   item.Price,
		}
	}

	res, err := p.core.Transact(ctx, o.UserID, func(tx *ledger.Tx) error {
		if err := tx.Claim(o.IdempotencyKey); err != nil {
			return err
		}
		if err := tx.Debit(item.Price, ledger.ReasonPurchase, item.ID); err != nil {
			return err
		}
		d, err := tx.Grant(item.Effect, ledger.ReasonPurchase, item.ID)
		if err != nil {
			return err
		}
		if d.Empty() {
			return ledger.ErrAlreadyEntitled
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{Result: res, Item: item}, nil
}

// Purchases returns the user's purchase history from the journal.
func (p *Processor) Purchases(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	txs, err := p.core.Transactions(ctx, user)
	if err != nil {
		return nil, err
	}
	var out []ledger.Transaction
	for _, tx := range txs {
		if tx.Type == ledger.TxDebit && tx.Reason == ledger.ReasonPurchase {
			out = append(out, tx)
		}
	}
	return out, nil
}
