/*
Package catalog holds the static table of purchasable items.

PURPOSE:
  Every item a user can buy with YN: its price, its category and the
  entitlement Effect it grants. The catalog is read-only once built and is
  safe to share between goroutines.

DEFAULT ITEMS:
  id                price  category  effect
  premium_account   500    premium   grant_premium
  verification      300    premium   grant_verification(red)
  visibility_boost  150    bonus     grant_boost(24h)
  custom_theme      200    premium   set_custom_theme(custom)
  super_like_pack   100    bonus     grant_super_likes(50)
  premium_emoji      75    bonus     enable_premium_emoji

OVERRIDES:
  A deployment may replace the defaults with a JSON file (see parse.go).
  Parsed catalogs go through the same validation as the defaults.

SEE ALSO:
  - ledger/effect.go: How each effect changes an Account
  - shop/: Purchase processor that consults the catalog
*/
package catalog

import (
	"fmt"
	"time"

	"github.com/ynaut/reward-ledger/ledger"
)

// Category groups items in the storefront.
type Category string

const (
	CategoryPremium Category = "premium"
	CategoryBonus   Category = "bonus"
)

func (c Category) Valid() bool {
	return c == CategoryPremium || c == CategoryBonus
}

// Item is one immutable catalog entry.
type Item struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       ledger.Amount `json:"price"`
	Category    Category      `json:"category"`
	Effect      ledger.Effect `json:"effect"`
}

// Validate checks an item in isolation.
func (it Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("catalog item: id is required")
	}
	if !it.Price.IsPositive() || !it.Price.IsIntegral() {
		return fmt.Errorf("catalog item %s: price %s must be a positive integer", it.ID, it.Price)
	}
	if !it.Category.Valid() {
		return fmt.Errorf("catalog item %s: unknown category %q", it.ID, it.Category)
	}
	if err := it.Effect.Validate(); err != nil {
		return fmt.Errorf("catalog item %s: %w", it.ID, err)
	}
	return nil
}

// Catalog is an ordered, read-only set of items.
type Catalog struct {
	items map[string]Item
	order []string
}

// New validates items and builds a catalog. Ids must be unique.
func New(items ...Item) (*Catalog, error) {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("catalog item %s: duplicate id", it.ID)
		}
		c.items[it.ID] = it
		c.order = append(c.order, it.ID)
	}
	return c, nil
}

// Lookup returns the item or an UnknownItemError.
func (c *Catalog) Lookup(id string) (Item, error) {
	it, ok := c.items[id]
	if !ok {
		return Item{}, &ledger.UnknownItemError{ItemID: id}
	}
	return it, nil
}

// Items returns all items in declaration order.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// ByCategory returns the items of one category in declaration order.
func (c *Catalog) ByCategory(cat Category) []Item {
	var out []Item
	for _, id := range c.order {
		if it := c.items[id]; it.Category == cat {
			out = append(out, it)
		}
	}
	return out
}

// BoostDuration is how long one visibility boost lasts.
const BoostDuration = 24 * time.Hour

// DefaultItems is the stock storefront.
func DefaultItems() []Item {
	return []Item{
		{
			ID:          "premium_account",
			Title:       "Premium Account",
			Description: "Blue verification badge and the full theme palette",
			Price:       ledger.YN(500),
			Category:    CategoryPremium,
			Effect:      ledger.GrantPremium(),
		},
		{
			ID:          "verification",
			Title:       "Verification",
			Description: "Red verification badge",
			Price:       ledger.YN(300),
			Category:    CategoryPremium,
			Effect:      ledger.GrantVerification(ledger.VerificationRed),
		},
		{
			ID:          "visibility_boost",
			Title:       "Visibility Boost",
			Description: "Your posts are promoted for 24 hours",
			Price:       ledger.YN(150),
			Category:    CategoryBonus,
			Effect:      ledger.GrantBoost(BoostDuration),
		},
		{
			ID:          "custom_theme",
			Title:       "Custom Theme",
			Description: "Unlock a custom profile theme",
			Price:       ledger.YN(200),
			Category:    CategoryPremium,
			Effect:      ledger.SetCustomTheme(ledger.ThemeCustom),
		},
		{
			ID:          "super_like_pack",
			Title:       "Super Likes x50",
			Description: "50 super-likes",
			Price:       ledger.YN(100),
			Category:    CategoryBonus,
			Effect:      ledger.GrantSuperLikes(50),
		},
		{
			ID:          "premium_emoji",
			Title:       "Premium Emoji",
			Description: "Exclusive emoji set",
			Price:       ledger.YN(75),
			Category:    CategoryBonus,
			Effect:      ledger.EnablePremiumEmoji(),
		},
	}
}

// Default returns the stock catalog.
func Default() *Catalog {
	c, err := New(DefaultItems()...)
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid default items: %v", err))
	}
	return c
}
