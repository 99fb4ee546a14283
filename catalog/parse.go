package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ynaut/reward-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FileJSON is the on-disk shape of a catalog override:
//
//	{
//	  "items": [
//	    {"id": "premium_account", "title": "Premium", "price": 500,
//	     "category": "premium", "effect": {"kind": "grant_premium"}},
//	    {"id": "visibility_boost", "title": "Boost", "price": 150,
//	     "category": "bonus", "effect": {"kind": "grant_boost", "duration_hours": 24}}
//	  ]
//	}
type FileJSON struct {
	Items []ItemJSON `json:"items"`
}

// ItemJSON is one item in a catalog file.
type ItemJSON struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Price       ledger.Amount `json:"price"`
	Category    string        `json:"category"`
	Effect      EffectJSON    `json:"effect"`
}

// EffectJSON spells durations in hours rather than nanoseconds.
type EffectJSON struct {
	Kind          string `json:"kind"`
	Color         string `json:"color,omitempty"`
	Count         int    `json:"count,omitempty"`
	Theme         string `json:"theme,omitempty"`
	DurationHours int    `json:"duration_hours,omitempty"`
}

func (e EffectJSON) toEffect() ledger.Effect {
	return ledger.Effect{
		Kind:     ledger.EffectKind(e.Kind),
		Color:    ledger.VerificationColor(e.Color),
		Count:    e.Count,
		Theme:    ledger.Theme(e.Theme),
		Duration: time.Duration(e.DurationHours) * time.Hour,
	}
}

// =============================================================================
// PARSING
// =============================================================================

// Parse decodes and validates a catalog file. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	var f FileJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("catalog has no items")
	}

	items := make([]Item, 0, len(f.Items))
	for _, ij := range f.Items {
		items = append(items, Item{
			ID:          ij.ID,
			Title:       ij.Title,
			Description: ij.Description,
			Price:       ij.Price,
			Category:    Category(ij.Category),
			Effect:      ij.Effect.toEffect(),
		})
	}
	return New(items...)
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}
