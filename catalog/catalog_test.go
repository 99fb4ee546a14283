package catalog_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
)

func TestDefault_StockItems(t *testing.T) {
	c := catalog.Default()

	cases := []struct {
		id       string
		price    int64
		category catalog.Category
		kind     ledger.EffectKind
	}{
		{"premium_account", 500, catalog.CategoryPremium, ledger.EffectGrantPremium},
		{"verification", 300, catalog.CategoryPremium, ledger.EffectGrantVerification},
		{"visibility_boost", 150, catalog.CategoryBonus, ledger.EffectGrantBoost},
		{"custom_theme", 200, catalog.CategoryPremium, ledger.EffectSetCustomTheme},
		{"super_like_pack", 100, catalog.CategoryBonus, ledger.EffectGrantSuperLikes},
		{"premium_emoji", 75, catalog.CategoryBonus, ledger.EffectEnablePremiumEmoji},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			it, err := c.Lookup(tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.price, it.Price.Int64())
			assert.Equal(t, tc.category, it.Category)
			assert.Equal(t, tc.kind, it.Effect.Kind)
		})
	}

	assert.Len(t, c.Items(), len(cases))
	assert.Len(t, c.ByCategory(catalog.CategoryPremium), 3)
	assert.Len(t, c.ByCategory(catalog.CategoryBonus), 3)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := catalog.Default().Lookup("golden_unicorn")

	assert.ErrorIs(t, err, ledger.ErrUnknownItem)
	var unk *ledger.UnknownItemError
	require.ErrorAs(t, err, &unk)
	assert.Equal(t, "golden_unicorn", unk.ItemID)
}

func TestNew_RejectsBadItems(t *testing.T) {
	good := catalog.Item{ID: "a", Price: ledger.YN(1), Category: catalog.CategoryBonus, Effect: ledger.EnablePremiumEmoji()}

	cases := map[string]catalog.Item{
		"missing id":     {Price: ledger.YN(1), Category: catalog.CategoryBonus, Effect: ledger.EnablePremiumEmoji()},
		"zero price":     {ID: "b", Price: ledger.YN(0), Category: catalog.CategoryBonus, Effect: ledger.EnablePremiumEmoji()},
		"bad category":   {ID: "c", Price: ledger.YN(1), Category: "misc", Effect: ledger.EnablePremiumEmoji()},
		"invalid effect": {ID: "d", Price: ledger.YN(1), Category: catalog.CategoryBonus, Effect: ledger.GrantSuperLikes(-1)},
		"duplicate id":   good,
	}

	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.New(good, bad)
			assert.Error(t, err)
		})
	}
}

func TestParse_ValidFile(t *testing.T) {
	data := []byte(`{
	  "items": [
	    {"id": "premium_account", "title": "Premium", "price": 450,
	     "category": "premium", "effect": {"kind": "grant_premium"}},
	    {"id": "weekend_boost", "title": "Weekend Boost", "price": 250,
	     "category": "bonus", "effect": {"kind": "grant_boost", "duration_hours": 48}}
	  ]
	}`)

	c, err := catalog.Parse(data)
	require.NoError(t, err)

	it, err := c.Lookup("weekend_boost")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, it.Effect.Duration)
	assert.Equal(t, int64(250), it.Price.Int64())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"items": [`,
		"empty":         `{"items": []}`,
		"unknown field": `{"items": [{"id": "x", "price": 1, "category": "bonus", "effect": {"kind": "enable_premium_emoji"}, "colour": "red"}]}`,
		"fractional":    `{"items": [{"id": "x", "price": 1.5, "category": "bonus", "effect": {"kind": "enable_premium_emoji"}}]}`,
		"bad effect":    `{"items": [{"id": "x", "price": 1, "category": "bonus", "effect": {"kind": "grant_verification", "color": "green"}}]}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	c, err := catalog.Load("")
	require.NoError(t, err)
	assert.Len(t, c.Items(), 6)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items": [{"id": "emoji", "title": "Emoji", "price": 10, "category": "bonus", "effect": {"kind": "enable_premium_emoji"}}]}`), 0o600))

	c, err := catalog.Load(path)
	require.NoError(t, err)
	_, err = c.Lookup("emoji")
	assert.NoError(t, err)
}
