/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Creates a throwaway demo user whose Account starts in a known state,
	so the reward flows can be tried without earning YN by hand. Each load
	registers a fresh user; nothing existing is reset or modified.

AVAILABLE SCENARIOS:

	fresh:           balance 0, nothing owned
	premium-ready:   balance 500, exactly the premium price
	no-super-likes:  balance 50, zero super-likes
	stale-price:     balance 100, for the premium emoji price check
	shopper:         balance 1000 and one super-like pack already bought

HOW SCENARIOS WORK:
 1. Register a demo user through the auth provider
 2. Credit the starting balance as an adjustment
 3. Optionally run purchases through the shop
 4. Return a session for the new user

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "premium-ready"}

NOTE:

	Routes are mounted only outside production.

SEE ALSO:
  - server.go: RouterConfig.Scenarios
  - shop/shop.go: Purchase
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/shop"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required,max=64"`
}

type scenario struct {
	ScenarioDTO
	balance   int64
	purchases []string
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fresh",
			Name:        "Fresh Account",
			Description: "Zero balance; like something to earn the first 5 YN",
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "premium-ready",
			Name:        "Premium Ready",
			Description: "Exactly 500 YN, enough for premium_account",
		},
		balance: 500,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "no-super-likes",
			Name:        "No Super-Likes",
			Description: "50 YN and no super-likes; a super-like is refused",
		},
		balance: 50,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "stale-price",
			Name:        "Stale Price",
			Description: "100 YN; buy premium_emoji declaring 100 to see the price check",
		},
		balance: 100,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shopper",
			Name:        "Shopper",
			Description: "1000 YN left after buying a super-like pack",
		},
		balance:   1100,
		purchases: []string{"super_like_pack"},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario creates a demo user in the requested starting state.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.bind(w, r, &req) {
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_scenario", fmt.Sprintf("unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	g, err := h.seed(r.Context(), s)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "scenario loaded", "scenario", s.ID, "user_id", g.User.ID)
	writeJSON(w, http.StatusCreated, toAuthResponse(g))
}

// =============================================================================
// LOADER
// =============================================================================

func (h *Handler) seed(ctx context.Context, s scenario) (auth.Grant, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	g, err := h.auth.Register(ctx, auth.RegisterInput{
		Username:    "demo_" + suffix,
		Email:       "demo_" + suffix + "@example.com",
		Password:    uuid.NewString(),
		DisplayName: s.Name,
	})
	if err != nil {
		return auth.Grant{}, fmt.Errorf("failed to register demo user: %w", err)
	}
	id := g.User.ID

	// Registration may already have paid a signup bonus.
	if target := ledger.YN(s.balance); g.Account.Balance.LessThan(target) {
		if _, err := h.core.Credit(ctx, id, target.Sub(g.Account.Balance), ledger.ReasonAdjustment, "scenario:"+s.ID); err != nil {
			return auth.Grant{}, err
		}
	}

	for _, itemID := range s.purchases {
		item, err := h.shop.Catalog().Lookup(itemID)
		if err != nil {
			return auth.Grant{}, err
		}
		if _, err := h.shop.Purchase(ctx, shop.Order{UserID: id, ItemID: item.ID, DeclaredPrice: item.Price}); err != nil {
			return auth.Grant{}, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
	}

	g.Account, err = h.core.Account(ctx, id)
	if err != nil {
		return auth.Grant{}, err
	}
	return g, nil
}
