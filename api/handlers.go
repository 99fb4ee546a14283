/*
handlers.go - HTTP API handlers for the reward ledger

PURPOSE:
  Exposes the Ledger Core and its processors over REST. Handles HTTP
  request/response, JSON serialization and validation, and delegates to
  rewards.Processor, shop.Processor and auth.Provider. No handler touches
  Account state directly.

ENDPOINTS:
  Auth:
    POST   /api/auth/register      Create user + zero-balance Account
    POST   /api/auth/login         Open a session
    POST   /api/auth/logout        Revoke the session            (auth)

  Account:
    GET    /api/me                 Account snapshot + themes      (auth)
    GET    /api/me/transactions    Journal, oldest first          (auth)
    GET    /api/me/purchases       Purchase debits only           (auth)

  Catalog:
    GET    /api/catalog            Items and prices (?category=premium|bonus)

  Engagement:                                                     (auth)
    POST   /api/likes              Toggle like (optionally super)
    POST   /api/comments           Comment on a post     +10
    POST   /api/posts              Create a post         +20
    POST   /api/stories            Create a story        +15
    POST   /api/channels           Create a channel      +50
    POST   /api/channels/{id}/subscription   Toggle membership
    POST   /api/stories/{id}/views           Count a view once

  Purchases:                                                      (auth)
    POST   /api/purchases          Buy a catalog item (Idempotency-Key)

REQUEST FLOW:
  1. Authenticator middleware resolves the bearer token to a user id
  2. Decode JSON (unknown fields rejected), validate struct tags
  3. Call the processor
  4. Serialize the committed result, or map the error

ERROR HANDLING:
  Errors are returned as JSON {error, code, details} with:
  - 400: Validation errors, invalid content or amounts
  - 401: Missing, invalid or expired session; bad credentials
  - 404: Unknown item, post, channel, story or account
  - 409: Insufficient funds, no super-likes, price mismatch,
         already entitled, duplicate request, user exists
  - 500: Internal errors (logged, not echoed)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status and code mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/rewards"
	"github.com/ynaut/reward-ledger/shop"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AuthService is the auth surface the handlers need.
type AuthService interface {
	auth.Provider
	User(ctx context.Context, id ledger.UserID) (auth.User, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handler dependencies.
type Deps struct {
	Core    *ledger.Core
	Rewards *rewards.Processor
	Shop    *shop.Processor
	Auth    AuthService
	DB      Pinger
	Logger  *slog.Logger
	Now     func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	core     *ledger.Core
	rewards  *rewards.Processor
	shop     *shop.Processor
	auth     AuthService
	db       Pinger
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
}

// NewHandler creates a handler. Logger and Now default to slog.Default and
// time.Now.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		core:     d.Core,
		rewards:  d.Rewards,
		shop:     d.Shop,
		auth:     d.Auth,
		db:       d.DB,
		logger:   d.Logger,
		now:      d.Now,
		validate: v,
	}
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Register creates a user and returns a session.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.bind(w, r, &req) {
		return
	}

	g, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", g.User.ID)
	writeJSON(w, http.StatusCreated, toAuthResponse(g))
}

// Login checks credentials and returns a session.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.bind(w, r, &req) {
		return
	}

	g, err := h.auth.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(g))
}

// Logout revokes the caller's session.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), sessionToken(r.Context())); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toAuthResponse(g auth.Grant) AuthResponse {
	return AuthResponse{
		Token:     g.Token,
		ExpiresAt: g.ExpiresAt,
		User:      toUserDTO(g.User),
		Account:   g.Account,
	}
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// Me returns the caller's profile and Account.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := UserID(ctx)

	u, err := h.auth.User(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			err = fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, id)
		}
		h.writeDomainError(w, r, err)
		return
	}

	acct, err := h.core.Account(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		User:            toUserDTO(u),
		Account:         acct,
		AvailableThemes: ledger.AvailableThemes(acct),
		BoostActive:     acct.BoostActive(h.now()),
	})
}

// Transactions returns the caller's journal.
// GET /api/me/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.core.Transactions(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: txs})
}

// Purchases returns the caller's purchase debits.
// GET /api/me/purchases
func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	txs, err := h.shop.Purchases(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, PurchasesResponse{Purchases: txs})
}

// Catalog lists purchasable items, optionally one category.
// GET /api/catalog
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	cat := catalog.Category(r.URL.Query().Get("category"))
	if cat == "" {
		writeJSON(w, http.StatusOK, CatalogResponse{Items: h.shop.Catalog().Items()})
		return
	}
	if !cat.Valid() {
		h.writeDomainError(w, r, fmt.Errorf("%w: unknown category %q", errInvalidRequest, cat))
		return
	}
	items := h.shop.Catalog().ByCategory(cat)
	if items == nil {
		items = []catalog.Item{}
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Items: items})
}

// =============================================================================
// ENGAGEMENT ENDPOINTS
// =============================================================================

// ToggleLike likes or unlikes a target.
// POST /api/likes
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	var req ToggleLikeRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.rewards.ToggleLike(r.Context(), UserID(r.Context()), ledger.TargetID(req.TargetID), req.Super)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreatePost creates a post.
// POST /api/posts
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.rewards.CreatePost(r.Context(), UserID(r.Context()), rewards.PostInput{
		Content:   req.Content,
		ChannelID: req.ChannelID,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	h.writeCreated(w, r, res, err)
}

// CreateComment comments on a post.
// POST /api/comments
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommentRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.rewards.CreateComment(r.Context(), UserID(r.Context()), req.PostID, req.Body)
	h.writeCreated(w, r, res, err)
}

// CreateStory creates an expiring story.
// POST /api/stories
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req CreateStoryRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.rewards.CreateStory(r.Context(), UserID(r.Context()), rewards.StoryInput{
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	h.writeCreated(w, r, res, err)
}

// CreateChannel creates a channel owned by the caller.
// POST /api/channels
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.rewards.CreateChannel(r.Context(), UserID(r.Context()), rewards.ChannelInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	h.writeCreated(w, r, res, err)
}

// ToggleSubscription subscribes to or leaves a channel.
// POST /api/channels/{id}/subscription
func (h *Handler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	res, err := h.rewards.ToggleSubscription(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ViewStory records the caller's view of a story.
// POST /api/stories/{id}/views
func (h *Handler) ViewStory(w http.ResponseWriter, r *http.Request) {
	res, err := h.rewards.ViewStory(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeCreated(w http.ResponseWriter, r *http.Request, res rewards.Created, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// =============================================================================
// PURCHASE ENDPOINTS
// =============================================================================

// Purchase buys a catalog item.
// POST /api/purchases
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	rcpt, err := h.shop.Purchase(ctx, shop.Order{
		UserID:         UserID(ctx),
		ItemID:         req.ItemID,
		DeclaredPrice:  *req.DeclaredPrice,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "purchase committed",
		"user_id", UserID(ctx),
		"item_id", rcpt.Item.ID,
		"price", rcpt.Item.Price.Int64(),
		"new_balance", rcpt.NewBalance.Int64(),
	)
	writeJSON(w, http.StatusOK, rcpt)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and database reachability.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// bind decodes and validates a JSON body, writing a 400 on failure.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("%w: %w", errInvalidRequest, err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
