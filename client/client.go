// Package client is a Go client for the reward ledger HTTP API. Every
// successful mutating call reconciles the attached Cache from the Account
// in the server's response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ynaut/reward-ledger/api"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/rewards"
	"github.com/ynaut/reward-ledger/shop"
)

// ErrNoSession is returned when a call needs a session and the cache has none.
var ErrNoSession = errors.New("no session; log in first")

// APIError is a non-2xx response. It unwraps to the ledger sentinel for its
// code when there is one, so errors.Is(err, ledger.ErrInsufficientFunds)
// works on the client side too.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ledger.ErrorForCode(e.Code) }

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to one server and keeps one Cache in sync.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *Cache
}

// New creates a client. A nil cache is replaced by an in-memory one.
func New(baseURL string, cache *Cache, opts ...Option) *Client {
	if cache == nil {
		cache = &Cache{now: time.Now}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		cache:   cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the attached cache.
func (c *Client) Cache() *Cache { return c.cache }

// =============================================================================
// SESSION
// =============================================================================

// Register creates a user and starts a session.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (api.AuthResponse, error) {
	var out api.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", false, req, &out, nil); err != nil {
		return out, err
	}
	return out, c.cache.Begin(out.Token, out.Account)
}

// Login starts a session by username or email.
func (c *Client) Login(ctx context.Context, login, password string) (api.AuthResponse, error) {
	var out api.AuthResponse
	req := api.LoginRequest{Login: login, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", false, req, &out, nil); err != nil {
		return out, err
	}
	return out, c.cache.Begin(out.Token, out.Account)
}

// Logout revokes the session and clears the cache. A session the server
// already forgot still clears locally.
func (c *Client) Logout(ctx context.Context) error {
	if c.cache.Token() == "" {
		return c.cache.Clear()
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", true, nil, nil, nil)
	if err != nil && !IsUnauthorized(err) {
		return err
	}
	return c.cache.Clear()
}

// Resume validates a cached session against the server. A rejected token
// discards the cache.
func (c *Client) Resume(ctx context.Context) (api.MeResponse, error) {
	if c.cache.Token() == "" {
		return api.MeResponse{}, ErrNoSession
	}
	return c.Me(ctx)
}

// Me fetches the profile and Account and refreshes the cache.
func (c *Client) Me(ctx context.Context) (api.MeResponse, error) {
	var out api.MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", true, nil, &out, nil); err != nil {
		return out, err
	}
	return out, c.cache.Reconcile(ledger.Result{Success: true, NewBalance: out.Account.Balance, Account: out.Account})
}

// Transactions returns the caller's journal, oldest first.
func (c *Client) Transactions(ctx context.Context) ([]ledger.Transaction, error) {
	var out api.TransactionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/me/transactions", true, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// Purchases returns the caller's purchase debits, oldest first.
func (c *Client) Purchases(ctx context.Context) ([]ledger.Transaction, error) {
	var out api.PurchasesResponse
	if err := c.do(ctx, http.MethodGet, "/api/me/purchases", true, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Purchases, nil
}

// Catalog lists purchasable items, all of them when cat is empty. No
// session needed.
func (c *Client) Catalog(ctx context.Context, cat catalog.Category) ([]catalog.Item, error) {
	path := "/api/catalog"
	if cat != "" {
		path += "?" + url.Values{"category": []string{string(cat)}}.Encode()
	}
	var out api.CatalogResponse
	if err := c.do(ctx, http.MethodGet, path, false, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// =============================================================================
// ENGAGEMENT
// =============================================================================

func (c *Client) ToggleLike(ctx context.Context, target string, super bool) (rewards.LikeResult, error) {
	var out rewards.LikeResult
	req := api.ToggleLikeRequest{TargetID: target, Super: super}
	if err := c.do(ctx, http.MethodPost, "/api/likes", true, req, &out, nil); err != nil {
		return out, err
	}
	return out, c.cache.Reconcile(out.Result)
}

func (c *Client) CreatePost(ctx context.Context, req api.CreatePostRequest) (rewards.Created, error) {
	return c.create(ctx, "/api/posts", req)
}

func (c *Client) CreateComment(ctx context.Context, postID, body string) (rewards.Created, error) {
	return c.create(ctx, "/api/comments", api.CreateCommentRequest{PostID: postID, Body: body})
}

func (c *Client) CreateStory(ctx context.Context, req api.CreateStoryRequest) (rewards.Created, error) {
	return c.create(ctx, "/api/stories", req)
}

func (c *Client) CreateChannel(ctx context.Context, req api.CreateChannelRequest) (rewards.Created, error) {
	return c.create(ctx, "/api/channels", req)
}

// ToggleSubscription joins or leaves a channel. It moves no YN, so the
// cache is left alone.
func (c *Client) ToggleSubscription(ctx context.Context, channelID string) (rewards.SubscriptionResult, error) {
	var out rewards.SubscriptionResult
	path := "/api/channels/" + url.PathEscape(channelID) + "/subscription"
	err := c.do(ctx, http.MethodPost, path, true, nil, &out, nil)
	return out, err
}

func (c *Client) ViewStory(ctx context.Context, storyID string) (rewards.StoryViewResult, error) {
	var out rewards.StoryViewResult
	path := "/api/stories/" + url.PathEscape(storyID) + "/views"
	err := c.do(ctx, http.MethodPost, path, true, nil, &out, nil)
	return out, err
}

func (c *Client) create(ctx context.Context, path string, req any) (rewards.Created, error) {
	var out rewards.Created
	if err := c.do(ctx, http.MethodPost, path, true, req, &out, nil); err != nil {
		return out, err
	}
	return out, c.cache.Reconcile(out.Result)
}

// =============================================================================
// PURCHASES
// =============================================================================

// Purchase buys an item at the price the caller displayed. An empty
// idempotencyKey sends none.
func (c *Client) Purchase(ctx context.Context, itemID string, declared ledger.Amount, idempotencyKey string) (shop.Receipt, error) {
	var out shop.Receipt
	req := api.PurchaseRequest{ItemID: itemID, DeclaredPrice: &declared}

	var hdr http.Header
	if idempotencyKey != "" {
		hdr = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	if err := c.do(ctx, http.MethodPost, "/api/purchases", true, req, &out, hdr); err != nil {
		return out, err
	}
	return out, c.cache.Reconcile(out.Result)
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out any, hdr http.Header) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header[k] = v
	}

	if authed {
		token := c.cache.Token()
		if token == "" {
			return ErrNoSession
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		if authed && resp.StatusCode == http.StatusUnauthorized {
			if err := c.cache.Clear(); err != nil {
				return errors.Join(apiErr, err)
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	var body api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = body.Error
	apiErr.Message = body.Message
	apiErr.Details = body.Details
	return apiErr
}
