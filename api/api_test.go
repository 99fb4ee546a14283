/*
api_test.go - HTTP tests for the reward ledger API

Tests run the full stack (router, auth, processors, SQLite :memory:)
through httptest. Covers:
- Registration, login, logout and bearer-token enforcement
- Like toggles and content rewards over HTTP
- Purchase status codes and error details
- Demo scenarios, health, metrics and the sweeper
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/metrics"
	"github.com/ynaut/reward-ledger/rewards"
	"github.com/ynaut/reward-ledger/shop"
	"github.com/ynaut/reward-ledger/store/sqlite"
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*httptest.Server
	store   *sqlite.Store
	core    *ledger.Core
	auth    *auth.Service
	metrics *metrics.Metrics
	clock   *clock
}

func newTestServer(t *testing.T, scenarios bool) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := &clock{now: fixedNow}
	m := metrics.New()
	core := ledger.NewCore(store, ledger.WithClock(clk.Now), ledger.WithObserver(m))
	authSvc := auth.NewService(store, core, auth.Options{
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
		Now:        clk.Now,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(Deps{
		Core:    core,
		Rewards: rewards.NewProcessor(core, rewards.DefaultSchedule()),
		Shop:    shop.NewProcessor(core, catalog.Default()),
		Auth:    authSvc,
		DB:      store,
		Logger:  logger,
		Now:     clk.Now,
	})
	router := NewRouter(h, RouterConfig{
		Logger:    logger,
		CORS:      cors.Options{AllowedOrigins: []string{"http://localhost:3000"}},
		Metrics:   m,
		Scenarios: scenarios,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store, core: core, auth: authSvc, metrics: m, clock: clk}
}

// do sends a JSON request and returns the status and raw body.
func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (s *testServer) register(t *testing.T, username string) AuthResponse {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret-" + username,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[AuthResponse](t, body)
}

func (s *testServer) fund(t *testing.T, id ledger.UserID, amount int64) {
	t.Helper()
	_, err := s.core.Credit(context.Background(), id, ledger.YN(amount), ledger.ReasonAdjustment, "test")
	require.NoError(t, err)
}

func (s *testServer) balance(t *testing.T, id ledger.UserID) int64 {
	t.Helper()
	a, err := s.core.Account(context.Background(), id)
	require.NoError(t, err)
	return a.Balance.Int64()
}

// =============================================================================
// AUTH
// =============================================================================

func TestRegister_ReturnsSessionAndZeroAccount(t *testing.T) {
	s := newTestServer(t, false)

	// WHEN: a new user registers
	got := s.register(t, "alice")

	// THEN: a session and a zero-balance account come back
	assert.NotEmpty(t, got.Token)
	assert.Equal(t, fixedNow.Add(time.Hour), got.ExpiresAt.UTC())
	assert.Equal(t, "alice", got.User.Username)
	assert.Equal(t, got.User.ID, got.Account.UserID)
	assert.Equal(t, int64(0), got.Account.Balance.Int64())
	assert.False(t, got.Account.IsPremium)
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "alice")

	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "secret-123",
	})

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "user_exists", decode[ErrorResponse](t, body).Error)
}

func TestRegister_ValidationFailure(t *testing.T) {
	s := newTestServer(t, false)

	// GIVEN: a short username and a malformed email
	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "al",
		Email:    "not-an-email",
		Password: "secret-123",
	})

	// THEN: 400 with the failing fields named by their JSON keys
	require.Equal(t, http.StatusBadRequest, status)
	resp := decode[ErrorResponse](t, body)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid_request", resp.Error)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok, string(body))
	assert.Equal(t, "min", details["username"])
	assert.Equal(t, "email", details["email"])
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "bob")

	t.Run("by email", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
			Login:    "bob@example.com",
			Password: "secret-bob",
		})
		require.Equal(t, http.StatusOK, status, string(body))
		got := decode[AuthResponse](t, body)
		assert.NotEqual(t, reg.Token, got.Token)
		assert.Equal(t, reg.User.ID, got.User.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
			Login:    "bob",
			Password: "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_credentials", decode[ErrorResponse](t, body).Error)
	})
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"me without token", http.MethodGet, "/api/me", ""},
		{"me with unknown token", http.MethodGet, "/api/me", "bogus"},
		{"like without token", http.MethodPost, "/api/likes", ""},
		{"purchase without token", http.MethodPost, "/api/purchases", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "not_authenticated", decode[ErrorResponse](t, body).Error)
		})
	}
}

func TestLogout_RevokesSession(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "carol")

	status, _ := s.do(t, http.MethodPost, "/api/auth/logout", reg.Token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(t, http.MethodGet, "/api/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSession_ExpiresAfterTTL(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "dave")

	s.clock.Advance(2 * time.Hour)

	status, _ := s.do(t, http.MethodGet, "/api/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

// =============================================================================
// ACCOUNT
// =============================================================================

func TestMe_ReturnsAccountAndThemes(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "erin")

	status, body := s.do(t, http.MethodGet, "/api/me", reg.Token, nil)

	require.Equal(t, http.StatusOK, status, string(body))
	me := decode[MeResponse](t, body)
	assert.Equal(t, "erin", me.User.Username)
	assert.Equal(t, int64(0), me.Account.Balance.Int64())
	assert.Equal(t, []ledger.Theme{ledger.ThemeDefault}, me.AvailableThemes)
	assert.False(t, me.BoostActive)
	assert.NotContains(t, string(body), "password")
}

// =============================================================================
// ENGAGEMENT
// =============================================================================

func TestToggleLike_OverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "frank")

	// WHEN: the same target is liked then unliked
	status, body := s.do(t, http.MethodPost, "/api/likes", reg.Token, ToggleLikeRequest{TargetID: "post-1"})
	require.Equal(t, http.StatusOK, status, string(body))
	first := decode[rewards.LikeResult](t, body)

	status, body = s.do(t, http.MethodPost, "/api/likes", reg.Token, ToggleLikeRequest{TargetID: "post-1"})
	require.Equal(t, http.StatusOK, status, string(body))
	second := decode[rewards.LikeResult](t, body)

	// THEN: one credit, relation restored
	assert.True(t, first.Success)
	assert.True(t, first.Liked)
	assert.Equal(t, int64(5), first.NewBalance.Int64())
	assert.Equal(t, 1, first.LikesCount)
	assert.False(t, second.Liked)
	assert.Equal(t, 0, second.LikesCount)
	assert.Equal(t, int64(5), second.NewBalance.Int64())
	assert.Equal(t, int64(5), second.Account.Balance.Int64())
}

func TestSuperLike_WithoutStock(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "gina")
	s.fund(t, reg.User.ID, 50)

	status, body := s.do(t, http.MethodPost, "/api/likes", reg.Token, ToggleLikeRequest{TargetID: "post-1", Super: true})

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "no_super_likes", decode[ErrorResponse](t, body).Error)
	assert.Equal(t, int64(50), s.balance(t, reg.User.ID))
}

func TestContentRewards_OverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "hank")

	// WHEN: a post is created and commented on
	status, body := s.do(t, http.MethodPost, "/api/posts", reg.Token, CreatePostRequest{Content: "hello"})
	require.Equal(t, http.StatusCreated, status, string(body))
	post := decode[rewards.Created](t, body)
	require.NotNil(t, post.Post)
	assert.Equal(t, int64(20), post.Reward)

	status, body = s.do(t, http.MethodPost, "/api/comments", reg.Token, CreateCommentRequest{PostID: post.Post.ID, Body: "first"})
	require.Equal(t, http.StatusCreated, status, string(body))
	comment := decode[rewards.Created](t, body)

	// THEN: both credits land, in journal order
	assert.Equal(t, int64(30), comment.NewBalance.Int64())

	status, body = s.do(t, http.MethodGet, "/api/me/transactions", reg.Token, nil)
	require.Equal(t, http.StatusOK, status)
	txs := decode[TransactionsResponse](t, body).Transactions
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.ReasonPost, txs[0].Reason)
	assert.Equal(t, ledger.ReasonComment, txs[1].Reason)
}

func TestCreatePost_MediaOnlyRejected(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "hugo")

	status, body := s.do(t, http.MethodPost, "/api/posts", reg.Token, CreatePostRequest{
		MediaURL:  "https://cdn.example.com/a.jpg",
		MediaType: "image",
	})

	assert.Equal(t, http.StatusBadRequest, status)
	resp := decode[ErrorResponse](t, body)
	assert.Equal(t, "invalid_request", resp.Error)
	assert.Equal(t, map[string]any{"content": "required"}, resp.Details)
	assert.Equal(t, int64(0), s.balance(t, reg.User.ID))
}

func TestChannelSubscription_OverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	owner := s.register(t, "ines")
	fan := s.register(t, "jon")

	status, body := s.do(t, http.MethodPost, "/api/channels", owner.Token, CreateChannelRequest{Name: "gophers"})
	require.Equal(t, http.StatusCreated, status, string(body))
	ch := decode[rewards.Created](t, body).Channel
	require.NotNil(t, ch)
	path := "/api/channels/" + ch.ID + "/subscription"

	// WHEN: the fan toggles twice
	status, body = s.do(t, http.MethodPost, path, fan.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	joined := decode[rewards.SubscriptionResult](t, body)

	status, body = s.do(t, http.MethodPost, path, fan.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	left := decode[rewards.SubscriptionResult](t, body)

	// THEN: membership flips, unpaid
	assert.True(t, joined.Subscribed)
	assert.Equal(t, 2, joined.SubscribersCount)
	assert.False(t, left.Subscribed)
	assert.Equal(t, 1, left.SubscribersCount)
	assert.Equal(t, int64(0), s.balance(t, fan.User.ID))

	status, body = s.do(t, http.MethodPost, "/api/channels/nope/subscription", fan.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "channel_not_found", decode[ErrorResponse](t, body).Error)
}

func TestStoryViews_OverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	author := s.register(t, "kai")
	viewer := s.register(t, "lea")

	status, body := s.do(t, http.MethodPost, "/api/stories", author.Token, CreateStoryRequest{
		MediaURL:  "https://cdn.example.com/s.jpg",
		MediaType: "image",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	story := decode[rewards.Created](t, body).Story
	require.NotNil(t, story)
	path := "/api/stories/" + story.ID + "/views"

	// WHEN: the same viewer looks twice
	for i := 0; i < 2; i++ {
		status, body = s.do(t, http.MethodPost, path, viewer.Token, nil)
		require.Equal(t, http.StatusOK, status, string(body))
	}

	// THEN: one view counted
	res := decode[rewards.StoryViewResult](t, body)
	assert.False(t, res.FirstView)
	assert.Equal(t, 1, res.ViewsCount)

	// AND: once expired, the story is gone (a fresh session, the first expired too)
	s.clock.Advance(25 * time.Hour)
	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Login: "lea", Password: "secret-lea"})
	require.Equal(t, http.StatusOK, status, string(body))
	fresh := decode[AuthResponse](t, body)
	status, body = s.do(t, http.MethodPost, path, fresh.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "story_not_found", decode[ErrorResponse](t, body).Error)
}

func TestCreateComment_MissingPost(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "iris")

	status, body := s.do(t, http.MethodPost, "/api/comments", reg.Token, CreateCommentRequest{PostID: "nope", Body: "hi"})

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "post_not_found", decode[ErrorResponse](t, body).Error)
	assert.Equal(t, int64(0), s.balance(t, reg.User.ID))
}

func TestCreateStory_RequiresMedia(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "jack")

	status, body := s.do(t, http.MethodPost, "/api/stories", reg.Token, `{"media_type":"image"}`)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, body).Error)
}

func TestTransactions_EmptyJournalIsArray(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "kate")

	status, body := s.do(t, http.MethodGet, "/api/me/transactions", reg.Token, nil)

	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"transactions":[]}`, string(body))
}

// =============================================================================
// PURCHASES
// =============================================================================

func purchase(item string, price int64) PurchaseRequest {
	p := ledger.YN(price)
	return PurchaseRequest{ItemID: item, DeclaredPrice: &p}
}

func TestPurchase_Premium(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "liam")
	s.fund(t, reg.User.ID, 500)

	status, body := s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("premium_account", 500))

	require.Equal(t, http.StatusOK, status, string(body))
	rcpt := decode[shop.Receipt](t, body)
	assert.True(t, rcpt.Success)
	assert.Equal(t, int64(0), rcpt.NewBalance.Int64())
	assert.True(t, rcpt.Account.IsPremium)
	assert.True(t, rcpt.Account.IsVerified)
	assert.Equal(t, ledger.VerificationBlue, rcpt.Account.VerificationColor)
	assert.Equal(t, "premium_account", rcpt.Item.ID)
	require.NotNil(t, rcpt.Delta)
}

func TestPurchase_StalePrice(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "mia")
	s.fund(t, reg.User.ID, 100)

	// WHEN: premium_emoji (75) is bought declaring 100
	status, body := s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("premium_emoji", 100))

	// THEN: 409 with both prices, balance untouched
	require.Equal(t, http.StatusConflict, status)
	resp := decode[ErrorResponse](t, body)
	assert.Equal(t, "price_mismatch", resp.Error)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(75), details["actual_price"])
	assert.Equal(t, float64(100), details["declared_price"])
	assert.Equal(t, int64(100), s.balance(t, reg.User.ID))
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "noah")
	s.fund(t, reg.User.ID, 120)

	status, body := s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("visibility_boost", 150))

	require.Equal(t, http.StatusConflict, status)
	resp := decode[ErrorResponse](t, body)
	assert.Equal(t, "insufficient_funds", resp.Error)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(30), details["shortfall"])
}

func TestPurchase_UnknownItem(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "olga")

	status, body := s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("gold_crown", 10))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_item", decode[ErrorResponse](t, body).Error)
}

func TestPurchase_BadBodies(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "pete")

	tests := []struct {
		name string
		body string
	}{
		{"missing price", `{"item_id":"premium_emoji"}`},
		{"unknown field", `{"item_id":"premium_emoji","declared_price":75,"discount":5}`},
		{"not json", `premium please`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/api/purchases", reg.Token, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "invalid_request", decode[ErrorResponse](t, body).Error)
		})
	}
}

func TestPurchase_IdempotencyKeyReplay(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "quinn")
	s.fund(t, reg.User.ID, 300)

	// WHEN: the same request is sent twice with one key
	status, body := s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("super_like_pack", 100), "Idempotency-Key", "buy-1")
	require.Equal(t, http.StatusOK, status, string(body))
	status, body = s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("super_like_pack", 100), "Idempotency-Key", "buy-1")

	// THEN: the replay is refused and charged once
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_request", decode[ErrorResponse](t, body).Error)
	a, err := s.core.Account(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), a.Balance.Int64())
	assert.Equal(t, 50, a.SuperLikesCount)
}

func TestPurchases_History(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "rosa")

	status, body := s.do(t, http.MethodGet, "/api/me/purchases", reg.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"purchases":[]}`, string(body))

	// WHEN: one purchase after a funding credit
	s.fund(t, reg.User.ID, 200)
	status, body = s.do(t, http.MethodPost, "/api/purchases", reg.Token, purchase("super_like_pack", 100))
	require.Equal(t, http.StatusOK, status, string(body))

	// THEN: only the debit is listed
	status, body = s.do(t, http.MethodGet, "/api/me/purchases", reg.Token, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[PurchasesResponse](t, body).Purchases
	require.Len(t, got, 1)
	assert.Equal(t, ledger.TxDebit, got[0].Type)
	assert.Equal(t, "super_like_pack", got[0].ReferenceID)
	assert.Equal(t, int64(-100), got[0].Delta.Int64())
}

func TestCatalog_Public(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/api/catalog", "", nil)

	require.Equal(t, http.StatusOK, status)
	items := decode[CatalogResponse](t, body).Items
	assert.Len(t, items, len(catalog.DefaultItems()))
}

func TestCatalog_ByCategory(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/api/catalog?category=bonus", "", nil)

	require.Equal(t, http.StatusOK, status)
	items := decode[CatalogResponse](t, body).Items
	assert.Len(t, items, len(catalog.Default().ByCategory(catalog.CategoryBonus)))
	for _, it := range items {
		assert.Equal(t, catalog.CategoryBonus, it.Category)
	}

	status, body = s.do(t, http.MethodGet, "/api/catalog?category=gifts", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, body).Error)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_LoadShopper(t *testing.T) {
	s := newTestServer(t, true)

	status, body := s.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "shopper"})

	require.Equal(t, http.StatusCreated, status, string(body))
	got := decode[AuthResponse](t, body)
	assert.Equal(t, int64(1000), got.Account.Balance.Int64())
	assert.Equal(t, 50, got.Account.SuperLikesCount)

	// The returned session is live.
	status, _ = s.do(t, http.MethodGet, "/api/me", got.Token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestScenarios_EveryScenarioLoads(t *testing.T) {
	s := newTestServer(t, true)

	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusCreated, status, string(body))
		})
	}

	status, body := s.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_scenario", decode[ErrorResponse](t, body).Error)
}

func TestScenarios_NotMountedByDefault(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/api/scenarios", "", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, body).Error)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, HealthResponse{Status: "ok", Database: "ok"}, decode[HealthResponse](t, body))
}

func TestMetrics_CountsCommitsAndRequests(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "rita")
	status, _ := s.do(t, http.MethodPost, "/api/likes", reg.Token, ToggleLikeRequest{TargetID: "post-9"})
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, status)
	text := string(body)
	assert.Contains(t, text, `yn_ledger_commits_total{reason="like"} 1`)
	assert.Contains(t, text, `route="/api/likes"`)
}

func TestSweeper_RemovesExpiredStoriesAndSessions(t *testing.T) {
	s := newTestServer(t, false)
	reg := s.register(t, "sam")

	status, body := s.do(t, http.MethodPost, "/api/stories", reg.Token, CreateStoryRequest{
		MediaURL:  "https://cdn.example.com/s.jpg",
		MediaType: "image",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	// GIVEN: a day later, both the story and the session are past expiry
	s.clock.Advance(25 * time.Hour)
	sw := NewSweeper(s.store, s.auth, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sw.Now = s.clock.Now

	// WHEN
	res := sw.RunNow(context.Background())

	// THEN: both are gone and the story credit stays
	assert.Equal(t, SweepResult{Stories: 1, Sessions: 1}, res)
	assert.Equal(t, int64(15), s.balance(t, reg.User.ID))
	assert.Equal(t, SweepResult{}, sw.RunNow(context.Background()))
}

func TestSweeper_StartStop(t *testing.T) {
	s := newTestServer(t, false)
	sw := NewSweeper(s.store, s.auth, nil)
	sw.CheckInterval = time.Hour

	sw.Start()
	sw.Start()
	sw.Stop()
	sw.Stop()

	sw.Enabled = false
	sw.Start()
	sw.Stop()
}
