package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ynaut/reward-ledger/api"
	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/rewards"
	"github.com/ynaut/reward-ledger/shop"
	"github.com/ynaut/reward-ledger/store/sqlite"
	"golang.org/x/crypto/bcrypt"
)

type backend struct {
	url  string
	core *ledger.Core
}

func newBackend(t *testing.T) backend {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	core := ledger.NewCore(store)
	h := api.NewHandler(api.Deps{
		Core:    core,
		Rewards: rewards.NewProcessor(core, rewards.DefaultSchedule()),
		Shop:    shop.NewProcessor(core, catalog.Default()),
		Auth:    auth.NewService(store, core, auth.Options{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}),
		DB:      store,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	srv := httptest.NewServer(api.NewRouter(h, api.RouterConfig{}))
	t.Cleanup(srv.Close)
	return backend{url: srv.URL, core: core}
}

func registerClient(t *testing.T, b backend, path, username string) *Client {
	t.Helper()
	cache, err := OpenCache(path)
	require.NoError(t, err)
	c := New(b.url, cache)
	_, err = c.Register(context.Background(), api.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)
	return c
}

func cachedBalance(t *testing.T, c *Client) int64 {
	t.Helper()
	a, ok := c.Cache().Account()
	require.True(t, ok, "account unknown")
	return a.Balance.Int64()
}

func TestClient_RegisterSeedsCache(t *testing.T) {
	b := newBackend(t)

	c := registerClient(t, b, "", "alice")

	assert.NotEmpty(t, c.Cache().Token())
	assert.Equal(t, int64(0), cachedBalance(t, c))
}

func TestClient_LikeReconcilesCache(t *testing.T) {
	b := newBackend(t)
	c := registerClient(t, b, "", "bob")
	ctx := context.Background()

	// WHEN: a like and an unlike
	res, err := c.ToggleLike(ctx, "post-1", false)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(5), cachedBalance(t, c))

	res, err = c.ToggleLike(ctx, "post-1", false)
	require.NoError(t, err)

	// THEN: the cache mirrors the server, one credit
	assert.False(t, res.Liked)
	assert.Equal(t, int64(5), cachedBalance(t, c))
}

func TestClient_FailedPurchaseLeavesCache(t *testing.T) {
	b := newBackend(t)
	c := registerClient(t, b, "", "carol")
	ctx := context.Background()

	_, err := c.ToggleLike(ctx, "post-1", false)
	require.NoError(t, err)

	// WHEN: a purchase the balance cannot cover
	_, err = c.Purchase(ctx, "premium_emoji", ledger.YN(75), "")

	// THEN: the error carries the ledger sentinel and the cache is unchanged
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "insufficient_funds", apiErr.Code)
	assert.Equal(t, int64(5), cachedBalance(t, c))
}

func TestClient_PurchaseAndStalePrice(t *testing.T) {
	b := newBackend(t)
	c := registerClient(t, b, "", "dave")
	ctx := context.Background()

	a, ok := c.Cache().Account()
	require.True(t, ok)
	_, err := b.core.Credit(ctx, a.UserID, ledger.YN(100), ledger.ReasonAdjustment, "")
	require.NoError(t, err)

	// Stale price is refused.
	_, err = c.Purchase(ctx, "premium_emoji", ledger.YN(100), "")
	assert.ErrorIs(t, err, ledger.ErrPriceMismatch)

	// Correct price commits and the cache follows.
	rcpt, err := c.Purchase(ctx, "premium_emoji", ledger.YN(75), "k-1")
	require.NoError(t, err)
	assert.True(t, rcpt.Account.PremiumEmojiEnabled)

	got, _ := c.Cache().Account()
	assert.Equal(t, int64(25), got.Balance.Int64())
	assert.True(t, got.PremiumEmojiEnabled)
}

func TestClient_ResumeAfterRestart(t *testing.T) {
	b := newBackend(t)
	path := t.TempDir() + "/session.yaml"
	c := registerClient(t, b, path, "erin")
	_, err := c.CreatePost(context.Background(), api.CreatePostRequest{Content: "hi"})
	require.NoError(t, err)

	// GIVEN: a new process with the same cache file
	cache, err := OpenCache(path)
	require.NoError(t, err)
	resumed := New(b.url, cache)

	// WHEN
	me, err := resumed.Resume(context.Background())

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "erin", me.User.Username)
	assert.Equal(t, int64(20), cachedBalance(t, resumed))
}

func TestClient_ResumeWithRevokedToken_DiscardsCache(t *testing.T) {
	b := newBackend(t)
	path := t.TempDir() + "/session.yaml"
	registerClient(t, b, path, "frank")

	// GIVEN: the cached token is no longer valid on the server
	cache, err := OpenCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Begin("revoked-token", ledger.NewAccount("someone")))

	// WHEN
	_, err = New(b.url, cache).Resume(context.Background())

	// THEN
	assert.True(t, IsUnauthorized(err))
	assert.ErrorIs(t, err, ledger.ErrNotAuthenticated)
	_, ok := cache.Account()
	assert.False(t, ok)
	assert.Empty(t, cache.Token())
}

func TestClient_ResumeWithoutSession(t *testing.T) {
	b := newBackend(t)

	_, err := New(b.url, nil).Resume(context.Background())

	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClient_Logout(t *testing.T) {
	b := newBackend(t)
	c := registerClient(t, b, "", "gina")
	token := c.Cache().Token()

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.Cache().Token())

	// The old token is dead on the server.
	stale := New(b.url, nil)
	require.NoError(t, stale.Cache().Begin(token, ledger.NewAccount("x")))
	_, err := stale.Me(context.Background())
	assert.True(t, IsUnauthorized(err))
}

func TestClient_ContentAndHistory(t *testing.T) {
	b := newBackend(t)
	c := registerClient(t, b, "", "hank")
	ctx := context.Background()

	ch, err := c.CreateChannel(ctx, api.CreateChannelRequest{Name: "gophers"})
	require.NoError(t, err)
	require.NotNil(t, ch.Channel)

	post, err := c.CreatePost(ctx, api.CreatePostRequest{Content: "hello", ChannelID: ch.Channel.ID})
	require.NoError(t, err)
	_, err = c.CreateComment(ctx, post.Post.ID, "nice")
	require.NoError(t, err)
	_, err = c.CreateStory(ctx, api.CreateStoryRequest{MediaURL: "https://cdn.example.com/a.mp4", MediaType: "video"})
	require.NoError(t, err)

	assert.Equal(t, int64(50+20+10+15), cachedBalance(t, c))

	txs, err := c.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	assert.Equal(t, ledger.ReasonChannelCreate, txs[0].Reason)
	assert.Equal(t, ledger.ReasonStory, txs[3].Reason)
}

func TestClient_Catalog(t *testing.T) {
	b := newBackend(t)
	c := New(b.url, nil)

	items, err := c.Catalog(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, items, len(catalog.DefaultItems()))

	bonus, err := c.Catalog(context.Background(), catalog.CategoryBonus)
	require.NoError(t, err)
	require.NotEmpty(t, bonus)
	for _, it := range bonus {
		assert.Equal(t, catalog.CategoryBonus, it.Category)
	}

	_, err = c.Catalog(context.Background(), "gifts")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestClient_Purchases(t *testing.T) {
	b := newBackend(t)
	c := registerClient(t, b, "", "ivy")
	ctx := context.Background()

	a, _ := c.Cache().Account()
	_, err := b.core.Credit(ctx, a.UserID, ledger.YN(100), ledger.ReasonAdjustment, "")
	require.NoError(t, err)
	_, err = c.Purchase(ctx, "premium_emoji", ledger.YN(75), "")
	require.NoError(t, err)

	purchases, err := c.Purchases(ctx)

	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "premium_emoji", purchases[0].ReferenceID)
	assert.Equal(t, int64(-75), purchases[0].Delta.Int64())
}

func TestClient_SubscriptionAndStoryView(t *testing.T) {
	b := newBackend(t)
	owner := registerClient(t, b, "", "jay")
	fan := registerClient(t, b, "", "kim")
	ctx := context.Background()

	ch, err := owner.CreateChannel(ctx, api.CreateChannelRequest{Name: "news"})
	require.NoError(t, err)
	story, err := owner.CreateStory(ctx, api.CreateStoryRequest{MediaURL: "https://cdn.example.com/s.jpg", MediaType: "image"})
	require.NoError(t, err)

	sub, err := fan.ToggleSubscription(ctx, ch.Channel.ID)
	require.NoError(t, err)
	assert.True(t, sub.Subscribed)
	assert.Equal(t, 2, sub.SubscribersCount)

	view, err := fan.ViewStory(ctx, story.Story.ID)
	require.NoError(t, err)
	assert.True(t, view.FirstView)
	assert.Equal(t, 1, view.ViewsCount)

	_, err = fan.ViewStory(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "story_not_found", apiErr.Code)

	// neither action moves YN
	assert.Equal(t, int64(0), cachedBalance(t, fan))
}

func TestClient_AuthedCallWithoutSession(t *testing.T) {
	b := newBackend(t)

	_, err := New(b.url, nil).ToggleLike(context.Background(), "post-1", false)

	assert.ErrorIs(t, err, ErrNoSession)
}
