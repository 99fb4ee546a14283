package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
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

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ynctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"register", "login", "logout", "whoami", "balance",
		"like", "post", "comment", "story", "channel",
		"subscribe", "view", "catalog", "buy", "history", "purchases",
	}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestBuyCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	buy, _, err := cmd.Find([]string{"buy"})
	require.NoError(t, err)

	price := buy.Flags().Lookup("price")
	require.NotNil(t, price)
	assert.Equal(t, "-1", price.DefValue)
	assert.NotNil(t, buy.Flags().Lookup("key"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "http://unused", filepath.Join(t.TempDir(), "s.yaml"), "--format", "xml", "balance")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// =============================================================================
// END TO END
// =============================================================================

type server struct {
	url  string
	core *ledger.Core
}

func newServer(t *testing.T) server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	core := ledger.NewCore(store)
	h := api.NewHandler(api.Deps{
		Core:    core,
		Rewards: rewards.NewProcessor(core, rewards.DefaultSchedule()),
		Shop:    shop.NewProcessor(core, catalog.Default()),
		Auth:    auth.NewService(store, core, auth.Options{BcryptCost: bcrypt.MinCost}),
		DB:      store,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(api.NewRouter(h, api.RouterConfig{}))
	t.Cleanup(srv.Close)
	return server{url: srv.URL, core: core}
}

func runCLI(t *testing.T, url, cache string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", url, "--cache", cache}, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSession_LikeAndBalance(t *testing.T) {
	srv := newServer(t)
	cache := filepath.Join(t.TempDir(), "session.yaml")

	// GIVEN: a registered user
	out, err := runCLI(t, srv.url, cache, "register", "zoe", "zoe@example.com", "-p", "secret1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Registered zoe.")

	// WHEN: a target is liked
	out, err = runCLI(t, srv.url, cache, "like", "post-42")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Liked post-42. Balance: 5 YN")

	// THEN: the cached balance reflects the server, offline
	out, err = runCLI(t, "http://127.0.0.1:1", cache, "balance")
	require.NoError(t, err, out)
	assert.Contains(t, out, "balance:     5 YN")
}

func TestSession_BuyUsesCatalogPrice(t *testing.T) {
	srv := newServer(t)
	cache := filepath.Join(t.TempDir(), "session.yaml")

	out, err := runCLI(t, srv.url, cache, "--format", "json", "register", "yan", "yan@example.com", "-p", "secret1")
	require.NoError(t, err, out)

	var reg struct {
		Data api.AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	_, err = srv.core.Credit(context.Background(), reg.Data.User.ID, ledger.YN(80), ledger.ReasonAdjustment, "")
	require.NoError(t, err)

	// Stale declared price is refused.
	_, err = runCLI(t, srv.url, cache, "buy", "premium_emoji", "--price", "100")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrPriceMismatch)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// Catalog price is declared when --price is omitted.
	out, err = runCLI(t, srv.url, cache, "buy", "premium_emoji")
	require.NoError(t, err, out)
	assert.Contains(t, out, "balance:     5 YN")

	out, err = runCLI(t, srv.url, cache, "history")
	require.NoError(t, err, out)
	assert.Contains(t, out, "purchase")
	assert.Contains(t, out, "premium_emoji")

	// purchases lists only the debit, not the adjustment credit
	out, err = runCLI(t, srv.url, cache, "purchases")
	require.NoError(t, err, out)
	assert.Contains(t, out, "premium_emoji")
	assert.NotContains(t, out, "adjustment")
}

func TestSession_CatalogByCategory(t *testing.T) {
	srv := newServer(t)
	cache := filepath.Join(t.TempDir(), "session.yaml")

	out, err := runCLI(t, srv.url, cache, "catalog", "--category", "premium")
	require.NoError(t, err, out)
	assert.Contains(t, out, "premium_account")
	assert.NotContains(t, out, "super_like_pack")

	_, err = runCLI(t, srv.url, cache, "catalog", "--category", "gifts")
	assert.Error(t, err)
}

func TestSession_SubscribeAndView(t *testing.T) {
	srv := newServer(t)
	cache := filepath.Join(t.TempDir(), "session.yaml")

	out, err := runCLI(t, srv.url, cache, "--format", "json", "register", "wes", "wes@example.com", "-p", "secret1")
	require.NoError(t, err, out)

	out, err = runCLI(t, srv.url, cache, "--format", "json", "channel", "gophers")
	require.NoError(t, err, out)
	var ch struct {
		Data rewards.Created `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ch))

	// the owner starts subscribed, so the toggle leaves
	out, err = runCLI(t, srv.url, cache, "subscribe", ch.Data.Channel.ID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Left "+ch.Data.Channel.ID+". Subscribers: 0")

	out, err = runCLI(t, srv.url, cache, "--format", "json", "story", "https://cdn.example.com/s.jpg")
	require.NoError(t, err, out)
	var st struct {
		Data rewards.Created `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))

	out, err = runCLI(t, srv.url, cache, "view", st.Data.Story.ID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Views: 1")
}

func TestSession_NotLoggedIn(t *testing.T) {
	srv := newServer(t)
	cache := filepath.Join(t.TempDir(), "session.yaml")

	_, err := runCLI(t, srv.url, cache, "like", "post-1")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := runCLI(t, srv.url, cache, "balance")
	require.NoError(t, err)
	assert.Contains(t, out, "unknown")
}

func TestSession_Logout(t *testing.T) {
	srv := newServer(t)
	cache := filepath.Join(t.TempDir(), "session.yaml")
	_, err := runCLI(t, srv.url, cache, "register", "xia", "xia@example.com", "-p", "secret1")
	require.NoError(t, err)

	out, err := runCLI(t, srv.url, cache, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	_, err = runCLI(t, srv.url, cache, "whoami")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
