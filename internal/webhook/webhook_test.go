package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/ascend/internal/config"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/engine"
	"github.com/cory-johannsen/ascend/internal/game/guard"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/storage"
	"github.com/cory-johannsen/ascend/internal/webhook"
)

const adminKey = "correct horse battery staple"

type call struct {
	userID string
	action engine.Action
}

type fakeGame struct {
	mu      sync.Mutex
	calls   []call
	result  any
	err     error
	store   *storage.MemoryStore
	granted map[string]int64
}

func (g *fakeGame) Dispatch(_ context.Context, userID string, action engine.Action) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call{userID, action})
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGame) GrantCurrency(ctx context.Context, userID string, amount int64) (int64, error) {
	acct, err := g.store.Load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := acct.Credit(amount); err != nil {
		return 0, err
	}
	g.granted[userID] += amount
	return acct.Currency, g.store.Save(ctx, acct)
}

func (g *fakeGame) Account(ctx context.Context, userID string) (*account.Account, error) {
	return g.store.Load(ctx, userID)
}

func (g *fakeGame) lastCall(t *testing.T) call {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.calls)
	return g.calls[len(g.calls)-1]
}

type harness struct {
	server *webhook.Server
	game   *fakeGame
	flags  *guard.MemoryFlags
	guard  *guard.Guard
	store  *storage.MemoryStore

	registry *modifier.Registry
}

func newHarness(t *testing.T, limiter *webhook.IPLimiter) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	flags := guard.NewMemoryFlags()
	g := guard.New(guard.Config{
		MaxConcurrent: 4,
		Window:        time.Minute,
		Threshold:     100,
		StaleAfter:    time.Minute,
	}, flags, logger)
	game := &fakeGame{result: map[string]string{"ok": "yes"}, store: store, granted: map[string]int64{}}
	auth := webhook.NewAuthenticator(config.AdminConfig{
		KeyHash:          string(hash),
		TokenSecret:      "test-secret",
		TokenTTL:         time.Hour,
		MaxLoginAttempts: 5,
		Lockout:          5 * time.Minute,
	}, logger)
	if limiter == nil {
		limiter = webhook.NewIPLimiter(1000, 1000)
	}
	flavors, err := modifier.LoadFlavorCatalog(filepath.Join("..", "..", "content", "flavors.yaml"))
	require.NoError(t, err)
	roles, err := modifier.LoadRoleCatalog(filepath.Join("..", "..", "content", "roles.yaml"))
	require.NoError(t, err)
	registry := modifier.NewRegistry(flavors, roles, dice.NewLoggedRoller(dice.NewCryptoSource(), logger))

	srv := webhook.New(config.HTTPConfig{Host: "127.0.0.1", Port: 0}, webhook.Deps{
		Game:     game,
		Guard:    g,
		Accounts: store,
		Catalog:  registry,
		Auth:     auth,
		Limiter:  limiter,
		Logger:   logger,
	})
	return &harness{server: srv, game: game, flags: flags, guard: g, store: store, registry: registry}
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (h *harness) seed(t *testing.T, id string, currency int64) {
	t.Helper()
	require.NoError(t, h.store.Create(context.Background(), account.New(id, currency, time.Now())))
}

var keyHeader = map[string]string{"X-Admin-Key": adminKey}

func TestPlay_PlainShape(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodPost, "/game", map[string]string{"userId": "u1", "action": "upgrade"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upgrade", body["action"])
	assert.Equal(t, call{"u1", engine.ActionUpgrade}, h.game.lastCall(t))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestPlay_ChatPlatformShape(t *testing.T) {
	h := newHarness(t, nil)
	body := map[string]any{"userRequest": map[string]any{
		"user":      map[string]string{"id": "kakao-1"},
		"utterance": "판매",
	}}
	resp, _ := h.do(t, http.MethodPost, "/game", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, call{"kakao-1", engine.ActionSell}, h.game.lastCall(t))

	resp, _ = h.do(t, http.MethodPost, "/game/start", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, call{"kakao-1", engine.ActionStatus}, h.game.lastCall(t))
}

func TestPlay_BadRequests(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(t, http.MethodPost, "/game", map[string]string{"action": "status"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/game", map[string]string{"userId": "u1"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.game.err = fmt.Errorf("%w: %q", engine.ErrUnknownAction, "dance")
	resp, _ = h.do(t, http.MethodPost, "/game", map[string]string{"userId": "u1", "action": "dance"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlay_RejectionStatuses(t *testing.T) {
	cases := []struct {
		reason engine.Reason
		status int
	}{
		{engine.ReasonOverloaded, http.StatusTooManyRequests},
		{engine.ReasonTooFast, http.StatusTooManyRequests},
		{engine.ReasonFlagged, http.StatusForbidden},
		{engine.ReasonMaxLevel, http.StatusConflict},
		{engine.ReasonNotSellable, http.StatusConflict},
		{engine.ReasonInsufficientFunds, http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			h := newHarness(t, nil)
			h.game.err = &engine.RejectionError{Reason: tc.reason, Required: 500, Balance: 20, Err: errors.New(string(tc.reason))}
			resp, body := h.do(t, http.MethodPost, "/game", map[string]string{"userId": "u1", "action": "upgrade"}, nil)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, string(tc.reason), body["reason"])
			if tc.reason == engine.ReasonInsufficientFunds {
				assert.EqualValues(t, 500, body["required"])
				assert.EqualValues(t, 20, body["balance"])
			} else {
				assert.NotContains(t, body, "required")
			}
		})
	}
}

func TestPlay_PersistenceFailureIs500(t *testing.T) {
	h := newHarness(t, nil)
	h.game.err = errors.New("connection reset")
	resp, body := h.do(t, http.MethodPost, "/game", map[string]string{"userId": "u1", "action": "status"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", body["error"])
}

func TestPlay_StaleWriteIs409(t *testing.T) {
	h := newHarness(t, nil)
	h.game.err = fmt.Errorf("saving account u1: %w", storage.ErrStaleAccount)
	resp, body := h.do(t, http.MethodPost, "/game", map[string]string{"userId": "u1", "action": "upgrade"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "account changed, retry", body["error"])
}

func TestRequestID_Echoed(t *testing.T) {
	h := newHarness(t, nil)
	resp, _ := h.do(t, http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "guard")
}

func TestGameRoute_RateLimited(t *testing.T) {
	h := newHarness(t, webhook.NewIPLimiter(0.001, 1))
	req := map[string]string{"userId": "u1", "action": "status"}
	resp, _ := h.do(t, http.MethodPost, "/game", req, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/game", req, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health is not limited.
	resp, _ = h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdmin_RequiresCredentials(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(t, http.MethodGet, "/admin/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/admin/status", nil, map[string]string{"X-Admin-Key": "nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/admin/status", nil, map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/admin/status", nil, keyHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "guard")
}

func TestAdmin_LoginIssuesBearerToken(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, http.MethodPost, "/admin/login", map[string]string{"key": adminKey}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, ok := body["token"].(string)
	require.True(t, ok)

	resp, _ = h.do(t, http.MethodGet, "/admin/flagged", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdmin_LoginLockout(t *testing.T) {
	h := newHarness(t, nil)
	for i := 4; i >= 1; i-- {
		resp, body := h.do(t, http.MethodPost, "/admin/login", map[string]string{"key": "wrong"}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.EqualValues(t, i, body["remainingAttempts"])
	}
	resp, body := h.do(t, http.MethodPost, "/admin/login", map[string]string{"key": "wrong"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.EqualValues(t, 300, body["lockoutSeconds"])

	// The correct key is refused while locked out.
	resp, _ = h.do(t, http.MethodPost, "/admin/login", map[string]string{"key": adminKey}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestAdmin_FlagManagement(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.flags.Flag(ctx, "bot-1"))
	require.NoError(t, h.flags.Flag(ctx, "bot-2"))

	_, body := h.do(t, http.MethodGet, "/admin/flagged", nil, keyHeader)
	assert.EqualValues(t, 2, body["count"])

	_, body = h.do(t, http.MethodPost, "/admin/unflag/bot-1", nil, keyHeader)
	assert.Equal(t, true, body["success"])
	_, body = h.do(t, http.MethodPost, "/admin/unflag/bot-1", nil, keyHeader)
	assert.Equal(t, false, body["success"])

	_, body = h.do(t, http.MethodPost, "/admin/unflag-all", nil, keyHeader)
	assert.EqualValues(t, 1, body["count"])
	flagged, err := h.guard.Flagged(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestAdmin_Users(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "alice", 100)
	h.seed(t, "alex", 200)
	h.seed(t, "bob", 300)

	resp, _ := h.do(t, http.MethodGet, "/admin/users/nobody", nil, keyHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/admin/users/alice", nil, keyHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 100, body["balance"])
	assert.Equal(t, false, body["flagged"])

	_, body = h.do(t, http.MethodGet, "/admin/users?q=al", nil, keyHeader)
	assert.EqualValues(t, 2, body["count"])

	resp, _ = h.do(t, http.MethodGet, "/admin/users?limit=1000", nil, keyHeader)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = h.do(t, http.MethodGet, "/admin/stats", nil, keyHeader)
	assert.EqualValues(t, 3, body["accounts"])
}

func TestAdmin_GrantCurrency(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "alice", 100)

	resp, _ := h.do(t, http.MethodPost, "/admin/users/ghost/gold", map[string]any{"amount": 50}, keyHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/admin/users/alice/gold", map[string]any{"amount": -5}, keyHeader)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/admin/users/alice/gold", map[string]any{"amount": 50, "reason": "event"}, keyHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 150, body["balance"])
	assert.Equal(t, int64(50), h.game.granted["alice"])
}

func TestAdmin_CatalogByKey(t *testing.T) {
	h := newHarness(t, nil)
	hero, ok := h.registry.Role("용사")
	require.True(t, ok)
	genius, ok := h.registry.Flavor("천재")
	require.True(t, ok)

	resp, body := h.do(t, http.MethodGet, "/admin/catalog/roles/"+hero.Key, nil, keyHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "용사", body["name"])
	assert.Equal(t, hero.Key, body["key"])

	resp, body = h.do(t, http.MethodGet, "/admin/catalog/flavors/"+genius.Key, nil, keyHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "천재", body["name"])
	assert.Equal(t, []any{"double_level"}, body["abilities"])

	resp, body = h.do(t, http.MethodGet, "/admin/catalog/roles/no-such-role", nil, keyHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "role not found", body["error"])

	resp, _ = h.do(t, http.MethodGet, "/admin/catalog/roles/"+hero.Key, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
