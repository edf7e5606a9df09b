package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketledger/internal/cache/local"
	"github.com/alanyoungcy/marketledger/internal/crypto"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/server/middleware"
	"github.com/alanyoungcy/marketledger/internal/service"
	"github.com/alanyoungcy/marketledger/internal/store/memory"
)

const (
	testAPIKey      = "api-secret"
	testResolverKey = "resolver-secret"
	oracleKey       = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

type testServer struct {
	*httptest.Server
	signer *crypto.OracleSigner
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	markets := memory.NewMarketStore()
	bus := local.NewSignalBus()
	cache := local.NewMarketCache(64, time.Minute)
	audit := memory.NewAuditStore()

	marketSvc := service.NewMarketService(service.MarketDeps{
		Markets: markets, Cache: cache, Bus: bus, Audit: audit,
	}, service.DefaultMarketLimits(), logger)
	settleSvc := service.NewSettlementService(service.SettlementDeps{
		Markets: markets, Rewards: memory.NewRewardStore(), Locks: local.NewLockManager(),
		Cache: cache, Bus: bus, Audit: audit, Sink: memory.NewBalanceBook(),
	}, service.SettlementConfig{}, logger)

	signer, err := crypto.NewOracleSigner(oracleKey)
	require.NoError(t, err)
	verifier, err := crypto.NewVerifier([]string{signer.Address().Hex()})
	require.NoError(t, err)

	if cfg.APIKey == "" {
		cfg.APIKey = testAPIKey
	}
	cfg.ResolverKey = testResolverKey

	h := Routes(cfg, Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"markets": func(ctx context.Context) error { return nil },
		}, logger),
		Markets:     handler.NewMarketHandler(marketSvc, logger),
		Settlements: handler.NewSettlementHandler(settleSvc, logger),
	}, Deps{Limiter: local.NewRateLimiter(), Verifier: verifier}, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, signer: signer}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) createMarket(t *testing.T) string {
	t.Helper()
	body := fmt.Sprintf(`{
		"creator": "creator",
		"title": "Will it rain tomorrow?",
		"description": "Resolves yes if any rain is recorded.",
		"closes_at": %q,
		"initial_pool": "1",
		"min_bet": "0.01",
		"max_bet": "10"
	}`, time.Now().Add(48*time.Hour).UTC().Format(time.RFC3339))
	status, out := s.do(t, http.MethodPost, "/api/markets", body)
	require.Equal(t, http.StatusCreated, status, out)
	return out["id"].(string)
}

func (s *testServer) placeBet(t *testing.T, id, user, amount, side string) {
	t.Helper()
	status, out := s.do(t, http.MethodPost, "/api/markets/"+id+"/bets",
		fmt.Sprintf(`{"user_id":%q,"amount":%q,"side":%q}`, user, amount, side))
	require.Equal(t, http.StatusCreated, status, out)
}

func TestServer_MarketLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})

	id := s.createMarket(t)
	s.placeBet(t, id, "alice", "0.5", "yes")
	s.placeBet(t, id, "bob", "0.3", "NO")
	s.placeBet(t, id, "carol", "0.2", "yes")

	status, market := s.do(t, http.MethodGet, "/api/markets/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "open", market["status"])
	assert.Len(t, market["bets"], 3)

	status, st := s.do(t, http.MethodPost, "/api/markets/"+id+"/resolve", `{"result":"yes"}`,
		middleware.ResolverKeyHeader, testResolverKey)
	require.Equal(t, http.StatusOK, status, st)
	assert.Equal(t, "yes", st["result"])
	assert.Equal(t, "2", st["total_pool"])

	status, out := s.do(t, http.MethodPost, "/api/markets/"+id+"/claim", `{"user_id":"alice"}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "1.42857143", out["amount"])

	status, out = s.do(t, http.MethodPost, "/api/markets/"+id+"/claim", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_CLAIMED", out["code"])

	status, out = s.do(t, http.MethodPost, "/api/markets/"+id+"/claim", `{"user_id":"bob"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", out["code"])

	status, out = s.do(t, http.MethodGet, "/api/users/alice/rewards", "")
	require.Equal(t, http.StatusOK, status)
	rewards := out["rewards"].([]any)
	require.Len(t, rewards, 1)
	assert.Equal(t, true, rewards[0].(map[string]any)["claimed"])

	status, out = s.do(t, http.MethodGet, "/api/markets/"+id+"/rewards", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["rewards"], 2)

	status, out = s.do(t, http.MethodGet, "/api/users/alice/balance", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "1.42857143", out["balance"])

	status, out = s.do(t, http.MethodGet, "/api/users/carol/balance", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "0", out["balance"], "unclaimed rewards are not credited")

	for user, want := range map[string]string{"alice": "won", "bob": "lost"} {
		status, out = s.do(t, http.MethodGet, "/api/users/"+user+"/bets", "")
		require.Equal(t, http.StatusOK, status, out)
		bets := out["bets"].([]any)
		require.Len(t, bets, 1)
		bet := bets[0].(map[string]any)
		assert.Equal(t, want, bet["outcome"])
		assert.Equal(t, id, bet["market_id"])
		assert.Equal(t, "Will it rain tomorrow?", bet["market_title"])
	}

	status, out = s.do(t, http.MethodPost, "/api/markets/"+id+"/resolve", `{"result":"no"}`,
		middleware.ResolverKeyHeader, testResolverKey)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", out["code"])
}

func TestServer_ListMarkets(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})
	first := s.createMarket(t)
	s.createMarket(t)

	status, _ := s.do(t, http.MethodPost, "/api/markets/"+first+"/close", "",
		middleware.ResolverKeyHeader, testResolverKey)
	require.Equal(t, http.StatusOK, status)

	status, out := s.do(t, http.MethodGet, "/api/markets?status=closed", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, out["total"])
	assert.Len(t, out["markets"], 1)

	status, out = s.do(t, http.MethodGet, "/api/markets?limit=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, out["total"])
	assert.Len(t, out["markets"], 1)
	assert.EqualValues(t, 1, out["limit"])
}

func TestServer_RequestErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})
	id := s.createMarket(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    []string
		wantStatus int
		wantCode   string
	}{
		{"unknown market", http.MethodGet, "/api/markets/missing", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"malformed body", http.MethodPost, "/api/markets/" + id + "/bets", `{"user_id":`, nil, http.StatusBadRequest, "VALIDATION"},
		{"unknown field", http.MethodPost, "/api/markets/" + id + "/bets", `{"user_id":"a","amount":"1","side":"yes","tip":1}`, nil, http.StatusBadRequest, "VALIDATION"},
		{"bad side", http.MethodPost, "/api/markets/" + id + "/bets", `{"user_id":"a","amount":"1","side":"maybe"}`, nil, http.StatusBadRequest, "VALIDATION"},
		{"negative amount", http.MethodPost, "/api/markets/" + id + "/bets", `{"user_id":"a","amount":"-1","side":"yes"}`, nil, http.StatusBadRequest, "VALIDATION"},
		{"bet out of range", http.MethodPost, "/api/markets/" + id + "/bets", `{"user_id":"a","amount":"11","side":"yes"}`, nil, http.StatusConflict, "AMOUNT_OUT_OF_RANGE"},
		{"claim before settlement", http.MethodPost, "/api/markets/" + id + "/claim", `{"user_id":"a"}`, nil, http.StatusNotFound, "NOT_FOUND"},
		{"resettle unresolved", http.MethodPost, "/api/markets/" + id + "/resettle", "", []string{middleware.ResolverKeyHeader, testResolverKey}, http.StatusConflict, "INVALID_STATE"},
		{"invalid status filter", http.MethodGet, "/api/markets?status=pending", "", nil, http.StatusBadRequest, "VALIDATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := s.do(t, tt.method, tt.path, tt.body, tt.headers...)
			assert.Equal(t, tt.wantStatus, status, out)
			assert.Equal(t, tt.wantCode, out["code"])
		})
	}
}

func TestServer_ResolverAuthorization(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})

	t.Run("no credentials", func(t *testing.T) {
		id := s.createMarket(t)
		status, _ := s.do(t, http.MethodPost, "/api/markets/"+id+"/resolve", `{"result":"yes"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("wrong resolver key", func(t *testing.T) {
		id := s.createMarket(t)
		status, _ := s.do(t, http.MethodPost, "/api/markets/"+id+"/resolve", `{"result":"yes"}`,
			middleware.ResolverKeyHeader, "nope")
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("oracle signature", func(t *testing.T) {
		id := s.createMarket(t)
		sig, err := s.signer.SignResolution(id, domain.SideNo)
		require.NoError(t, err)

		status, out := s.do(t, http.MethodPost, "/api/markets/"+id+"/resolve", `{"result":"no"}`,
			middleware.OracleSignatureHeader, sig)
		require.Equal(t, http.StatusOK, status, out)
		assert.Equal(t, "no", out["result"])
	})

	t.Run("signature for the other result", func(t *testing.T) {
		id := s.createMarket(t)
		sig, err := s.signer.SignResolution(id, domain.SideNo)
		require.NoError(t, err)

		status, _ := s.do(t, http.MethodPost, "/api/markets/"+id+"/resolve", `{"result":"yes"}`,
			middleware.OracleSignatureHeader, sig)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("resolution signature cannot close or resettle", func(t *testing.T) {
		id := s.createMarket(t)
		sig, err := s.signer.SignResolution(id, domain.SideYes)
		require.NoError(t, err)

		for _, action := range []string{"close", "resettle"} {
			status, _ := s.do(t, http.MethodPost, "/api/markets/"+id+"/"+action, `{"result":"yes"}`,
				middleware.OracleSignatureHeader, sig)
			assert.Equal(t, http.StatusForbidden, status, action)
		}

		status, market := s.do(t, http.MethodGet, "/api/markets/"+id, "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "open", market["status"])
	})

	t.Run("close needs a resolver", func(t *testing.T) {
		id := s.createMarket(t)
		status, _ := s.do(t, http.MethodPost, "/api/markets/"+id+"/close", "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{})

	resp, err := http.Get(s.URL + "/api/markets")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(s.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "marketledger_http_requests_total")
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{RateLimit: 2, RateWindow: time.Minute})

	for range 2 {
		status, _ := s.do(t, http.MethodGet, "/api/markets", "")
		require.Equal(t, http.StatusOK, status)
	}
	status, _ := s.do(t, http.MethodGet, "/api/markets", "")
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = s.do(t, http.MethodGet, "/api/markets", "", "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{CORSOrigins: []string{"https://app.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/markets", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
