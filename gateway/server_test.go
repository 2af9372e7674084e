package gateway

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"lendpool/gateway/middleware"
	"lendpool/lending"
	"lendpool/storage"
)

const testSecret = "gateway-test-secret"

type testHarness struct {
	server *Server
	vault  *lending.MemVault

	collateralFeed *lending.ManualFeed
	debtFeed       *lending.ManualFeed
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	vault := lending.NewMemVault()
	state := storage.NewState(storage.NewMemDB())
	engine := lending.NewEngine(state, vault, 18, 18)
	params := lending.RiskParameters{
		CollateralFactor:     big.NewInt(700_000_000_000_000_000),
		LiquidationThreshold: big.NewInt(800_000_000_000_000_000),
		LiquidationBonus:     big.NewInt(1_100_000_000_000_000_000),
	}
	require.NoError(t, engine.Bootstrap(params, big.NewInt(0)))

	collateralFeed := lending.NewManualFeed(8)
	debtFeed := lending.NewManualFeed(8)
	collateralFeed.Set(big.NewInt(200_000_000), time.Now())
	debtFeed.Set(big.NewInt(100_000_000), time.Now())
	require.NoError(t, engine.SetOracles(collateralFeed, debtFeed))

	cfg := Config{
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testSecret,
		},
		RateLimitPerMin: 100_000,
	}
	server := NewServer(engine, nil, collateralFeed, debtFeed, cfg, nil)
	return &testHarness{
		server:         server,
		vault:          vault,
		collateralFeed: collateralFeed,
		debtFeed:       debtFeed,
	}
}

func token(t *testing.T, scopes string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"scope": scopes,
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *testHarness) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func wadTokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

var (
	testUser    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testManager = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func TestHealthzNeedsNoAuth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/pool", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/pool", token(t, middleware.ScopeUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestManagerEndpointsNeedManagerScope(t *testing.T) {
	h := newHarness(t)
	body := amountRequest{Account: testManager.Hex(), Amount: "1000"}

	rec := h.do(t, http.MethodPost, "/v1/liquidity/provide", token(t, middleware.ScopeUser), body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	h.vault.Credit(lending.AssetDebt, testManager, big.NewInt(1000))
	rec = h.do(t, http.MethodPost, "/v1/liquidity/provide", token(t, middleware.ScopeManager), body)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDepositBorrowFlow(t *testing.T) {
	h := newHarness(t)
	user := token(t, middleware.ScopeUser)
	manager := token(t, middleware.ScopeManager)

	h.vault.Credit(lending.AssetDebt, testManager, wadTokens(1000))
	rec := h.do(t, http.MethodPost, "/v1/liquidity/provide", manager,
		amountRequest{Account: testManager.Hex(), Amount: wadTokens(1000).String()})
	require.Equal(t, http.StatusOK, rec.Code)

	h.vault.Credit(lending.AssetCollateral, testUser, wadTokens(100))
	rec = h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(100).String()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/borrow", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(120).String()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/accounts/"+testUser.Hex(), user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var account map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	require.Equal(t, wadTokens(120).String(), account["debt"])
	require.Equal(t, wadTokens(100).String(), account["collateral"])

	// Over the borrow limit: business rejection, not a validation error.
	rec = h.do(t, http.MethodPost, "/v1/borrow", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(30).String()})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRepayReportsApplied(t *testing.T) {
	h := newHarness(t)
	user := token(t, middleware.ScopeUser)
	manager := token(t, middleware.ScopeManager)

	h.vault.Credit(lending.AssetDebt, testManager, wadTokens(1000))
	h.do(t, http.MethodPost, "/v1/liquidity/provide", manager,
		amountRequest{Account: testManager.Hex(), Amount: wadTokens(1000).String()})
	h.vault.Credit(lending.AssetCollateral, testUser, wadTokens(100))
	h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(100).String()})
	h.do(t, http.MethodPost, "/v1/borrow", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(40).String()})

	h.vault.Credit(lending.AssetDebt, testUser, wadTokens(60))
	rec := h.do(t, http.MethodPost, "/v1/repay", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(100).String()})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, wadTokens(40).String(), body["applied"])
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t)
	user := token(t, middleware.ScopeUser)

	rec := h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: "not-an-address", Amount: "10"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: "ten"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaleOracleMapsToBadGateway(t *testing.T) {
	h := newHarness(t)
	user := token(t, middleware.ScopeUser)
	manager := token(t, middleware.ScopeManager)

	h.vault.Credit(lending.AssetDebt, testManager, wadTokens(100))
	h.do(t, http.MethodPost, "/v1/liquidity/provide", manager,
		amountRequest{Account: testManager.Hex(), Amount: wadTokens(100).String()})
	h.vault.Credit(lending.AssetCollateral, testUser, wadTokens(100))
	h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(100).String()})

	h.collateralFeed.Set(big.NewInt(200_000_000), time.Now().Add(-2*time.Hour))
	rec := h.do(t, http.MethodPost, "/v1/borrow", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(10).String()})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestManagerSetsPrice(t *testing.T) {
	h := newHarness(t)
	manager := token(t, middleware.ScopeManager)
	user := token(t, middleware.ScopeUser)

	rec := h.do(t, http.MethodPost, "/v1/prices/collateral", manager, priceRequest{Answer: "350000000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/prices", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prices map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prices))
	require.Equal(t, "3500000000000000000", prices["collateralPriceUsd"])
}

func TestPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	manager := token(t, middleware.ScopeManager)
	user := token(t, middleware.ScopeUser)

	rec := h.do(t, http.MethodPost, "/v1/pause", manager, pauseRequest{Paused: true})
	require.Equal(t, http.StatusOK, rec.Code)

	h.vault.Credit(lending.AssetCollateral, testUser, wadTokens(10))
	rec = h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(10).String()})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Reads stay available while paused.
	rec = h.do(t, http.MethodGet, "/v1/pool", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/pause", manager, pauseRequest{Paused: false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPost, "/v1/deposit", user,
		amountRequest{Account: testUser.Hex(), Amount: wadTokens(10).String()})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceNameDefaulted(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, "lendpool-gateway", h.server.service)

	named := NewServer(nil, nil, nil, nil, Config{ServiceName: "lendpoold"}, nil)
	require.Equal(t, "lendpoold", named.service)
}

func TestEventsDisabledWithoutIndexer(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/v1/events", token(t, middleware.ScopeUser), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
