package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendpool/gateway/middleware"
	"lendpool/indexer"
	"lendpool/lending"
	"lendpool/observability"
)

// EventStore is the query side of the event indexer. Nil disables the event
// endpoints.
type EventStore interface {
	AccountEvents(account string, limit int) ([]indexer.EventRecord, error)
	RecentEvents(limit int) ([]indexer.EventRecord, error)
	Liquidations(limit int) ([]indexer.EventRecord, error)
}

// Config carries the gateway's HTTP-facing settings.
type Config struct {
	Auth            middleware.AuthConfig
	RateLimitPerMin int
	ServiceName     string
}

// Server exposes the lending engine over HTTP. The engine rejects overlapping
// mutating calls outright, so the server serializes them behind a mutex and
// callers only ever see business errors.
type Server struct {
	engine *lending.Engine
	events EventStore

	collateralFeed *lending.ManualFeed
	debtFeed       *lending.ManualFeed

	log     *slog.Logger
	auth    *middleware.Authenticator
	limits  *middleware.RateLimiter
	service string

	mu     sync.Mutex
	paused atomic.Bool
}

// NewServer wires the HTTP layer. Feeds may be nil when prices are set from
// an external process instead of the manager endpoints.
func NewServer(engine *lending.Engine, events EventStore, collateralFeed, debtFeed *lending.ManualFeed, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 600
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lendpool-gateway"
	}
	return &Server{
		engine:         engine,
		events:         events,
		collateralFeed: collateralFeed,
		debtFeed:       debtFeed,
		log:            log,
		auth:           middleware.NewAuthenticator(cfg.Auth, log),
		limits:         middleware.NewRateLimiter(cfg.RateLimitPerMin),
		service:        cfg.ServiceName,
	}
}

// Handler builds the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.limits.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(middleware.ScopeUser))

			r.Get("/pool", s.handlePool)
			r.Get("/prices", s.handlePrices)
			r.Get("/accounts/{address}", s.handleAccount)
			r.Get("/accounts/{address}/events", s.handleAccountEvents)
			r.Get("/events", s.handleRecentEvents)
			r.Get("/liquidations", s.handleLiquidations)

			r.Post("/deposit", s.mutating("deposit", s.handleDeposit))
			r.Post("/withdraw", s.mutating("withdraw", s.handleWithdraw))
			r.Post("/borrow", s.mutating("borrow", s.handleBorrow))
			r.Post("/repay", s.mutating("repay", s.handleRepay))
			r.Post("/liquidate", s.mutating("liquidate", s.handleLiquidate))
			r.Post("/accrue", s.mutating("accrue", s.handleAccrue))
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(middleware.ScopeManager))

			r.Post("/liquidity/provide", s.mutating("provide_liquidity", s.handleProvideLiquidity))
			r.Post("/liquidity/withdraw", s.mutating("withdraw_liquidity", s.handleWithdrawLiquidity))
			r.Post("/params/risk", s.mutating("set_risk_params", s.handleSetRiskParams))
			r.Post("/params/interest", s.mutating("set_interest_rate", s.handleSetInterestRate))
			r.Post("/prices/collateral", s.handleSetPrice(s.collateralFeed))
			r.Post("/prices/debt", s.handleSetPrice(s.debtFeed))
			r.Post("/pause", s.handlePause)
		})
	})

	return otelhttp.NewHandler(r, s.service)
}

// mutating serializes the handler, enforces the pause switch, and records
// operation metrics.
func (s *Server) mutating(operation string, handler func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.paused.Load() {
			writeError(w, http.StatusServiceUnavailable, "pool is paused")
			return
		}
		s.mu.Lock()
		start := time.Now()
		err := handler(w, r)
		s.mu.Unlock()
		observability.PoolMetrics().Observe(operation, err, time.Since(start))
		if err != nil {
			s.log.Warn("operation failed", "operation", operation, "error", err)
			writeEngineError(w, err)
			return
		}
		s.publishGauges()
	}
}

func (s *Server) publishGauges() {
	data, err := s.engine.PoolData()
	if err != nil {
		return
	}
	observability.PoolMetrics().SetPoolGauges(
		data.TotalCollateral, data.TotalBorrows, data.AvailableLiquidity, data.Utilization, 18, 18)
}

// --- request / response types ---

type amountRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Borrower   string `json:"borrower"`
	Amount     string `json:"amount"`
}

type riskParamsRequest struct {
	CollateralFactor     string `json:"collateralFactor"`
	LiquidationThreshold string `json:"liquidationThreshold"`
	LiquidationBonus     string `json:"liquidationBonus"`
}

type rateRequest struct {
	RatePerSecond string `json:"ratePerSecond"`
}

type priceRequest struct {
	Answer string `json:"answer"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func decode(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, errors.New("invalid amount")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps engine failures to HTTP statuses: request problems to
// 400, business-rule rejections to 409, oracle unavailability to 502, and
// transient engine contention to 503.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lending.ErrZeroAmount),
		errors.Is(err, lending.ErrInvalidRiskParameters):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrNothingToRepay),
		errors.Is(err, lending.ErrSelfLiquidation),
		errors.Is(err, lending.ErrAccountHealthy),
		errors.Is(err, lending.ErrNoDebt),
		errors.Is(err, lending.ErrVaultInsufficientFunds):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lending.ErrInvalidPrice),
		errors.Is(err, lending.ErrStalePrice),
		errors.Is(err, lending.ErrOracleZero):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, lending.ErrReentrantCall),
		errors.Is(err, lending.ErrPoolNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request) {
	data, err := s.engine.PoolData()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"totalCollateral":    data.TotalCollateral.String(),
		"totalBorrows":       data.TotalBorrows.String(),
		"availableLiquidity": data.AvailableLiquidity.String(),
		"utilization":        data.Utilization.String(),
		"borrowIndex":        data.BorrowIndex.String(),
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	data, err := s.engine.PriceData()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"collateralPriceUsd": data.CollateralPriceUsd.String(),
		"debtPriceUsd":       data.DebtPriceUsd.String(),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := s.engine.AccountData(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address":      addr.Hex(),
		"collateral":   data.Collateral.String(),
		"debt":         data.Debt.String(),
		"healthFactor": data.HealthFactor.String(),
		"borrowLimit":  data.BorrowLimit.String(),
	})
}

func (s *Server) handleAccountEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event indexing disabled")
		return
	}
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.events.AccountEvents(addr.Hex(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, _ *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event indexing disabled")
		return
	}
	events, err := s.events.RecentEvents(100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleLiquidations(w http.ResponseWriter, _ *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event indexing disabled")
		return
	}
	events, err := s.events.Liquidations(100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) decodeAccountAmount(r *http.Request) (common.Address, *big.Int, error) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return common.Address{}, nil, err
	}
	addr, err := parseAddress(req.Account)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, amount, nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) error {
	addr, amount, err := s.decodeAccountAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err := s.engine.DepositCollateral(addr, amount); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) error {
	addr, amount, err := s.decodeAccountAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err := s.engine.WithdrawCollateral(addr, amount); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) error {
	addr, amount, err := s.decodeAccountAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err := s.engine.Borrow(addr, amount); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) error {
	addr, amount, err := s.decodeAccountAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	applied, err := s.engine.Repay(addr, amount)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"applied": applied.String()})
	return nil
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) error {
	var req liquidateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, "liquidator: "+err.Error())
		return nil
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, "borrower: "+err.Error())
		return nil
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	repaid, seized, err := s.engine.Liquidate(liquidator, borrower, amount)
	if err != nil {
		return err
	}
	observability.PoolMetrics().RecordLiquidation()
	writeJSON(w, http.StatusOK, map[string]string{
		"repaid": repaid.String(),
		"seized": seized.String(),
	})
	return nil
}

func (s *Server) handleAccrue(w http.ResponseWriter, _ *http.Request) error {
	if err := s.engine.AccrueInterest(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleProvideLiquidity(w http.ResponseWriter, r *http.Request) error {
	addr, amount, err := s.decodeAccountAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err := s.engine.ProvideLiquidity(addr, amount); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleWithdrawLiquidity(w http.ResponseWriter, r *http.Request) error {
	addr, amount, err := s.decodeAccountAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err := s.engine.WithdrawLiquidity(addr, amount); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleSetRiskParams(w http.ResponseWriter, r *http.Request) error {
	var req riskParamsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	factor, err := parseAmount(req.CollateralFactor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "collateralFactor: "+err.Error())
		return nil
	}
	threshold, err := parseAmount(req.LiquidationThreshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, "liquidationThreshold: "+err.Error())
		return nil
	}
	bonus, err := parseAmount(req.LiquidationBonus)
	if err != nil {
		writeError(w, http.StatusBadRequest, "liquidationBonus: "+err.Error())
		return nil
	}
	params := lending.RiskParameters{
		CollateralFactor:     factor,
		LiquidationThreshold: threshold,
		LiquidationBonus:     bonus,
	}
	if err := s.engine.SetRiskParameters(params); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleSetInterestRate(w http.ResponseWriter, r *http.Request) error {
	var req rateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	rate, err := parseAmount(req.RatePerSecond)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err := s.engine.SetInterestRate(rate); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleSetPrice(feed *lending.ManualFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			writeError(w, http.StatusNotFound, "manual feed disabled")
			return
		}
		var req priceRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		answer, err := parseAmount(req.Answer)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		feed.Set(answer, time.Now())
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.paused.Store(req.Paused)
	s.log.Info("pause switch changed", "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}
