package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"lendpool/config"
	"lendpool/gateway"
	"lendpool/gateway/middleware"
	"lendpool/indexer"
	"lendpool/lending"
	"lendpool/observability/logging"
	telemetry "lendpool/observability/otel"
	"lendpool/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "lendpool.toml", "path to lendpoold config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup("lendpoold", cfg.Environment, logging.Rotation{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	if cfg.OTLPEndpoint != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			Environment: cfg.Environment,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Headers:     telemetry.ParseHeaders(cfg.OTLPHeaders),
			Metrics:     cfg.TelemetryMetrics,
			Traces:      cfg.TelemetryTraces,
		})
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("open state database: %v", err)
	}
	defer db.Close()

	vault := lending.NewMemVault()
	engine := lending.NewEngine(storage.NewState(db), vault, cfg.CollateralDecimals, cfg.DebtDecimals)
	params := lending.RiskParameters{
		CollateralFactor:     cfg.BigParam(cfg.CollateralFactor),
		LiquidationThreshold: cfg.BigParam(cfg.LiquidationThreshold),
		LiquidationBonus:     cfg.BigParam(cfg.LiquidationBonus),
	}
	if err := engine.Bootstrap(params, cfg.BigParam(cfg.InterestRatePerSecond)); err != nil {
		log.Fatalf("bootstrap pool: %v", err)
	}

	collateralFeed := lending.NewManualFeed(cfg.OracleDecimals)
	debtFeed := lending.NewManualFeed(cfg.OracleDecimals)
	if err := engine.SetOracles(collateralFeed, debtFeed); err != nil {
		log.Fatalf("wire oracles: %v", err)
	}

	events, err := indexer.Open(cfg.PostgresDSN, cfg.EventDBPath, logger)
	if err != nil {
		log.Fatalf("open event indexer: %v", err)
	}
	engine.SetEmitter(events)

	server := gateway.NewServer(engine, events, collateralFeed, debtFeed, gateway.Config{
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.AuthSecret,
		},
		RateLimitPerMin: cfg.RateLimitPerMin,
		ServiceName:     "lendpoold",
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendpoold listening", "address", cfg.ListenAddress, "env", strings.TrimSpace(cfg.Environment))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}
