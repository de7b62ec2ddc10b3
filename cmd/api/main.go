package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/toyiyo/nimble-pnl-sub016/internal/api"
	"github.com/toyiyo/nimble-pnl-sub016/internal/config"
	"github.com/toyiyo/nimble-pnl-sub016/internal/inventory"
	"github.com/toyiyo/nimble-pnl-sub016/internal/ledger"
	"github.com/toyiyo/nimble-pnl-sub016/internal/revenue"
	"github.com/toyiyo/nimble-pnl-sub016/internal/security"
	"github.com/toyiyo/nimble-pnl-sub016/internal/statement"
	"github.com/toyiyo/nimble-pnl-sub016/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		ledgerStore  ledger.Store
		stockStore   inventory.StockStore
		sessionStore inventory.SessionStore
	)

	switch {
	case cfg.UsesPostgres():
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pls := ledger.NewPostgresStore(pool)
		pss := inventory.NewPostgresStockStore(pool)
		prs := inventory.NewPostgresSessionStore(pool)
		for _, m := range []func(context.Context) error{pls.Migrate, pss.Migrate, prs.Migrate} {
			if err := m(ctx); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
		}
		ledgerStore, stockStore, sessionStore = pls, pss, prs

	case cfg.DatabaseURL != "":
		db, err := ledger.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open sqlite database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		sls, err := ledger.NewSQLiteStore(db)
		if err != nil {
			logger.Error("failed to init sqlite ledger store", "error", err)
			os.Exit(1)
		}
		// Stock movements and sessions stay in-memory in embedded
		// mode; only the ledger itself is durable.
		ledgerStore = sls
		stockStore = inventory.NewMemoryStockStore()
		sessionStore = inventory.NewMemorySessionStore()

	default:
		logger.Warn("DATABASE_URL not set, running with in-memory stores")
		ledgerStore = ledger.NewMemoryStore()
		stockStore = inventory.NewMemoryStockStore()
		sessionStore = inventory.NewMemorySessionStore()
	}

	auditor := audit.NewChainLogger()

	ledgerService := ledger.NewService(ledgerStore, logger)
	ledgerService.SetAuditor(auditor)

	for _, rid := range cfg.RestaurantIDs() {
		if err := ledgerService.EnsureChart(ctx, rid); err != nil {
			logger.Error("failed to provision chart of accounts", "restaurant_id", rid, "error", err)
			os.Exit(1)
		}
	}

	stock := inventory.NewStockLedger(stockStore)
	catalog := inventory.NewMemoryCatalog()
	if cfg.CatalogFile != "" {
		if err := catalog.LoadFile(cfg.CatalogFile); err != nil {
			logger.Error("failed to load product catalog", "path", cfg.CatalogFile, "error", err)
			os.Exit(1)
		}
	}
	sessions := inventory.NewManager(sessionStore, stock, ledgerService, catalog, logger)
	recognizer := revenue.NewRecognizer(ledgerService, logger)
	compiler := statement.NewCompiler(ledgerService)

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "pnl_api",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: float64(cfg.RateLimitRefillPerSec),
		}
	}

	allowlist, err := security.ParseCIDRAllowlist(strings.Split(cfg.IPAllowlist, ","))
	if err != nil {
		logger.Error("invalid API_IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		Ledger:       ledgerService,
		Compiler:     compiler,
		Recognizer:   recognizer,
		Stock:        stock,
		Sessions:     sessions,
		Catalog:      catalog,
		Auditor:      auditor,
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	if cfg.TLSEnabled() {
		if err := security.VerifyTLSFiles(cfg.TLSCert, cfg.TLSKey, cfg.TLSCA); err != nil {
			logger.Error("TLS files missing", "error", err)
			os.Exit(1)
		}
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile: cfg.TLSCert,
			KeyFile:  cfg.TLSKey,
			CAFile:   cfg.TLSCA,
		})
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("pnl api listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
