package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/brecho-erp/brecho-erp/internal/app"
	"github.com/brecho-erp/brecho-erp/internal/cashier"
	"github.com/brecho-erp/brecho-erp/internal/credit"
	"github.com/brecho-erp/brecho-erp/internal/exchange"
	"github.com/brecho-erp/brecho-erp/internal/platform/cache"
	"github.com/brecho-erp/brecho-erp/internal/platform/db"
	"github.com/brecho-erp/brecho-erp/internal/shared"
	"github.com/brecho-erp/brecho-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var creditCache credit.SummaryCachePort
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		creditCache = credit.NewCache(redisClient, cfg.CreditSummaryTTL)
	}

	idemStore := shared.NewIdempotencyStore(pool)

	creditRepo := credit.NewRepository(pool)
	creditService := credit.NewService(creditRepo, idemStore, creditCache)
	creditHandler := credit.NewHandler(logger, creditService)

	exchangeRepo := exchange.NewRepository(pool)
	exchangeService := exchange.NewService(exchangeRepo, idemStore)
	exchangeHandler := exchange.NewHandler(logger, exchangeService)

	cashierRepo := cashier.NewRepository(pool)
	cashierService := cashier.NewService(cashierRepo, idemStore)
	cashierHandler := cashier.NewHandler(logger, cashierService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CreditHandler:   creditHandler,
		ExchangeHandler: exchangeHandler,
		CashierHandler:  cashierHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
