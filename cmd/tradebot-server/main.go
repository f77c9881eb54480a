package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradebot/internal/accounts"
	"tradebot/internal/broker"
	"tradebot/internal/config"
	"tradebot/internal/engine"
	"tradebot/internal/httpapi"
	"tradebot/internal/journal"
	"tradebot/internal/risk"
	"tradebot/internal/router"
	"tradebot/internal/slackbot"
	"tradebot/internal/util"
)

func main() {
	// A missing .env is fine; real deployments set env vars directly.
	godotenv.Load()

	cfgPath := "config/tradebot.yaml"
	if p := os.Getenv("TRADEBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)

	brokers := make(map[string]broker.Broker, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		brokers[a.ID] = broker.NewAlpacaBroker(a.ID, a.APIKey, a.APISecret, a.BaseURL, a.DataURL)
	}

	strategy, err := accounts.NewStrategy(cfg.Assignment.Strategy)
	if err != nil {
		log.Fatalf("failed to build assignment strategy: %v", err)
	}
	manager := accounts.NewManager(cfg.Accounts, strategy, cfg.Assignment.FilePath, logger)

	multi := router.New(manager, brokers, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := multi.StartRefresh(ctx, cfg.Server.RefreshCron); err != nil {
		log.Fatalf("failed to start account status refresh: %v", err)
	}
	defer multi.StopRefresh()

	analyzer, err := risk.NewAnalyzer(cfg.Risk, logger)
	if err != nil {
		log.Fatalf("failed to build risk analyzer: %v", err)
	}
	limits := risk.NewLimits(cfg.Risk)

	var store *journal.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = journal.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open order journal: %v", err)
		}
		defer store.Close()
	}

	var jnl engine.Journal
	if store != nil {
		jnl = store
	}
	eng := engine.New(multi, limits, analyzer, jnl, logger)

	if cfg.Server.Port > 0 {
		ops := httpapi.NewServer(cfg, manager, multi, jnl, logger)
		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: ops.Handler(),
		}
		go func() {
			logger.Info("ops API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops API server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	bot := slackbot.New(cfg, eng, manager, multi, logger)
	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("slack bot error: %v", err)
	}
	logger.Info("shutting down")
}
