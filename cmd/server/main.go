// Package main is the entry point for the Valora valuation data service.
// It keeps the market data behind a personal valuation ledger fresh: security
// metadata, prices, and FX rates, plus the base-currency reconciliation state.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/valora-app/valora/internal/clients/fxfeed"
	"github.com/valora-app/valora/internal/clients/marketfeed"
	"github.com/valora-app/valora/internal/config"
	"github.com/valora-app/valora/internal/database"
	"github.com/valora-app/valora/internal/events"
	"github.com/valora-app/valora/internal/fx"
	"github.com/valora-app/valora/internal/modules/ledger"
	"github.com/valora-app/valora/internal/modules/securities"
	"github.com/valora-app/valora/internal/modules/settings"
	"github.com/valora-app/valora/internal/reconciliation"
	"github.com/valora-app/valora/internal/refresh"
	"github.com/valora-app/valora/internal/scheduler"
	"github.com/valora-app/valora/internal/server"
	"github.com/valora-app/valora/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Valora")

	// Databases: config (settings), history (prices, fx, metadata),
	// cache (run history), ledger (read-only securities source).
	openDB := func(filename, name string, profile database.DatabaseProfile) *database.DB {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, filename),
			Profile: profile,
			Name:    name,
		})
		if err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
		}
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
		}
		return db
	}

	configDB := openDB("config.db", "config", database.ProfileStandard)
	historyDB := openDB("history.db", "history", database.ProfileStandard)
	cacheDB := openDB("cache.db", "cache", database.ProfileCache)
	ledgerDB := openDB("ledger.db", "ledger", database.ProfileLedger)
	defer configDB.Close()
	defer historyDB.Close()
	defer cacheDB.Close()
	defer ledgerDB.Close()

	// Repositories and stores
	settingsRepo := settings.NewRepository(configDB.Conn(), log)
	securitiesStore := securities.NewStore(historyDB.Conn(), log)
	fxStore := fx.NewObservationStore(historyDB.Conn(), log)
	historyStore := refresh.NewHistoryStore(cacheDB.Conn(), log)
	ledgerReader := ledger.NewReader(ledgerDB.Conn(), log)

	// Services
	tracker := reconciliation.NewTracker(settingsRepo, log)
	resolver := fx.NewResolver(fxStore, log)
	bus := events.NewBus(log)

	// Outbound feed clients
	fxFeed := fxfeed.NewClient(cfg.FxFeedURL, log)
	marketFeed := marketfeed.NewClient(cfg.MarketFeedURL, log)

	// Refresh runtime
	fetchers := []refresh.CategoryFetcher{
		refresh.NewMetadataFetcher(ledgerReader, marketFeed, securitiesStore, log),
		refresh.NewPriceFetcher(ledgerReader, marketFeed, securitiesStore, log),
		refresh.NewFxFetcher(ledgerReader, tracker, fxFeed, fxStore, log),
	}
	manager := refresh.NewManager(fetchers, historyStore, tracker, bus, log)
	projector := refresh.NewProjector(manager, historyStore, log)

	// Nightly full refresh
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshSchedule, scheduler.NewNightlyRefreshJob(manager)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register nightly refresh job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:                    log,
		Port:                   cfg.Port,
		DevMode:                cfg.DevMode,
		DataDir:                cfg.DataDir,
		ConfigDB:               configDB,
		HistoryDB:              historyDB,
		CacheDB:                cacheDB,
		LedgerDB:               ledgerDB,
		RefreshHandlers:        refresh.NewHandlers(manager, projector),
		FxHandlers:             fx.NewHandlers(resolver, fxStore),
		ReconciliationHandlers: reconciliation.NewHandlers(tracker),
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Valora stopped")
}
