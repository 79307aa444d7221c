package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffle-backend/internal/common/config"
	"raffle-backend/internal/common/logger"
	rafflehttp "raffle-backend/internal/features/raffle/delivery/http"
	rafflerepo "raffle-backend/internal/features/raffle/repository"
	rafflememory "raffle-backend/internal/features/raffle/repository/memory"
	rafflepostgres "raffle-backend/internal/features/raffle/repository/postgres"
	"raffle-backend/internal/features/raffle/seedvault"
	raffleservice "raffle-backend/internal/features/raffle/service"
	wallethttp "raffle-backend/internal/features/wallet/delivery/http"
	walletrepo "raffle-backend/internal/features/wallet/repository"
	walletmemory "raffle-backend/internal/features/wallet/repository/memory"
	walletpostgres "raffle-backend/internal/features/wallet/repository/postgres"
	apphttp "raffle-backend/internal/http"
	"raffle-backend/internal/platform/db"
	redisplatform "raffle-backend/internal/platform/redis"
	"raffle-backend/internal/workers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Init("raffle-backend", true)
		logger.Error().Err(err).Msg("config load failed")
		os.Exit(1)
	}

	log := logger.Init("raffle-backend", cfg.Debug)

	var (
		raffleRepo rafflerepo.RaffleRepository
		ledger     walletrepo.Ledger
	)
	if cfg.Database.URL != "" {
		pg, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open failed")
		}
		defer pg.Close()
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx, pg); err != nil {
				log.Fatal().Err(err).Msg("migrations failed")
			}
			log.Info().Msg("migrations applied")
		}
		raffleRepo = rafflepostgres.New(pg)
		ledger = walletpostgres.New(pg)
	} else {
		log.Warn().Msg("DATABASE_URL empty, using in-memory storage")
		raffleRepo = rafflememory.New()
		ledger = walletmemory.New()
	}

	var vault seedvault.Vault
	switch cfg.SeedVault.Backend {
	case "redis":
		rdb, err := redisplatform.Open(ctx,
			fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis open failed")
		}
		defer rdb.Close()
		vault = seedvault.NewRedis(rdb)
	case "derived":
		vault = seedvault.NewDerived(cfg.SeedVault.MasterSecret)
	default:
		vault = seedvault.NewMemory()
	}
	log.Info().Str("backend", cfg.SeedVault.Backend).Msg("seed vault ready")

	defaults := raffleservice.Defaults{
		Threshold:          cfg.Raffle.DefaultThreshold,
		EntryCost:          cfg.Raffle.EntryCost,
		WinnerSharePercent: cfg.Raffle.WinnerSharePercent,
		CommissionPercent:  cfg.Raffle.CommissionPercent,
		GraceSeconds:       cfg.Raffle.GracePeriodSeconds,
		AutoCreateNext:     cfg.Raffle.EnableAutoCreateNext,
		InitialBalance:     cfg.Raffle.InitialBalance,
	}
	raffleService := raffleservice.New(raffleRepo, ledger, vault, defaults, log)

	drawWorker := workers.NewDrawWorker(raffleService,
		time.Duration(cfg.Raffle.DrawTickIntervalSec)*time.Second, log)
	go drawWorker.Start(ctx)

	router := apphttp.NewRouter(cfg,
		rafflehttp.NewHandler(raffleService),
		wallethttp.NewHandler(ledger, cfg.Raffle.InitialBalance))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server stopped")
}
