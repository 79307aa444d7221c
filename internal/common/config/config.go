package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Database struct {
		// Empty URL switches the service to the in-memory drivers (local dev).
		URL         string `env:"DATABASE_URL" envDefault:""`
		AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Telegram struct {
		BotToken string  `env:"BOT_TOKEN" envDefault:""`
		AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`
	}

	Raffle struct {
		DefaultThreshold     int64 `env:"DEFAULT_THRESHOLD" envDefault:"1000"`
		EntryCost            int64 `env:"ENTRY_COST" envDefault:"1"`
		WinnerSharePercent   int   `env:"WINNER_SHARE_PERCENT" envDefault:"70"`
		CommissionPercent    int   `env:"COMMISSION_PERCENT" envDefault:"30"`
		GracePeriodSeconds   int64 `env:"GRACE_PERIOD_SECONDS" envDefault:"30"`
		EnableAutoCreateNext bool  `env:"ENABLE_AUTO_CREATE_NEXT" envDefault:"true"`
		InitialBalance       int64 `env:"INITIAL_BALANCE" envDefault:"100"`
		DrawTickIntervalSec  int   `env:"DRAW_TICK_INTERVAL_SEC" envDefault:"15"`
	}

	SeedVault struct {
		// Backend: memory, redis or derived.
		Backend      string `env:"SEED_VAULT" envDefault:"memory"`
		MasterSecret string `env:"SEED_MASTER_SECRET" envDefault:""`
	}
}

func Load() (*Config, error) {
	// Missing .env is fine; in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Raffle.WinnerSharePercent+cfg.Raffle.CommissionPercent != 100 {
		return nil, fmt.Errorf("winner share (%d%%) + commission (%d%%) must equal 100",
			cfg.Raffle.WinnerSharePercent, cfg.Raffle.CommissionPercent)
	}
	if cfg.Raffle.EntryCost <= 0 {
		return nil, fmt.Errorf("entry cost must be positive, got %d", cfg.Raffle.EntryCost)
	}
	if cfg.Raffle.DefaultThreshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %d", cfg.Raffle.DefaultThreshold)
	}
	switch cfg.SeedVault.Backend {
	case "memory", "redis", "derived":
	default:
		return nil, fmt.Errorf("unknown seed vault backend %q (want memory, redis or derived)",
			cfg.SeedVault.Backend)
	}
	if cfg.SeedVault.Backend == "derived" && cfg.SeedVault.MasterSecret == "" {
		return nil, fmt.Errorf("SEED_MASTER_SECRET is required for the derived seed vault")
	}

	return cfg, nil
}
