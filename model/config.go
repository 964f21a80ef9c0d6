package model

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Basedir     string
	Mode        string
	Port        int
	FrontendURL string
	Currency    string

	MailAPIKey      string
	MailSecret      string
	MailFromAddress string
	MailFromName    string

	StripeSecretKey     string
	StripeWebhookSecret string

	SchedulerIntervalMinutes int
	GenerationWorkers        int
	SendTimeoutSeconds       int

	Servers map[string]server
}

type server struct {
	Database   string
	DBName     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBLogger   string
}

// Server returns the database settings of the active mode.
func (cfg *Config) Server() server {
	return cfg.Servers[cfg.Mode]
}

// SchedulerInterval is the pause between two scheduler ticks.
func (cfg *Config) SchedulerInterval() time.Duration {
	return time.Duration(cfg.SchedulerIntervalMinutes) * time.Minute
}

// SendTimeout bounds a single outbound email call.
func (cfg *Config) SendTimeout() time.Duration {
	return time.Duration(cfg.SendTimeoutSeconds) * time.Second
}

// LoadConfig reads the TOML file at path. Secrets can be overridden from the
// environment, and a .env file next to the binary is loaded when present.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err = toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()
	if _, ok := cfg.Servers[cfg.Mode]; !ok {
		return nil, fmt.Errorf("no [Servers.%s] section in %s", cfg.Mode, path)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Mode, "APP_MODE")
	override(&cfg.MailAPIKey, "MAIL_API_KEY")
	override(&cfg.MailSecret, "MAIL_SECRET")
	override(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	override(&cfg.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	if svr, ok := cfg.Servers[cfg.Mode]; ok {
		override(&svr.DBPassword, "DATABASE_PASSWORD")
		cfg.Servers[cfg.Mode] = svr
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = "development"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.MailFromName == "" {
		cfg.MailFromName = "Invoicing"
	}
	if cfg.SchedulerIntervalMinutes <= 0 {
		cfg.SchedulerIntervalMinutes = 60
	}
	if cfg.GenerationWorkers <= 0 {
		cfg.GenerationWorkers = 4
	}
	if cfg.SendTimeoutSeconds <= 0 {
		cfg.SendTimeoutSeconds = 15
	}
}

// shared helper for GORM logger
func gormLoggerFor(cfg *Config, svr server) *gorm.Config {
	gormConfig := &gorm.Config{TranslateError: true}
	switch svr.DBLogger {
	case "info":
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	case "silent":
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	default:
		if cfg.Mode == "development" {
			gormConfig.Logger = logger.Default.LogMode(logger.Info)
		} else {
			gormConfig.Logger = logger.Default.LogMode(logger.Silent)
		}
	}
	return gormConfig
}
