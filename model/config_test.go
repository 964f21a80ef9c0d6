package model_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	p := writeConfig(t, `
Mode = "production"
FrontendURL = "https://billing.example.com"

[Servers.production]
Database = "postgresql"
DBName = "invoices"
DBUser = "app"
DBPassword = "from-file"
DBHost = "db"
`)
	t.Setenv("DATABASE_PASSWORD", "from-env")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := model.LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.Currency != "usd" || cfg.GenerationWorkers != 4 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.SchedulerInterval() != time.Hour {
		t.Errorf("SchedulerInterval = %s, want 1h", cfg.SchedulerInterval())
	}
	if cfg.SendTimeout() != 15*time.Second {
		t.Errorf("SendTimeout = %s, want 15s", cfg.SendTimeout())
	}
	if cfg.StripeSecretKey != "sk_test_123" {
		t.Errorf("StripeSecretKey = %q", cfg.StripeSecretKey)
	}
	if got := cfg.Server().DBPassword; got != "from-env" {
		t.Errorf("DBPassword = %q, want env override", got)
	}
}

func TestLoadConfig_MissingServerSection(t *testing.T) {
	p := writeConfig(t, `
Mode = "staging"

[Servers.production]
Database = "sqlite3"
DBName = "app.db"
`)
	if _, err := model.LoadConfig(p); err == nil {
		t.Fatal("expected error for missing [Servers.staging]")
	}
}

func TestInitDatabase_Memory(t *testing.T) {
	p := writeConfig(t, `
Mode = "development"

[Servers.development]
Database = "memory"
DBName = "initdb_test"
DBLogger = "silent"
`)
	cfg, err := model.LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	store, err := model.InitDatabase(cfg)
	if err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	defer store.Close()
	if err := store.Ping(t.Context()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
