//go:build sqlite

package main

import (
	"fmt"
	"path/filepath"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // CGO!

	"github.com/njrobinson96/InvoiceNinja2/model"
)

func migrationsDir() string { return "migrations/sqlite3" }

// migrateDSN points at the same file InitDatabase opens.
func migrateDSN(cfg *model.Config) string {
	dbPath := filepath.Join(cfg.Basedir, "db", cfg.Server().DBName)
	if !filepath.IsAbs(dbPath) {
		dbPath = "./" + dbPath
	}
	return fmt.Sprintf("sqlite3://%s?_foreign_keys=on&_journal_mode=WAL",
		filepath.ToSlash(dbPath))
}
