//go:build !postgres && !sqlite

package main

import "github.com/njrobinson96/InvoiceNinja2/model"

// Without a database tag the migrate command reports that it is unavailable.
func migrationsDir() string             { return "" }
func migrateDSN(_ *model.Config) string { return "" }
