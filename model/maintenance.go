package model

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

const maintenanceLockID = 91423001

// ErrMaintenanceRunning is returned when another process holds the
// maintenance lock.
var ErrMaintenanceRunning = errors.New("another maintenance run is in progress")

// SweepOverdue persists the overdue status for every sent or viewed invoice
// whose due date lies before the day of ref. It returns the number of
// invoices that changed.
func (s *Store) SweepOverdue(ctx context.Context, ref time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Invoice{}).
		Where("status IN ? AND due_date < ?", []string{string(InvoiceStatusSent), string(InvoiceStatusViewed)}, schedule.Day(ref)).
		Updates(map[string]any{"status": string(InvoiceStatusOverdue), "updated_at": time.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep overdue: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RunMaintenance executes housekeeping tasks. Every task is idempotent.
func RunMaintenance(ctx context.Context, s *Store, logger *slog.Logger, now time.Time) error {
	start := time.Now()
	logger.Info("maintenance start")

	unlock, err := tryAcquireLock(ctx, s)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	n, err := s.SweepOverdue(ctx, now)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("invoices marked overdue", "count", n)
	}

	pruned, err := deleteInvalidAPITokens(ctx, s, now)
	if err != nil {
		return fmt.Errorf("delete invalid API tokens: %w", err)
	}
	if pruned > 0 {
		logger.Info("api tokens pruned", "count", pruned)
	}

	if err := vacuumAnalyze(ctx, s); err != nil {
		return fmt.Errorf("vacuum/analyze: %w", err)
	}

	logger.Info("maintenance done", "duration", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// Postgres only; SQLite runs on a single connection anyway.
func tryAcquireLock(ctx context.Context, s *Store) (func(), error) {
	if !s.isPostgres() {
		return nil, nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	return sessionLock(ctx, sqlDB, "SELECT pg_try_advisory_lock($1)", "SELECT pg_advisory_unlock($1)", maintenanceLockID)
}

// sessionLock runs try on a connection taken out of the pool and keeps that
// connection until the returned release func is called. Session scoped locks
// must be released on the connection that took them.
func sessionLock(ctx context.Context, db *sql.DB, try, release string, args ...any) (func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var got bool
	if err := conn.QueryRowContext(ctx, try, args...).Scan(&got); err != nil {
		conn.Close()
		return nil, err
	}
	if !got {
		conn.Close()
		return nil, ErrMaintenanceRunning
	}
	return func() {
		defer conn.Close()
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), release, args...); err != nil {
			// a closed session drops its locks, so discard the connection
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}, nil
}

// deleteInvalidAPITokens removes tokens that are disabled or expired.
func deleteInvalidAPITokens(ctx context.Context, s *Store, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("disabled = ? OR (expires_at IS NOT NULL AND expires_at < ?)", true, now).
		Unscoped().
		Delete(&APIToken{})
	return res.RowsAffected, res.Error
}

func vacuumAnalyze(ctx context.Context, s *Store) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	switch s.db.Dialector.Name() {
	case "postgres":
		_, err = sqlDB.ExecContext(ctx, "VACUUM (ANALYZE)")
	case "sqlite":
		_, err = sqlDB.ExecContext(ctx, "PRAGMA optimize")
	}
	return err
}
