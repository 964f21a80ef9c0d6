package model

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSessionLock_HoldsOneConnection(t *testing.T) {
	db, err := OpenMemory(t.Name(), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	ctx := context.Background()

	release, err := sessionLock(ctx, sqlDB, "SELECT 1", "SELECT 1")
	if err != nil {
		t.Fatalf("sessionLock: %v", err)
	}
	if inUse := sqlDB.Stats().InUse; inUse != 1 {
		t.Errorf("connections in use while locked = %d, want 1", inUse)
	}
	release()
	if inUse := sqlDB.Stats().InUse; inUse != 0 {
		t.Errorf("connections in use after release = %d, want 0", inUse)
	}

	// a refused lock hands the connection back immediately
	if _, err := sessionLock(ctx, sqlDB, "SELECT 0", "SELECT 1"); !errors.Is(err, ErrMaintenanceRunning) {
		t.Errorf("refused lock: err = %v, want ErrMaintenanceRunning", err)
	}
	if inUse := sqlDB.Stats().InUse; inUse != 0 {
		t.Errorf("connections in use after refusal = %d, want 0", inUse)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		t.Errorf("pool unusable after locking: %v", err)
	}
}
