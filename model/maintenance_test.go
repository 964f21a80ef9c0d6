package model_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

func TestSweepOverdue(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()
	sentAt := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

	mk := func(due time.Time, to model.InvoiceStatus) uint {
		inv := fixtures.MustCreateInvoice(t, store, fixtures.Invoice(data.Client.ID,
			fixtures.WithInvoiceDates(fixtures.Day(2024, time.January, 1), due)))
		if to != model.InvoiceStatusDraft {
			if _, err := store.ChangeInvoiceStatus(ctx, fixtures.DefaultOwnerID, inv.ID, to, sentAt); err != nil {
				t.Fatalf("ChangeInvoiceStatus %s: %v", to, err)
			}
		}
		return inv.ID
	}
	pastSent := mk(fixtures.Day(2024, time.January, 5), model.InvoiceStatusSent)
	dueToday := mk(fixtures.Day(2024, time.January, 10), model.InvoiceStatusSent)
	pastDraft := mk(fixtures.Day(2024, time.January, 5), model.InvoiceStatusDraft)
	pastPaid := mk(fixtures.Day(2024, time.January, 5), model.InvoiceStatusPaid)

	n, err := store.SweepOverdue(ctx, time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SweepOverdue: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}

	want := map[uint]model.InvoiceStatus{
		pastSent:  model.InvoiceStatusOverdue,
		dueToday:  model.InvoiceStatusSent,
		pastDraft: model.InvoiceStatusDraft,
		pastPaid:  model.InvoiceStatusPaid,
	}
	for id, status := range want {
		inv, err := store.LoadInvoice(ctx, id, fixtures.DefaultOwnerID)
		if err != nil {
			t.Fatalf("LoadInvoice %d: %v", id, err)
		}
		if inv.Status != status {
			t.Errorf("invoice %d status = %s, want %s", id, inv.Status, status)
		}
	}

	// idempotent
	n, err = store.SweepOverdue(ctx, time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC))
	if err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v; want 0, nil", n, err)
	}
}

func TestRunMaintenance_PrunesTokens(t *testing.T) {
	store := fixtures.NewTestStore(t)
	fixtures.SeedTestData(t, store)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	expired, _, err := store.CreateAPIToken(ctx, fixtures.DefaultOwnerID, nil, "old", "", &past)
	if err != nil {
		t.Fatalf("CreateAPIToken: %v", err)
	}
	live, _, err := store.CreateAPIToken(ctx, fixtures.DefaultOwnerID, nil, "live", "", nil)
	if err != nil {
		t.Fatalf("CreateAPIToken: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := model.RunMaintenance(ctx, store, logger, time.Now()); err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}

	if _, err := store.ValidateAPIToken(ctx, expired); !errors.Is(err, model.ErrTokenNotFound) {
		t.Errorf("expired token: err = %v, want ErrTokenNotFound", err)
	}
	if _, err := store.ValidateAPIToken(ctx, live); err != nil {
		t.Errorf("live token: %v", err)
	}
}
