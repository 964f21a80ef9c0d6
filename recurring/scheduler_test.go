package recurring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	tmpl := fixtures.MustCreateTemplate(t, store, fixtures.Template(data.Client.ID))

	now := func() time.Time { return time.Date(2024, time.January, 20, 8, 0, 0, 0, time.UTC) }
	e := NewEngine(store, nil, discard, Options{Now: now})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sweeps int
	s := &Scheduler{
		Engine:   e,
		Interval: time.Hour,
		Logger:   discard,
		Maintenance: func(ctx context.Context, at time.Time) error {
			sweeps++
			if !at.Equal(now()) {
				t.Errorf("maintenance time = %s", at)
			}
			err := model.RunMaintenance(ctx, store, discard, at)
			cancel()
			return err
		},
	}

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: err = %v, want context.Canceled", err)
	}
	if sweeps != 1 {
		t.Errorf("maintenance ran %d times, want 1", sweeps)
	}
	invs, err := store.GeneratedInvoices(context.Background(), fixtures.DefaultOwnerID, tmpl.ID)
	if err != nil {
		t.Fatalf("GeneratedInvoices: %v", err)
	}
	if len(invs) != 1 {
		t.Errorf("invoices = %d, want 1", len(invs))
	}
}
