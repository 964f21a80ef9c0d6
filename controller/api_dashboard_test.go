package controller

import (
	"net/http"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

func TestAPIDashboard(t *testing.T) {
	a := setupTestAPI(t)
	client := a.data.Client.ID

	// past due but not swept yet
	fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(client,
		fixtures.WithInvoiceStatus(model.InvoiceStatusSent),
		fixtures.WithInvoiceItems(fixtures.Item("Old", "1", "100"))))
	dueSoon := fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(client,
		fixtures.WithInvoiceStatus(model.InvoiceStatusSent),
		fixtures.WithInvoiceDates(fixtures.Day(2024, time.February, 1), fixtures.Day(2024, time.February, 20)),
		fixtures.WithInvoiceItems(fixtures.Item("Current", "2", "100"))))
	fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(client,
		fixtures.WithInvoiceStatus(model.InvoiceStatusPaid),
		fixtures.WithInvoiceItems(fixtures.Item("Settled", "1", "50"))))
	fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(client,
		fixtures.WithInvoiceItems(fixtures.Item("Draft", "1", "999"))))

	rec := a.call(t, http.MethodGet, "/api/v1/dashboard/metrics", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	got := decode[APIDashboard](t, rec)

	if got.PendingAmount != "200.00" || got.PaidAmount != "50.00" || got.OverdueAmount != "100.00" {
		t.Errorf("amounts = pending %s paid %s overdue %s", got.PendingAmount, got.PaidAmount, got.OverdueAmount)
	}
	if got.TotalClients != 1 || len(got.RecentInvoices) != 4 {
		t.Errorf("clients = %d recent = %d", got.TotalClients, len(got.RecentInvoices))
	}
	if got.RecentInvoices[0].ID != dueSoon.ID {
		t.Errorf("most recent invoice = %d, want %d", got.RecentInvoices[0].ID, dueSoon.ID)
	}
	if len(got.UpcomingPayments) != 1 {
		t.Fatalf("upcoming = %+v", got.UpcomingPayments)
	}
	up := got.UpcomingPayments[0]
	if up.ID != dueSoon.ID || up.DaysUntilDue != 10 || up.ClientName != "Acme Corp" {
		t.Errorf("upcoming = %+v", up)
	}

	// another owner sees an empty dashboard
	other := fixtures.SeedOwner(t, a.store, "other@example.com")
	rec = a.call(t, http.MethodGet, "/api/v1/dashboard/metrics", nil, other)
	wantStatus(t, rec, http.StatusOK)
	empty := decode[APIDashboard](t, rec)
	if empty.PendingAmount != "0.00" || empty.TotalClients != 0 || len(empty.RecentInvoices) != 0 {
		t.Errorf("foreign dashboard = %+v", empty)
	}
}
