// Package dashboard aggregates an owner's invoices into the figures shown on
// the start page.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

const (
	recentLimit   = 5
	upcomingLimit = 3
	upcomingDays  = 30
)

// UnknownClient is shown for invoices whose client cannot be resolved.
const UnknownClient = "Unknown Client"

// InvoiceSummary is one row of the recent invoices list.
type InvoiceSummary struct {
	ID          uint                `json:"id"`
	Number      string              `json:"invoice_number"`
	ClientID    uint                `json:"client_id"`
	ClientName  string              `json:"client_name"`
	IssueDate   time.Time           `json:"issue_date"`
	DueDate     time.Time           `json:"due_date"`
	Status      model.InvoiceStatus `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
}

// UpcomingPayment is an unpaid invoice falling due soon.
type UpcomingPayment struct {
	InvoiceSummary
	DaysUntilDue int `json:"days_until_due"`
}

// Metrics is the dashboard of one owner. Statuses are effective statuses:
// a delivered invoice past its due date counts as overdue even if the stored
// status has not been swept yet.
type Metrics struct {
	PendingAmount    decimal.Decimal   `json:"pending_amount"`
	PaidAmount       decimal.Decimal   `json:"paid_amount"`
	OverdueAmount    decimal.Decimal   `json:"overdue_amount"`
	TotalClients     int               `json:"total_clients"`
	RecentInvoices   []InvoiceSummary  `json:"recent_invoices"`
	UpcomingPayments []UpcomingPayment `json:"upcoming_payments"`
}

// Compute derives the metrics from the given invoices and client names
// (keyed by client id) at now.
func Compute(invoices []model.Invoice, clients map[uint]string, now time.Time) Metrics {
	m := Metrics{
		PendingAmount:    decimal.Zero,
		PaidAmount:       decimal.Zero,
		OverdueAmount:    decimal.Zero,
		TotalClients:     len(clients),
		RecentInvoices:   []InvoiceSummary{},
		UpcomingPayments: []UpcomingPayment{},
	}
	today := schedule.Day(now)
	horizon := schedule.AddDays(today, upcomingDays)

	var upcoming []UpcomingPayment
	for i := range invoices {
		inv := &invoices[i]
		status := model.ComputeStatus(inv, now)
		switch status {
		case model.InvoiceStatusSent, model.InvoiceStatusViewed:
			m.PendingAmount = m.PendingAmount.Add(inv.TotalAmount)
		case model.InvoiceStatusPaid:
			m.PaidAmount = m.PaidAmount.Add(inv.TotalAmount)
		case model.InvoiceStatusOverdue:
			m.OverdueAmount = m.OverdueAmount.Add(inv.TotalAmount)
		}

		due := schedule.Day(inv.DueDate)
		if status != model.InvoiceStatusPaid && !due.Before(today) && !due.After(horizon) {
			upcoming = append(upcoming, UpcomingPayment{
				InvoiceSummary: summarize(inv, status, clients),
				DaysUntilDue:   schedule.DaysUntil(now, due),
			})
		}
	}

	recent := make([]*model.Invoice, len(invoices))
	for i := range invoices {
		recent[i] = &invoices[i]
	}
	sort.SliceStable(recent, func(i, j int) bool {
		a, b := recent[i], recent[j]
		if !a.IssueDate.Equal(b.IssueDate) {
			return a.IssueDate.After(b.IssueDate)
		}
		return a.ID > b.ID
	})
	for _, inv := range recent[:min(recentLimit, len(recent))] {
		m.RecentInvoices = append(m.RecentInvoices, summarize(inv, model.ComputeStatus(inv, now), clients))
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		a, b := upcoming[i], upcoming[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ID < b.ID
	})
	m.UpcomingPayments = append(m.UpcomingPayments, upcoming[:min(upcomingLimit, len(upcoming))]...)
	return m
}

func summarize(inv *model.Invoice, status model.InvoiceStatus, clients map[uint]string) InvoiceSummary {
	name, ok := clients[inv.ClientID]
	if !ok || name == "" {
		name = UnknownClient
	}
	return InvoiceSummary{
		ID:          inv.ID,
		Number:      inv.Number,
		ClientID:    inv.ClientID,
		ClientName:  name,
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		Status:      status,
		TotalAmount: inv.TotalAmount,
	}
}

// Source is the read access Load needs.
type Source interface {
	InvoicesForOwner(ctx context.Context, ownerID uint) ([]model.Invoice, error)
	ListClients(ctx context.Context, ownerID uint) ([]model.Client, error)
}

// Load reads the owner's invoices and clients and computes the metrics.
func Load(ctx context.Context, src Source, ownerID uint, now time.Time) (Metrics, error) {
	invoices, err := src.InvoicesForOwner(ctx, ownerID)
	if err != nil {
		return Metrics{}, err
	}
	clients, err := src.ListClients(ctx, ownerID)
	if err != nil {
		return Metrics{}, err
	}
	names := make(map[uint]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	return Compute(invoices, names, now), nil
}
