package model

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

// InvoiceFilter narrows and orders an invoice listing.
type InvoiceFilter struct {
	Status   string // persisted status, empty for all
	ClientID uint
	Limit    int
	Cursor   string
	// Sort is one of date_desc (default), date_asc, due_asc, created_desc.
	Sort string
	// AsOf, when set, filters Status by the effective status at that day, so
	// past due sent or viewed invoices count as overdue before the sweep ran.
	AsOf time.Time
}

// ListInvoices returns one page of the owner's invoices without items.
func (s *Store) ListInvoices(ctx context.Context, ownerID uint, q InvoiceFilter) ([]Invoice, string, error) {
	db := s.db.WithContext(ctx).Model(&Invoice{}).Where("owner_id = ?", ownerID)
	db = filterStatus(db, InvoiceStatus(q.Status), q.AsOf)
	if q.ClientID != 0 {
		db = db.Where("client_id = ?", q.ClientID)
	}

	switch q.Sort {
	case "date_asc":
		db = db.Order("issue_date asc").Order("id asc")
	case "due_asc":
		db = db.Order("due_date asc").Order("id asc")
	case "created_desc":
		db = db.Order("created_at desc").Order("id desc")
	default:
		db = db.Order("issue_date desc").Order("id desc")
	}

	return findPage[Invoice](db, q.Limit, q.Cursor)
}

func filterStatus(db *gorm.DB, status InvoiceStatus, asOf time.Time) *gorm.DB {
	if status == "" {
		return db
	}
	if asOf.IsZero() {
		return db.Where("status = ?", status)
	}
	day := schedule.Day(asOf)
	outstanding := []string{string(InvoiceStatusSent), string(InvoiceStatusViewed)}
	switch {
	case status == InvoiceStatusOverdue:
		return db.Where("(status = ? OR (status IN ? AND due_date < ?))", status, outstanding, day)
	case status.IsOutstanding():
		return db.Where("status = ? AND due_date >= ?", status, day)
	default:
		return db.Where("status = ?", status)
	}
}

// InvoicesForOwner returns every invoice of ownerID without items, newest
// first.
func (s *Store) InvoicesForOwner(ctx context.Context, ownerID uint) ([]Invoice, error) {
	var invs []Invoice
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("issue_date desc, id desc").
		Find(&invs).Error
	return invs, err
}
