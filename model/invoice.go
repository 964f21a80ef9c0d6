package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

type Invoice struct {
	ID                  uint `gorm:"primarykey"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	OwnerID             uint            `gorm:"not null;uniqueIndex:ux_invoice_owner_number;index:idx_invoice_owner_status"`
	ClientID            uint            `gorm:"not null;index"`
	Number              string          `gorm:"not null;uniqueIndex:ux_invoice_owner_number"`
	Counter             uint            `gorm:"not null;default:0"`
	IssueDate           time.Time       `gorm:"not null;index"`
	DueDate             time.Time       `gorm:"not null;index"`
	Status              InvoiceStatus   `gorm:"type:text;not null;default:draft;check:status IN ('draft','sent','viewed','paid','overdue');index:idx_invoice_owner_status"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	Currency            string
	Notes               string
	IsRecurring         bool               `gorm:"not null;default:false"`
	RecurringFrequency  schedule.Frequency `gorm:"type:text"`
	LastSentDate        *time.Time
	RecurringTemplateID *uint      `gorm:"uniqueIndex:ux_invoice_occurrence"`
	OccurrenceDate      *time.Time `gorm:"uniqueIndex:ux_invoice_occurrence"`
	PaymentReference    string
	Items               []InvoiceItem `gorm:"constraint:OnDelete:CASCADE"`
}

// InvoiceItem is one line of an invoice. Amount is always quantity times
// unit price, computed by the store.
type InvoiceItem struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	OwnerID     uint            `gorm:"not null;index"`
	InvoiceID   uint            `gorm:"not null;index"`
	Position    int             `gorm:"not null;default:0"`
	Description string          `gorm:"not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// RecomputeTotal derives every line amount and the invoice total from the
// quantities and unit prices.
func (inv *Invoice) RecomputeTotal() {
	total := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Amount = lineAmount(it.Quantity, it.UnitPrice)
		total = total.Add(it.Amount)
	}
	inv.TotalAmount = total
}

func (inv *Invoice) normalize() {
	inv.IssueDate = schedule.Day(inv.IssueDate)
	inv.DueDate = schedule.Day(inv.DueDate)
	inv.Number = strings.TrimSpace(inv.Number)
	if inv.Status == "" {
		inv.Status = InvoiceStatusDraft
	}
}

func (inv *Invoice) validate() error {
	if inv.OwnerID == 0 {
		return invalid("owner_id", "is required")
	}
	if inv.IssueDate.IsZero() {
		return invalid("issue_date", "is required")
	}
	if inv.DueDate.IsZero() {
		return invalid("due_date", "is required")
	}
	if !inv.Status.Valid() {
		return invalid("status", fmt.Sprintf("unknown status %q", inv.Status))
	}
	if inv.RecurringFrequency != "" && !inv.RecurringFrequency.Valid() {
		return invalid("recurring_frequency", fmt.Sprintf("unknown frequency %q", inv.RecurringFrequency))
	}
	for _, it := range inv.Items {
		if err := validateLine(it.Description, it.Quantity, it.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

// CreateInvoice stores inv together with its items in one transaction. Line
// amounts and the total are recomputed; caller supplied values are ignored.
// An empty Number is filled from the owner's number template.
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	inv.ID = 0
	inv.normalize()
	if err := inv.validate(); err != nil {
		return err
	}
	inv.RecomputeTotal()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clientBelongsTo(tx, inv.ClientID, inv.OwnerID); err != nil {
			return err
		}
		err := createInvoice(tx, inv)
		if errors.Is(err, errDuplicate) {
			return &ValidationError{Field: "number", Message: fmt.Sprintf("%q is already in use", inv.Number)}
		}
		return err
	})
}

// errDuplicate marks a unique index violation while inserting an invoice
// whose number was chosen by the caller, or a second invoice for one
// template occurrence.
var errDuplicate = fmt.Errorf("duplicate invoice")

// createInvoice assigns the counter and, unless the caller chose one, the
// number, then inserts the invoice and its items using tx. A generated number
// that is already taken is skipped by moving on to the next counter.
func createInvoice(tx *gorm.DB, inv *Invoice) error {
	if err := lockOwnerCounter(tx, inv.OwnerID); err != nil {
		return fmt.Errorf("lock invoice counter: %w", err)
	}
	counter, err := maxCounter(tx, inv.OwnerID)
	if err != nil {
		return fmt.Errorf("invoice counter: %w", err)
	}
	tmpl := ""
	if inv.Number == "" {
		if tmpl, err = numberTemplate(tx, inv.OwnerID); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		if attempt == maxNumberAttempts {
			return fmt.Errorf("create invoice: %w after %d attempts", errNumbersExhausted, attempt)
		}
		counter++
		inv.ID = 0
		inv.Counter = counter
		if tmpl != "" {
			inv.Number = FormatInvoiceNumber(tmpl, strconv.FormatUint(uint64(inv.ClientID), 10), counter, inv.IssueDate)
		}
		// savepoint, so a failed insert leaves the outer transaction usable
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Omit(clause.Associations).Create(inv).Error
		})
		if err == nil {
			break
		}
		if !isDuplicate(err) {
			return fmt.Errorf("create invoice: %w", err)
		}
		taken, terr := numberTaken(tx, inv.OwnerID, inv.Number)
		if terr != nil {
			return fmt.Errorf("create invoice: %w", terr)
		}
		if tmpl == "" || !taken {
			return fmt.Errorf("create invoice %q: %w", inv.Number, errDuplicate)
		}
	}

	if len(inv.Items) == 0 {
		return nil
	}
	for i := range inv.Items {
		inv.Items[i].ID = 0
		inv.Items[i].InvoiceID = inv.ID
		inv.Items[i].OwnerID = inv.OwnerID
		if inv.Items[i].Position == 0 {
			inv.Items[i].Position = i + 1
		}
	}
	if err := tx.Create(&inv.Items).Error; err != nil {
		return fmt.Errorf("create invoice items: %w", err)
	}
	return nil
}

// LoadInvoice loads an invoice and its items.
func (s *Store) LoadInvoice(ctx context.Context, id, ownerID uint) (*Invoice, error) {
	var inv Invoice
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Where("owner_id = ?", ownerID).Order("position asc, id asc")
		}).
		First(&inv).Error
	if err != nil {
		return nil, translate(err, "load invoice %d", id)
	}
	return &inv, nil
}

// UpdateInvoice changes the header fields of an existing invoice. Status is
// not touched here; use ChangeInvoiceStatus. When inv.Items is non-nil the
// items are replaced as a whole and the total is recomputed.
func (s *Store) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	inv.normalize()
	if err := inv.validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", inv.ID, inv.OwnerID).
			First(&cur).Error; err != nil {
			return translate(err, "update invoice %d", inv.ID)
		}
		if err := clientBelongsTo(tx, inv.ClientID, inv.OwnerID); err != nil {
			return err
		}
		if inv.Number == "" {
			inv.Number = cur.Number
		}
		cols := []string{"client_id", "number", "issue_date", "due_date", "currency", "notes",
			"is_recurring", "recurring_frequency", "updated_at"}
		if inv.Items != nil {
			inv.RecomputeTotal()
			cols = append(cols, "total_amount")
		}
		if err := tx.Model(&Invoice{}).
			Where("id = ? AND owner_id = ?", inv.ID, inv.OwnerID).
			Select(cols).
			Omit(clause.Associations).
			Updates(inv).Error; err != nil {
			if isDuplicate(err) {
				return &ValidationError{Field: "number", Message: fmt.Sprintf("%q is already in use", inv.Number)}
			}
			return fmt.Errorf("update invoice %d: %w", inv.ID, err)
		}
		if inv.Items != nil {
			if err := tx.Where("invoice_id = ? AND owner_id = ?", inv.ID, inv.OwnerID).
				Delete(&InvoiceItem{}).Error; err != nil {
				return fmt.Errorf("delete items: %w", err)
			}
			if len(inv.Items) > 0 {
				for i := range inv.Items {
					inv.Items[i].ID = 0
					inv.Items[i].InvoiceID = inv.ID
					inv.Items[i].OwnerID = inv.OwnerID
					if inv.Items[i].Position == 0 {
						inv.Items[i].Position = i + 1
					}
				}
				if err := tx.Create(&inv.Items).Error; err != nil {
					return fmt.Errorf("recreate items: %w", err)
				}
			}
		} else {
			inv.TotalAmount = cur.TotalAmount
		}
		inv.Status = cur.Status
		inv.Counter = cur.Counter
		inv.LastSentDate = cur.LastSentDate
		inv.RecurringTemplateID = cur.RecurringTemplateID
		inv.OccurrenceDate = cur.OccurrenceDate
		inv.PaymentReference = cur.PaymentReference
		inv.CreatedAt = cur.CreatedAt
		return nil
	})
}

// DeleteInvoice removes an invoice and all of its items atomically.
func (s *Store) DeleteInvoice(ctx context.Context, id, ownerID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			First(&inv).Error; err != nil {
			return translate(err, "delete invoice %d", id)
		}
		if err := tx.Where("invoice_id = ? AND owner_id = ?", id, ownerID).
			Delete(&InvoiceItem{}).Error; err != nil {
			return fmt.Errorf("delete items of invoice %d: %w", id, err)
		}
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).
			Delete(&Invoice{}).Error; err != nil {
			return fmt.Errorf("delete invoice %d: %w", id, err)
		}
		return nil
	})
}

// AddInvoiceItem appends an item to an invoice and refreshes the total.
func (s *Store) AddInvoiceItem(ctx context.Context, ownerID, invoiceID uint, it *InvoiceItem) error {
	if err := validateLine(it.Description, it.Quantity, it.UnitPrice); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvoice(tx, invoiceID, ownerID); err != nil {
			return err
		}
		it.ID = 0
		it.OwnerID = ownerID
		it.InvoiceID = invoiceID
		it.Amount = lineAmount(it.Quantity, it.UnitPrice)
		if it.Position == 0 {
			var max int
			if err := tx.Model(&InvoiceItem{}).
				Where("invoice_id = ?", invoiceID).
				Select("COALESCE(MAX(position), 0)").
				Scan(&max).Error; err != nil {
				return err
			}
			it.Position = max + 1
		}
		if err := tx.Create(it).Error; err != nil {
			return fmt.Errorf("create invoice item: %w", err)
		}
		return recomputeInvoiceTotal(tx, invoiceID)
	})
}

// UpdateInvoiceItem overwrites description, quantity, unit price and position
// of an existing item.
func (s *Store) UpdateInvoiceItem(ctx context.Context, ownerID uint, it *InvoiceItem) error {
	if err := validateLine(it.Description, it.Quantity, it.UnitPrice); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur InvoiceItem
		if err := tx.Where("id = ? AND owner_id = ?", it.ID, ownerID).First(&cur).Error; err != nil {
			return translate(err, "update invoice item %d", it.ID)
		}
		if err := lockInvoice(tx, cur.InvoiceID, ownerID); err != nil {
			return err
		}
		it.OwnerID = ownerID
		it.InvoiceID = cur.InvoiceID
		it.CreatedAt = cur.CreatedAt
		it.Amount = lineAmount(it.Quantity, it.UnitPrice)
		if it.Position == 0 {
			it.Position = cur.Position
		}
		if err := tx.Model(&InvoiceItem{}).
			Where("id = ? AND owner_id = ?", it.ID, ownerID).
			Select("description", "quantity", "unit_price", "amount", "position").
			Updates(it).Error; err != nil {
			return fmt.Errorf("update invoice item %d: %w", it.ID, err)
		}
		return recomputeInvoiceTotal(tx, cur.InvoiceID)
	})
}

// DeleteInvoiceItem removes one item and refreshes the invoice total.
func (s *Store) DeleteInvoiceItem(ctx context.Context, ownerID, itemID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur InvoiceItem
		if err := tx.Where("id = ? AND owner_id = ?", itemID, ownerID).First(&cur).Error; err != nil {
			return translate(err, "delete invoice item %d", itemID)
		}
		if err := lockInvoice(tx, cur.InvoiceID, ownerID); err != nil {
			return err
		}
		if err := tx.Delete(&InvoiceItem{}, cur.ID).Error; err != nil {
			return err
		}
		return recomputeInvoiceTotal(tx, cur.InvoiceID)
	})
}

func lockInvoice(tx *gorm.DB, id, ownerID uint) error {
	var inv Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&inv).Error
	return translate(err, "invoice %d", id)
}

func recomputeInvoiceTotal(tx *gorm.DB, invoiceID uint) error {
	var items []InvoiceItem
	if err := tx.Select("amount").Where("invoice_id = ?", invoiceID).Find(&items).Error; err != nil {
		return err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return tx.Model(&Invoice{}).Where("id = ?", invoiceID).
		Updates(map[string]any{"total_amount": total, "updated_at": time.Now()}).Error
}

// ChangeInvoiceStatus applies the status machine to a stored invoice under a
// row lock and returns the updated invoice.
func (s *Store) ChangeInvoiceStatus(ctx context.Context, ownerID, id uint, to InvoiceStatus, now time.Time) (*Invoice, error) {
	return s.changeInvoiceStatus(ctx, ownerID, id, now, func(inv *Invoice, updates map[string]any) error {
		changed, err := ApplyTransition(inv, to, now)
		if err != nil || !changed {
			return err
		}
		updates["status"] = inv.Status
		if to == InvoiceStatusSent {
			updates["last_sent_date"] = inv.LastSentDate
		}
		return nil
	})
}

// MarkInvoicePaid moves an invoice to paid. Marking a paid invoice again only
// records a new payment reference.
func (s *Store) MarkInvoicePaid(ctx context.Context, ownerID, id uint, reference string, now time.Time) (*Invoice, error) {
	return s.changeInvoiceStatus(ctx, ownerID, id, now, func(inv *Invoice, updates map[string]any) error {
		changed, err := ApplyTransition(inv, InvoiceStatusPaid, now)
		if err != nil {
			return err
		}
		if changed {
			updates["status"] = inv.Status
		}
		if reference != "" && reference != inv.PaymentReference {
			inv.PaymentReference = reference
			updates["payment_reference"] = reference
		}
		return nil
	})
}

// RecordInvoiceSent is called after a successful delivery. A draft moves to
// sent; for every other status only LastSentDate is refreshed.
func (s *Store) RecordInvoiceSent(ctx context.Context, ownerID, id uint, now time.Time) (*Invoice, error) {
	return s.changeInvoiceStatus(ctx, ownerID, id, now, func(inv *Invoice, updates map[string]any) error {
		if inv.Status == InvoiceStatusDraft {
			if _, err := ApplyTransition(inv, InvoiceStatusSent, now); err != nil {
				return err
			}
			updates["status"] = inv.Status
		} else {
			t := now.UTC()
			inv.LastSentDate = &t
		}
		updates["last_sent_date"] = inv.LastSentDate
		return nil
	})
}

func (s *Store) changeInvoiceStatus(
	ctx context.Context, ownerID, id uint, now time.Time,
	mutate func(inv *Invoice, updates map[string]any) error,
) (*Invoice, error) {
	var inv Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the row (Postgres: FOR UPDATE; SQLite: no-op)
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			First(&inv).Error; err != nil {
			return translate(err, "load invoice %d", id)
		}
		updates := map[string]any{}
		if err := mutate(&inv, updates); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = now
		return tx.Model(&Invoice{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
