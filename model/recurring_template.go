package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

// RecurringTemplate describes an invoice that is issued on a schedule.
// NextGenerationDate always names an occurrence that has not been
// materialised yet; only MaterializeOccurrence moves it.
type RecurringTemplate struct {
	ID                 uint `gorm:"primarykey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	OwnerID            uint               `gorm:"not null;index"`
	ClientID           uint               `gorm:"not null;index"`
	Name               string             `gorm:"not null" validate:"required,max=200"`
	Frequency          schedule.Frequency `gorm:"type:text;not null"`
	NextGenerationDate time.Time          `gorm:"not null;index:idx_template_due,priority:2"`
	DaysBefore         int                `gorm:"not null;default:0" validate:"gte=0,lte=365"`
	Active             bool               `gorm:"not null;index:idx_template_due,priority:1"`
	Notes              string
	AutoSend           bool `gorm:"not null"`
	EmailTemplate      string
	Items              []RecurringTemplateItem `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}

// RecurringTemplateItem is copied into an InvoiceItem on every generation.
type RecurringTemplateItem struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	OwnerID     uint            `gorm:"not null;index"`
	TemplateID  uint            `gorm:"not null;index"`
	Position    int             `gorm:"not null;default:0"`
	Description string          `gorm:"not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null"`
}

// Total is the sum of the item amounts.
func (t *RecurringTemplate) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(lineAmount(it.Quantity, it.UnitPrice))
	}
	return total
}

func (t *RecurringTemplate) normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.NextGenerationDate = schedule.Day(t.NextGenerationDate)
}

func (t *RecurringTemplate) validate() error {
	if t.OwnerID == 0 {
		return invalid("owner_id", "is required")
	}
	if err := ValidateStruct(t); err != nil {
		return err
	}
	if !t.Frequency.Valid() {
		return invalid("frequency", fmt.Sprintf("unknown frequency %q", t.Frequency))
	}
	if t.NextGenerationDate.IsZero() {
		return invalid("next_generation_date", "is required")
	}
	for _, it := range t.Items {
		if err := validateLine(it.Description, it.Quantity, it.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

// CreateRecurringTemplate stores a template and its items.
func (s *Store) CreateRecurringTemplate(ctx context.Context, t *RecurringTemplate) error {
	t.ID = 0
	t.normalize()
	if err := t.validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clientBelongsTo(tx, t.ClientID, t.OwnerID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(t).Error; err != nil {
			return fmt.Errorf("create recurring template: %w", err)
		}
		if len(t.Items) == 0 {
			return nil
		}
		for i := range t.Items {
			it := &t.Items[i]
			it.ID = 0
			it.TemplateID = t.ID
			it.OwnerID = t.OwnerID
			it.Amount = lineAmount(it.Quantity, it.UnitPrice)
			if it.Position == 0 {
				it.Position = i + 1
			}
		}
		if err := tx.Create(&t.Items).Error; err != nil {
			return fmt.Errorf("create template items: %w", err)
		}
		return nil
	})
}

func preloadTemplateItems(db *gorm.DB) *gorm.DB {
	return db.Order("position asc, id asc")
}

// LoadRecurringTemplate loads a template with its items.
func (s *Store) LoadRecurringTemplate(ctx context.Context, id, ownerID uint) (*RecurringTemplate, error) {
	var t RecurringTemplate
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Preload("Items", preloadTemplateItems).
		First(&t).Error
	if err != nil {
		return nil, translate(err, "load recurring template %d", id)
	}
	return &t, nil
}

// ListRecurringTemplates returns the templates of ownerID, next due first.
func (s *Store) ListRecurringTemplates(ctx context.Context, ownerID uint) ([]RecurringTemplate, error) {
	var ts []RecurringTemplate
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Preload("Items", preloadTemplateItems).
		Order("next_generation_date asc, id asc").
		Find(&ts).Error
	return ts, err
}

// ListDueTemplates returns the active templates of all owners whose next
// occurrence is on or before ref, ordered by (next date, id).
func (s *Store) ListDueTemplates(ctx context.Context, ref time.Time) ([]RecurringTemplate, error) {
	return s.listDueTemplates(ctx, ref, 0)
}

// ListDueTemplatesForOwner is ListDueTemplates limited to ownerID.
func (s *Store) ListDueTemplatesForOwner(ctx context.Context, ownerID uint, ref time.Time) ([]RecurringTemplate, error) {
	if ownerID == 0 {
		return nil, invalid("owner_id", "is required")
	}
	return s.listDueTemplates(ctx, ref, ownerID)
}

func (s *Store) listDueTemplates(ctx context.Context, ref time.Time, ownerID uint) ([]RecurringTemplate, error) {
	q := s.db.WithContext(ctx).
		Where("active = ? AND next_generation_date <= ?", true, schedule.Day(ref))
	if ownerID != 0 {
		q = q.Where("owner_id = ?", ownerID)
	}
	var ts []RecurringTemplate
	err := q.Preload("Items", preloadTemplateItems).
		Order("next_generation_date asc, id asc").
		Find(&ts).Error
	return ts, err
}

// UpdateRecurringTemplate changes the user editable fields of a template.
// The schedule position and the active flag are left alone.
func (s *Store) UpdateRecurringTemplate(ctx context.Context, t *RecurringTemplate) error {
	t.normalize()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur RecurringTemplate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", t.ID, t.OwnerID).
			First(&cur).Error; err != nil {
			return translate(err, "update recurring template %d", t.ID)
		}
		t.NextGenerationDate = cur.NextGenerationDate
		t.Active = cur.Active
		if err := t.validate(); err != nil {
			return err
		}
		if err := clientBelongsTo(tx, t.ClientID, t.OwnerID); err != nil {
			return err
		}
		err := tx.Model(&RecurringTemplate{}).
			Where("id = ? AND owner_id = ?", t.ID, t.OwnerID).
			Select("client_id", "name", "frequency", "days_before", "notes", "auto_send", "email_template", "updated_at").
			Omit(clause.Associations).
			Updates(t).Error
		if err != nil {
			return fmt.Errorf("update recurring template %d: %w", t.ID, err)
		}
		t.CreatedAt = cur.CreatedAt
		return nil
	})
}

// ToggleRecurringTemplate flips the active flag and returns the template.
func (s *Store) ToggleRecurringTemplate(ctx context.Context, id, ownerID uint) (*RecurringTemplate, error) {
	var t RecurringTemplate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			First(&t).Error; err != nil {
			return translate(err, "toggle recurring template %d", id)
		}
		t.Active = !t.Active
		return tx.Model(&RecurringTemplate{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Updates(map[string]any{"active": t.Active, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteRecurringTemplate removes a template and its items. Invoices that
// were generated from it stay untouched.
func (s *Store) DeleteRecurringTemplate(ctx context.Context, id, ownerID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("template_id = ? AND owner_id = ?", id, ownerID).Delete(&RecurringTemplateItem{})
		if res.Error != nil {
			return res.Error
		}
		res = tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&RecurringTemplate{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete recurring template %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// ListTemplateItems returns the items of a template.
func (s *Store) ListTemplateItems(ctx context.Context, ownerID, templateID uint) ([]RecurringTemplateItem, error) {
	if err := s.templateExists(s.db.WithContext(ctx), templateID, ownerID); err != nil {
		return nil, err
	}
	var items []RecurringTemplateItem
	err := s.db.WithContext(ctx).
		Where("template_id = ? AND owner_id = ?", templateID, ownerID).
		Order("position asc, id asc").
		Find(&items).Error
	return items, err
}

// AddTemplateItem appends an item to a template.
func (s *Store) AddTemplateItem(ctx context.Context, ownerID, templateID uint, it *RecurringTemplateItem) error {
	if err := validateLine(it.Description, it.Quantity, it.UnitPrice); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.templateExists(tx, templateID, ownerID); err != nil {
			return err
		}
		it.ID = 0
		it.OwnerID = ownerID
		it.TemplateID = templateID
		it.Amount = lineAmount(it.Quantity, it.UnitPrice)
		if it.Position == 0 {
			var max int
			if err := tx.Model(&RecurringTemplateItem{}).
				Where("template_id = ?", templateID).
				Select("COALESCE(MAX(position), 0)").
				Scan(&max).Error; err != nil {
				return err
			}
			it.Position = max + 1
		}
		return tx.Create(it).Error
	})
}

// UpdateTemplateItem overwrites an existing template item.
func (s *Store) UpdateTemplateItem(ctx context.Context, ownerID uint, it *RecurringTemplateItem) error {
	if err := validateLine(it.Description, it.Quantity, it.UnitPrice); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur RecurringTemplateItem
		if err := tx.Where("id = ? AND owner_id = ?", it.ID, ownerID).First(&cur).Error; err != nil {
			return translate(err, "update template item %d", it.ID)
		}
		it.OwnerID = ownerID
		it.TemplateID = cur.TemplateID
		it.CreatedAt = cur.CreatedAt
		it.Amount = lineAmount(it.Quantity, it.UnitPrice)
		if it.Position == 0 {
			it.Position = cur.Position
		}
		return tx.Model(&RecurringTemplateItem{}).
			Where("id = ? AND owner_id = ?", it.ID, ownerID).
			Select("description", "quantity", "unit_price", "amount", "position").
			Updates(it).Error
	})
}

// DeleteTemplateItem removes one template item.
func (s *Store) DeleteTemplateItem(ctx context.Context, ownerID, itemID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", itemID, ownerID).
		Delete(&RecurringTemplateItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete template item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

func (s *Store) templateExists(db *gorm.DB, id, ownerID uint) error {
	var n int64
	if err := db.Model(&RecurringTemplate{}).Where("id = ? AND owner_id = ?", id, ownerID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("recurring template %d: %w", id, ErrNotFound)
	}
	return nil
}

// Occurrence is one scheduled generation of a template.
type Occurrence struct {
	TemplateID uint
	OwnerID    uint
	// Date is the template's NextGenerationDate at the time the invoice was
	// built; Next is the date the schedule advances to.
	Date time.Time
	Next time.Time
	// RequireActive makes the advancement fail for paused templates.
	RequireActive bool
	Invoice       *Invoice
}

// MaterializeOccurrence advances the template schedule from occ.Date to
// occ.Next and inserts occ.Invoice in a single transaction. The advancement is
// a compare-and-swap on the schedule date; if another writer moved it first
// ErrConflict is returned and nothing is written. When an invoice for
// (template, occurrence date) already exists the schedule is still advanced,
// the existing invoice is returned and the error is ErrAlreadyGenerated.
func (s *Store) MaterializeOccurrence(ctx context.Context, occ Occurrence) (*Invoice, error) {
	date := schedule.Day(occ.Date)
	next := schedule.Day(occ.Next)
	if !next.After(date) {
		return nil, invalid("next_generation_date", "must advance")
	}
	inv := occ.Invoice
	inv.ID = 0
	inv.OwnerID = occ.OwnerID
	tid := occ.TemplateID
	inv.RecurringTemplateID = &tid
	inv.OccurrenceDate = &date
	inv.IsRecurring = true
	inv.normalize()
	if err := inv.validate(); err != nil {
		return nil, err
	}
	inv.RecomputeTotal()

	var existing *Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&RecurringTemplate{}).
			Where("id = ? AND owner_id = ? AND next_generation_date = ?", occ.TemplateID, occ.OwnerID, date)
		if occ.RequireActive {
			q = q.Where("active = ?", true)
		}
		res := q.Updates(map[string]any{"next_generation_date": next, "updated_at": time.Now()})
		if res.Error != nil {
			return fmt.Errorf("advance template %d: %w", occ.TemplateID, res.Error)
		}
		if res.RowsAffected == 0 {
			if err := s.templateExists(tx, occ.TemplateID, occ.OwnerID); err != nil {
				return err
			}
			return fmt.Errorf("advance template %d from %s: %w", occ.TemplateID, date.Format(time.DateOnly), ErrConflict)
		}

		var prev Invoice
		err := tx.Where("recurring_template_id = ? AND occurrence_date = ?", occ.TemplateID, date).First(&prev).Error
		switch {
		case err == nil:
			existing = &prev
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		chosen := inv.Number
		err = createInvoice(tx, inv)
		switch {
		case errors.Is(err, errDuplicate) && chosen != "":
			return &ValidationError{Field: "number", Message: fmt.Sprintf("%q is already in use", chosen)}
		case errors.Is(err, errDuplicate):
			// another writer materialised the same occurrence
			return fmt.Errorf("template %d occurrence %s: %w", occ.TemplateID, date.Format(time.DateOnly), ErrConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, fmt.Errorf("template %d occurrence %s: %w", occ.TemplateID, date.Format(time.DateOnly), ErrAlreadyGenerated)
	}
	return inv, nil
}

// GeneratedInvoices returns the invoices created from a template, newest
// occurrence first.
func (s *Store) GeneratedInvoices(ctx context.Context, ownerID, templateID uint) ([]Invoice, error) {
	var invs []Invoice
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND recurring_template_id = ?", ownerID, templateID).
		Order("occurrence_date desc, id desc").
		Find(&invs).Error
	return invs, err
}
