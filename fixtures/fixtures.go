// Package fixtures provides test stores and builders for model types.
package fixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

// DefaultOwnerID is the tenant created by SeedTestData.
const DefaultOwnerID uint = 1

// DefaultPassword is the password of the seeded user.
const DefaultPassword = "correct horse battery"

var dbCounter atomic.Int64

// NewTestStore returns a store backed by a private in-memory database that is
// closed when the test ends.
func NewTestStore(t testing.TB) *model.Store {
	t.Helper()
	name := fmt.Sprintf("fixtures_%d", dbCounter.Add(1))
	db, err := model.OpenMemory(name, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	cfg := &model.Config{
		Mode:               "test",
		Currency:           "usd",
		FrontendURL:        "https://app.example.com",
		MailFromAddress:    "billing@example.com",
		MailFromName:       "Invoicing",
		GenerationWorkers:  4,
		SendTimeoutSeconds: 1,
	}
	store, err := model.NewStore(db, cfg)
	if err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestData holds the records created by SeedTestData.
type TestData struct {
	User   *model.User
	Client *model.Client
}

// SeedTestData creates the owner account and one client.
func SeedTestData(t testing.TB, store *model.Store) *TestData {
	t.Helper()
	ctx := context.Background()
	u := &model.User{
		Email:        "owner@example.com",
		FullName:     "Olivia Owner",
		BusinessName: "Owner Consulting",
	}
	if err := store.CreateUser(ctx, u, DefaultPassword); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if u.OwnerID != DefaultOwnerID {
		t.Fatalf("seed user owner = %d, want %d", u.OwnerID, DefaultOwnerID)
	}
	c := Client(WithClientName("Acme Corp"), WithClientEmail("billing@acme.example"))
	if err := store.CreateClient(ctx, c); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return &TestData{User: u, Client: c}
}

// SeedOwner creates another tenant and returns its owner id.
func SeedOwner(t testing.TB, store *model.Store, email string) uint {
	t.Helper()
	u := &model.User{Email: email, FullName: "Other Owner"}
	if err := store.CreateUser(context.Background(), u, DefaultPassword); err != nil {
		t.Fatalf("seed owner %s: %v", email, err)
	}
	return u.OwnerID
}

// Day is a shorthand for schedule.Date.
func Day(year int, month time.Month, day int) time.Time {
	return schedule.Date(year, month, day)
}

// ---------------------------------------------------------------------------
// Client

type ClientOption func(*model.Client)

func Client(opts ...ClientOption) *model.Client {
	c := &model.Client{
		OwnerID: DefaultOwnerID,
		Name:    "Test Client",
		Email:   "client@example.com",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithClientName(name string) ClientOption {
	return func(c *model.Client) { c.Name = name }
}

func WithClientEmail(email string) ClientOption {
	return func(c *model.Client) { c.Email = email }
}

func WithClientOwner(ownerID uint) ClientOption {
	return func(c *model.Client) { c.OwnerID = ownerID }
}

// ---------------------------------------------------------------------------
// Invoice

type InvoiceOption func(*model.Invoice)

// Invoice returns a draft invoice issued 2024-01-01 and due 2024-01-31.
func Invoice(clientID uint, opts ...InvoiceOption) *model.Invoice {
	inv := &model.Invoice{
		OwnerID:   DefaultOwnerID,
		ClientID:  clientID,
		IssueDate: Day(2024, time.January, 1),
		DueDate:   Day(2024, time.January, 31),
		Status:    model.InvoiceStatusDraft,
		Currency:  "usd",
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func WithInvoiceNumber(number string) InvoiceOption {
	return func(inv *model.Invoice) { inv.Number = number }
}

func WithInvoiceStatus(status model.InvoiceStatus) InvoiceOption {
	return func(inv *model.Invoice) { inv.Status = status }
}

func WithInvoiceDates(issue, due time.Time) InvoiceOption {
	return func(inv *model.Invoice) {
		inv.IssueDate = issue
		inv.DueDate = due
	}
}

func WithInvoiceItems(items ...model.InvoiceItem) InvoiceOption {
	return func(inv *model.Invoice) { inv.Items = items }
}

func WithInvoiceOwner(ownerID uint) InvoiceOption {
	return func(inv *model.Invoice) { inv.OwnerID = ownerID }
}

// Item builds an invoice line from decimal strings.
func Item(description, quantity, unitPrice string) model.InvoiceItem {
	return model.InvoiceItem{
		Description: description,
		Quantity:    decimal.RequireFromString(quantity),
		UnitPrice:   decimal.RequireFromString(unitPrice),
	}
}

// ---------------------------------------------------------------------------
// Recurring template

type TemplateOption func(*model.RecurringTemplate)

// Template returns an active monthly template due on 2024-01-15 with one
// line of 500.00.
func Template(clientID uint, opts ...TemplateOption) *model.RecurringTemplate {
	t := &model.RecurringTemplate{
		OwnerID:            DefaultOwnerID,
		ClientID:           clientID,
		Name:               "Monthly retainer",
		Frequency:          schedule.Monthly,
		NextGenerationDate: Day(2024, time.January, 15),
		DaysBefore:         14,
		Active:             true,
		Items:              []model.RecurringTemplateItem{TemplateItem("Retainer", "1", "500.00")},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithTemplateName(name string) TemplateOption {
	return func(t *model.RecurringTemplate) { t.Name = name }
}

func WithTemplateFrequency(f schedule.Frequency) TemplateOption {
	return func(t *model.RecurringTemplate) { t.Frequency = f }
}

func WithTemplateNextDate(d time.Time) TemplateOption {
	return func(t *model.RecurringTemplate) { t.NextGenerationDate = d }
}

func WithTemplateActive(active bool) TemplateOption {
	return func(t *model.RecurringTemplate) { t.Active = active }
}

func WithTemplateAutoSend(autoSend bool) TemplateOption {
	return func(t *model.RecurringTemplate) { t.AutoSend = autoSend }
}

func WithTemplateDaysBefore(days int) TemplateOption {
	return func(t *model.RecurringTemplate) { t.DaysBefore = days }
}

func WithTemplateItems(items ...model.RecurringTemplateItem) TemplateOption {
	return func(t *model.RecurringTemplate) { t.Items = items }
}

func WithTemplateOwner(ownerID uint) TemplateOption {
	return func(t *model.RecurringTemplate) { t.OwnerID = ownerID }
}

// TemplateItem builds a template line from decimal strings.
func TemplateItem(description, quantity, unitPrice string) model.RecurringTemplateItem {
	return model.RecurringTemplateItem{
		Description: description,
		Quantity:    decimal.RequireFromString(quantity),
		UnitPrice:   decimal.RequireFromString(unitPrice),
	}
}

// MustCreateInvoice stores inv or fails the test.
func MustCreateInvoice(t testing.TB, store *model.Store, inv *model.Invoice) *model.Invoice {
	t.Helper()
	if err := store.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

// MustCreateTemplate stores tmpl or fails the test.
func MustCreateTemplate(t testing.TB, store *model.Store, tmpl *model.RecurringTemplate) *model.RecurringTemplate {
	t.Helper()
	if err := store.CreateRecurringTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tmpl
}
