// Package recurring turns due recurring templates into invoices.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

// Store is the persistence the engine needs.
type Store interface {
	ListDueTemplates(ctx context.Context, ref time.Time) ([]model.RecurringTemplate, error)
	ListDueTemplatesForOwner(ctx context.Context, ownerID uint, ref time.Time) ([]model.RecurringTemplate, error)
	LoadRecurringTemplate(ctx context.Context, id, ownerID uint) (*model.RecurringTemplate, error)
	MaterializeOccurrence(ctx context.Context, occ model.Occurrence) (*model.Invoice, error)
	RecordInvoiceSent(ctx context.Context, ownerID, id uint, now time.Time) (*model.Invoice, error)
}

// InvoiceSender delivers a freshly generated invoice.
type InvoiceSender interface {
	DeliverInvoice(ctx context.Context, inv *model.Invoice, note string) error
}

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	Workers     int
	SendTimeout time.Duration
	Currency    string
	Now         func() time.Time
}

// Engine generates invoices from recurring templates.
type Engine struct {
	store  Store
	sender InvoiceSender
	logger *slog.Logger

	workers     int
	sendTimeout time.Duration
	currency    string
	now         func() time.Time
}

// NewEngine returns an engine. sender may be nil, in which case auto-send is
// reported as failed for every template that asks for it.
func NewEngine(store Store, sender InvoiceSender, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:       store,
		sender:      sender,
		logger:      logger,
		workers:     opts.Workers,
		sendTimeout: opts.SendTimeout,
		currency:    opts.Currency,
		now:         opts.Now,
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	if e.sendTimeout <= 0 {
		e.sendTimeout = 15 * time.Second
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Result is the outcome of one template in a run.
type Result struct {
	TemplateID     uint
	OwnerID        uint
	OccurrenceDate time.Time
	Invoice        *model.Invoice
	// Skipped is set when another run generated the occurrence first or the
	// run was cancelled before the template was started.
	Skipped    bool
	SkipReason string
	Err        error
	Sent       bool
	SendErr    error
}

// Report lists the results of a batch run in template order.
type Report struct {
	RunID     string
	Reference time.Time
	Results   []Result
}

// Generated returns the invoices created by the run.
func (r *Report) Generated() []*model.Invoice {
	var out []*model.Invoice
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped && res.Invoice != nil {
			out = append(out, res.Invoice)
		}
	}
	return out
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// GenerateDue generates one invoice for every active template whose next
// occurrence is on or before ref. Templates are processed in parallel; a
// failing template does not stop the others. When ctx is cancelled, started
// templates are completed and the rest are reported as skipped. The returned
// error is only set when the due templates cannot be listed.
func (e *Engine) GenerateDue(ctx context.Context, ref time.Time) (*Report, error) {
	return e.generateDue(ctx, ref, 0)
}

// GenerateDueForOwner is GenerateDue restricted to the templates of ownerID.
func (e *Engine) GenerateDueForOwner(ctx context.Context, ownerID uint, ref time.Time) (*Report, error) {
	return e.generateDue(ctx, ref, ownerID)
}

func (e *Engine) generateDue(ctx context.Context, ref time.Time, ownerID uint) (*Report, error) {
	ref = schedule.Day(ref)
	report := &Report{RunID: uuid.NewString(), Reference: ref}
	logger := e.logger.With("run_id", report.RunID, "reference", ref.Format(time.DateOnly))
	if ownerID != 0 {
		logger = logger.With("owner_id", ownerID)
	}

	var (
		templates []model.RecurringTemplate
		err       error
	)
	if ownerID != 0 {
		templates, err = e.store.ListDueTemplatesForOwner(ctx, ownerID, ref)
	} else {
		templates, err = e.store.ListDueTemplates(ctx, ref)
	}
	if err != nil {
		return report, fmt.Errorf("list due templates: %w", err)
	}
	logger.Info("recurring run start", "due", len(templates))
	report.Results = make([]Result, len(templates))

	// started units must not be cut off half way
	work := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i := range templates {
		t := &templates[i]
		if ctx.Err() != nil {
			report.Results[i] = skipped(t, "run cancelled")
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				report.Results[i] = skipped(t, "run cancelled")
				return nil
			}
			report.Results[i] = e.runUnit(work, t, ref, true)
			return nil
		})
	}
	_ = g.Wait()

	var generated, failed, skippedN int
	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			failed++
			logger.Error("template failed", "template_id", res.TemplateID, "owner_id", res.OwnerID, "error", res.Err)
		case res.Skipped:
			skippedN++
		default:
			generated++
		}
		if res.SendErr != nil {
			logger.Warn("auto-send failed", "template_id", res.TemplateID, "invoice_id", invoiceID(res.Invoice), "error", res.SendErr)
		}
	}
	logger.Info("recurring run done", "generated", generated, "skipped", skippedN, "failed", failed)
	return report, nil
}

// GenerateOne generates the next occurrence of one template right away,
// regardless of its active flag and date. The schedule advances as in a batch
// run. If the occurrence had been generated before, the existing invoice is
// returned with Skipped set.
func (e *Engine) GenerateOne(ctx context.Context, ownerID, templateID uint, ref time.Time) (Result, error) {
	t, err := e.store.LoadRecurringTemplate(ctx, templateID, ownerID)
	if err != nil {
		return Result{TemplateID: templateID, OwnerID: ownerID, Err: err}, err
	}
	res := e.runUnit(ctx, t, schedule.Day(ref), false)
	if res.Err != nil {
		return res, res.Err
	}
	if res.Skipped && res.Invoice == nil {
		return res, fmt.Errorf("template %d: %s: %w", templateID, res.SkipReason, model.ErrConflict)
	}
	return res, nil
}

func skipped(t *model.RecurringTemplate, reason string) Result {
	return Result{
		TemplateID:     t.ID,
		OwnerID:        t.OwnerID,
		OccurrenceDate: t.NextGenerationDate,
		Skipped:        true,
		SkipReason:     reason,
	}
}

// runUnit materializes the template's next occurrence and auto-sends it.
// A conflict reloads the template once: a moved schedule means another run
// won, otherwise the unit is retried with the fresh snapshot.
func (e *Engine) runUnit(ctx context.Context, t *model.RecurringTemplate, ref time.Time, batch bool) Result {
	res := Result{TemplateID: t.ID, OwnerID: t.OwnerID, OccurrenceDate: t.NextGenerationDate}

	inv, err := e.materialize(ctx, t, ref, batch)
	if errors.Is(err, model.ErrConflict) {
		fresh, lerr := e.store.LoadRecurringTemplate(ctx, t.ID, t.OwnerID)
		switch {
		case lerr != nil:
			res.Err = lerr
			return res
		case !fresh.NextGenerationDate.Equal(t.NextGenerationDate):
			res.Skipped = true
			res.SkipReason = "occurrence generated by another run"
			return res
		case batch && !fresh.Active:
			res.Skipped = true
			res.SkipReason = "template paused"
			return res
		}
		t = fresh
		inv, err = e.materialize(ctx, t, ref, batch)
	}
	if errors.Is(err, model.ErrAlreadyGenerated) {
		res.Invoice = inv
		res.Skipped = true
		res.SkipReason = "invoice for occurrence already exists"
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Invoice = inv

	if t.AutoSend {
		res.SendErr = e.autoSend(ctx, t, inv)
		res.Sent = res.SendErr == nil
	}
	return res
}

func (e *Engine) materialize(ctx context.Context, t *model.RecurringTemplate, ref time.Time, batch bool) (*model.Invoice, error) {
	date := schedule.Day(t.NextGenerationDate)
	next, err := schedule.NextOccurrence(date, t.Frequency)
	if err != nil {
		return nil, &model.ValidationError{Field: "frequency", Message: err.Error()}
	}
	return e.store.MaterializeOccurrence(ctx, model.Occurrence{
		TemplateID:    t.ID,
		OwnerID:       t.OwnerID,
		Date:          date,
		Next:          next,
		RequireActive: batch,
		Invoice:       e.buildInvoice(t, ref),
	})
}

// buildInvoice snapshots the template into a draft invoice issued on ref.
func (e *Engine) buildInvoice(t *model.RecurringTemplate, ref time.Time) *model.Invoice {
	inv := &model.Invoice{
		OwnerID:            t.OwnerID,
		ClientID:           t.ClientID,
		IssueDate:          ref,
		DueDate:            schedule.AddDays(ref, t.DaysBefore),
		Status:             model.InvoiceStatusDraft,
		Currency:           e.currency,
		Notes:              t.Notes,
		IsRecurring:        true,
		RecurringFrequency: t.Frequency,
	}
	inv.Items = make([]model.InvoiceItem, 0, len(t.Items))
	for _, it := range t.Items {
		inv.Items = append(inv.Items, model.InvoiceItem{
			Position:    it.Position,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return inv
}

func (e *Engine) autoSend(ctx context.Context, t *model.RecurringTemplate, inv *model.Invoice) error {
	if e.sender == nil {
		return fmt.Errorf("%w: no sender configured", model.ErrExternal)
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.sender.DeliverInvoice(sendCtx, inv, t.EmailTemplate) }()
	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = sendCtx.Err()
	}
	if err != nil {
		if errors.Is(err, model.ErrExternal) {
			return err
		}
		return fmt.Errorf("%w: send invoice %s: %v", model.ErrExternal, inv.Number, err)
	}

	updated, err := e.store.RecordInvoiceSent(ctx, inv.OwnerID, inv.ID, e.now())
	if err != nil {
		return fmt.Errorf("record delivery of invoice %s: %w", inv.Number, err)
	}
	*inv = mergeSent(*inv, updated)
	return nil
}

// mergeSent copies the delivery state into inv, keeping its items.
func mergeSent(inv model.Invoice, updated *model.Invoice) model.Invoice {
	inv.Status = updated.Status
	inv.LastSentDate = updated.LastSentDate
	inv.UpdatedAt = updated.UpdatedAt
	return inv
}

func invoiceID(inv *model.Invoice) uint {
	if inv == nil {
		return 0
	}
	return inv.ID
}
