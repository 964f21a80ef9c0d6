// Package billing connects invoices with the outside world: it delivers
// invoices, reminders and receipts by email and creates payment intents.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/mail"
	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/payment"
)

// ErrPaymentsDisabled is returned when no payment processor is configured.
var ErrPaymentsDisabled = fmt.Errorf("%w: payments are not configured", model.ErrExternal)

// Service sends invoice related email and handles payments. Delivery errors
// are reported as model.ErrExternal and never change the invoice.
type Service struct {
	store    *model.Store
	mailer   mail.Sender
	payments payment.Processor
	logger   *slog.Logger

	FrontendURL string
	Currency    string
	SendTimeout time.Duration
	Now         func() time.Time
}

// NewService wires a Service. payments may be nil.
func NewService(store *model.Store, mailer mail.Sender, payments payment.Processor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       store,
		mailer:      mailer,
		payments:    payments,
		logger:      logger,
		Currency:    "usd",
		SendTimeout: 15 * time.Second,
		Now:         time.Now,
	}
	if cfg := store.Config; cfg != nil {
		s.FrontendURL = cfg.FrontendURL
		if cfg.Currency != "" {
			s.Currency = cfg.Currency
		}
		if cfg.SendTimeoutSeconds > 0 {
			s.SendTimeout = cfg.SendTimeout()
		}
	}
	return s
}

// PayURL is the public payment page of an invoice.
func (s *Service) PayURL(inv *model.Invoice) string {
	if s.FrontendURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/invoices/%d/pay", strings.TrimRight(s.FrontendURL, "/"), inv.ID)
}

func (s *Service) invoiceData(ctx context.Context, inv *model.Invoice, note string) (mail.InvoiceData, error) {
	client, err := s.store.LoadClient(ctx, inv.ClientID, inv.OwnerID)
	if err != nil {
		return mail.InvoiceData{}, err
	}
	owner, err := s.store.OwnerUser(ctx, inv.OwnerID)
	if err != nil {
		return mail.InvoiceData{}, err
	}
	return mail.InvoiceData{Invoice: inv, Client: client, Owner: owner, PayURL: s.PayURL(inv), Note: note}, nil
}

func (s *Service) deliver(ctx context.Context, msg mail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.SendTimeout)
	defer cancel()
	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, model.ErrExternal) {
			return err
		}
		return fmt.Errorf("%w: %v", model.ErrExternal, err)
	}
	return nil
}

// DeliverInvoice emails inv to its client without touching the invoice.
func (s *Service) DeliverInvoice(ctx context.Context, inv *model.Invoice, note string) error {
	data, err := s.invoiceData(ctx, inv, note)
	if err != nil {
		return err
	}
	msg, err := mail.InvoiceMessage(data)
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

// SendInvoice emails an invoice and records the delivery: a draft becomes
// sent and LastSentDate is refreshed. Paid invoices are not sent again.
func (s *Service) SendInvoice(ctx context.Context, ownerID, id uint, note string) (*model.Invoice, error) {
	inv, err := s.store.LoadInvoice(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvoiceStatusPaid {
		return nil, fmt.Errorf("%w: invoice %s is already paid", model.ErrInvalidTransition, inv.Number)
	}
	if err := s.DeliverInvoice(ctx, inv, note); err != nil {
		s.logger.Warn("invoice delivery failed", "invoice_id", id, "owner_id", ownerID, "error", err)
		return nil, err
	}
	updated, err := s.store.RecordInvoiceSent(ctx, ownerID, id, s.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice sent", "invoice_id", id, "owner_id", ownerID, "number", updated.Number)
	return updated, nil
}

// SendReminder emails a payment reminder. An invoice whose due date has
// passed moves to overdue afterwards.
func (s *Service) SendReminder(ctx context.Context, ownerID, id uint) (*model.Invoice, error) {
	inv, err := s.store.LoadInvoice(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvoiceStatusPaid {
		return nil, fmt.Errorf("%w: invoice %s is already paid", model.ErrInvalidTransition, inv.Number)
	}
	now := s.Now()
	data, err := s.invoiceData(ctx, inv, "")
	if err != nil {
		return nil, err
	}
	msg, err := mail.ReminderMessage(data, now)
	if err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, msg); err != nil {
		s.logger.Warn("reminder delivery failed", "invoice_id", id, "owner_id", ownerID, "error", err)
		return nil, err
	}
	if inv.Status.IsOutstanding() && model.IsPastDue(inv, now) {
		return s.store.ChangeInvoiceStatus(ctx, ownerID, id, model.InvoiceStatusOverdue, now)
	}
	return inv, nil
}

// SendReceipt confirms the payment of a paid invoice to its client.
func (s *Service) SendReceipt(ctx context.Context, ownerID, id uint) error {
	inv, err := s.store.LoadInvoice(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if inv.Status != model.InvoiceStatusPaid {
		return &model.ValidationError{Field: "status", Message: "receipts can only be sent for paid invoices"}
	}
	data, err := s.invoiceData(ctx, inv, "")
	if err != nil {
		return err
	}
	data.PayURL = ""
	msg, err := mail.ReceiptMessage(data, inv.UpdatedAt)
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

// PaymentIntent is handed to the client side payment form.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// CreatePaymentIntent asks the payment processor for a charge over the
// invoice total.
func (s *Service) CreatePaymentIntent(ctx context.Context, ownerID, id uint) (*PaymentIntent, error) {
	if s.payments == nil {
		return nil, ErrPaymentsDisabled
	}
	inv, err := s.store.LoadInvoice(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvoiceStatusPaid {
		return nil, fmt.Errorf("%w: invoice %s is already paid", model.ErrInvalidTransition, inv.Number)
	}
	cents := payment.AmountInCents(inv.TotalAmount)
	currency := inv.Currency
	if currency == "" {
		currency = s.Currency
	}
	ctx, cancel := context.WithTimeout(ctx, s.SendTimeout)
	defer cancel()
	intent, err := s.payments.CreateChargeIntent(ctx, cents, currency, map[string]string{
		payment.MetaInvoiceID: strconv.FormatUint(uint64(inv.ID), 10),
		payment.MetaOwnerID:   strconv.FormatUint(uint64(inv.OwnerID), 10),
	})
	if err != nil {
		s.logger.Warn("payment intent failed", "invoice_id", id, "owner_id", ownerID, "error", err)
		return nil, err
	}
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret, AmountCents: cents, Currency: strings.ToLower(currency)}, nil
}

// ConfirmPayment marks an invoice as paid. Repeated confirmations are
// harmless.
func (s *Service) ConfirmPayment(ctx context.Context, c payment.Confirmation) (*model.Invoice, error) {
	inv, err := s.store.MarkInvoicePaid(ctx, c.OwnerID, c.InvoiceID, c.Reference, s.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment confirmed", "invoice_id", c.InvoiceID, "owner_id", c.OwnerID, "reference", c.Reference)
	return inv, nil
}
