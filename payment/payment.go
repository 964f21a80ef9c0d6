// Package payment talks to the payment provider. It creates charge intents
// and turns signed provider callbacks into payment confirmations.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

// Metadata keys attached to every charge intent.
const (
	MetaInvoiceID = "invoice_id"
	MetaOwnerID   = "owner_id"
)

const eventPaymentSucceeded = "payment_intent.succeeded"

// ErrIgnoredEvent is returned by ParseWebhook for events that do not confirm
// a payment.
var ErrIgnoredEvent = errors.New("event ignored")

// Intent is a created charge intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// Processor creates charge intents with the payment provider.
type Processor interface {
	CreateChargeIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)
}

// Stripe implements Processor with the Stripe payment intents API.
type Stripe struct {
	api *client.API
}

// NewStripe returns a processor for the given secret key.
func NewStripe(secretKey string) *Stripe {
	return &Stripe{api: client.New(secretKey, nil)}
}

// CreateChargeIntent creates a payment intent. Identical requests share one
// idempotency key, so a retried request returns the same intent.
func (s *Stripe) CreateChargeIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error) {
	if amountCents <= 0 {
		return Intent{}, &model.ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(idempotencyKey(amountCents, currency, metadata))

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			return Intent{}, fmt.Errorf("%w: stripe %s: %s", model.ErrExternal, serr.Code, serr.Msg)
		}
		return Intent{}, fmt.Errorf("%w: stripe: %v", model.ErrExternal, err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func idempotencyKey(amountCents int64, currency string, metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s", amountCents, strings.ToLower(currency))
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%s", k, metadata[k])
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sb.String())).String()
}

// AmountInCents converts a money amount to the smallest currency unit.
func AmountInCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Confirmation says that the invoice InvoiceID of OwnerID has been paid.
type Confirmation struct {
	InvoiceID uint
	OwnerID   uint
	Reference string
}

// ParseWebhook verifies the signature of a Stripe webhook request and
// extracts the payment confirmation. Events other than a succeeded payment
// intent yield ErrIgnoredEvent.
func ParseWebhook(payload []byte, signature, secret string) (*Confirmation, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, &model.ValidationError{Field: "signature", Message: err.Error()}
	}
	if event.Type != eventPaymentSucceeded {
		return nil, ErrIgnoredEvent
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, &model.ValidationError{Field: "data", Message: "cannot decode payment intent"}
	}
	return ConfirmationFromMetadata(pi.ID, pi.Metadata)
}

// ConfirmationFromMetadata reads the invoice and owner ids written by
// CreateChargeIntent callers.
func ConfirmationFromMetadata(reference string, metadata map[string]string) (*Confirmation, error) {
	invoiceID, err := strconv.ParseUint(metadata[MetaInvoiceID], 10, 64)
	if err != nil || invoiceID == 0 {
		return nil, &model.ValidationError{Field: MetaInvoiceID, Message: "missing in payment metadata"}
	}
	ownerID, err := strconv.ParseUint(metadata[MetaOwnerID], 10, 64)
	if err != nil || ownerID == 0 {
		return nil, &model.ValidationError{Field: MetaOwnerID, Message: "missing in payment metadata"}
	}
	return &Confirmation{InvoiceID: uint(invoiceID), OwnerID: uint(ownerID), Reference: reference}, nil
}
