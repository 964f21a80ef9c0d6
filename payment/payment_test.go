package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

const testSecret = "whsec_test"

func signedPayload(t *testing.T, eventType string, metadata string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": "pi_123", "object": "payment_intent", "metadata": %s}}
	}`, stripe.APIVersion, eventType, metadata))
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestParseWebhook(t *testing.T) {
	payload, sig := signedPayload(t, "payment_intent.succeeded", `{"invoice_id": "12", "owner_id": "3"}`)
	conf, err := ParseWebhook(payload, sig, testSecret)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if conf.InvoiceID != 12 || conf.OwnerID != 3 || conf.Reference != "pi_123" {
		t.Errorf("confirmation = %+v", conf)
	}
}

func TestParseWebhook_Rejects(t *testing.T) {
	payload, sig := signedPayload(t, "payment_intent.succeeded", `{"invoice_id": "12", "owner_id": "3"}`)
	if _, err := ParseWebhook(payload, sig, "whsec_other"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("wrong secret: err = %v, want ErrValidation", err)
	}

	payload, sig = signedPayload(t, "payment_intent.created", `{"invoice_id": "12", "owner_id": "3"}`)
	if _, err := ParseWebhook(payload, sig, testSecret); !errors.Is(err, ErrIgnoredEvent) {
		t.Errorf("other event: err = %v, want ErrIgnoredEvent", err)
	}

	payload, sig = signedPayload(t, "payment_intent.succeeded", `{}`)
	if _, err := ParseWebhook(payload, sig, testSecret); !errors.Is(err, model.ErrValidation) {
		t.Errorf("missing metadata: err = %v, want ErrValidation", err)
	}
}

func TestAmountInCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"500", 50000},
		{"19.99", 1999},
		{"0.005", 1},
		{"1234.5", 123450},
	}
	for _, tt := range tests {
		if got := AmountInCents(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("AmountInCents(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	a := idempotencyKey(100, "USD", map[string]string{MetaInvoiceID: "1", MetaOwnerID: "2"})
	b := idempotencyKey(100, "usd", map[string]string{MetaOwnerID: "2", MetaInvoiceID: "1"})
	c := idempotencyKey(200, "usd", map[string]string{MetaOwnerID: "2", MetaInvoiceID: "1"})
	if a != b {
		t.Errorf("same request produced different keys")
	}
	if a == c {
		t.Errorf("different amounts share a key")
	}
}
