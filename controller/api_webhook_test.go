package controller

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

const webhookSecret = "whsec_controller"

func stripeEvent(eventType string, invoiceID, ownerID uint) ([]byte, string) {
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_9",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": "pi_web", "object": "payment_intent",
			"metadata": {"invoice_id": "%d", "owner_id": "%d"}}}
	}`, stripe.APIVersion, eventType, invoiceID, ownerID))
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func (a *testAPI) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook(t *testing.T) {
	a := setupTestAPI(t)
	inv := fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(a.data.Client.ID,
		fixtures.WithInvoiceStatus(model.InvoiceStatusSent),
		fixtures.WithInvoiceItems(fixtures.Item("Work", "2", "50"))))

	// not configured
	payload, sig := stripeEvent("payment_intent.succeeded", inv.ID, fixtures.DefaultOwnerID)
	wantStatus(t, a.webhook(t, payload, sig), http.StatusServiceUnavailable)

	a.store.Config.StripeWebhookSecret = webhookSecret

	rec := a.webhook(t, payload, "t=1,v1=deadbeef")
	wantStatus(t, rec, http.StatusBadRequest)
	if got := decode[APIError](t, rec).Field; got != "signature" {
		t.Errorf("Field = %q, want signature", got)
	}

	other, otherSig := stripeEvent("payment_intent.created", inv.ID, fixtures.DefaultOwnerID)
	wantStatus(t, a.webhook(t, other, otherSig), http.StatusOK)

	rec = a.webhook(t, payload, sig)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["status"]; got != "paid" {
		t.Errorf("status = %v, want paid", got)
	}
	// redelivery is a no-op
	wantStatus(t, a.webhook(t, payload, sig), http.StatusOK)

	loaded, err := a.store.LoadInvoice(context.Background(), inv.ID, fixtures.DefaultOwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != model.InvoiceStatusPaid || loaded.PaymentReference != "pi_web" {
		t.Errorf("invoice = %s / %q", loaded.Status, loaded.PaymentReference)
	}

	foreign, foreignSig := stripeEvent("payment_intent.succeeded", inv.ID, 42)
	wantStatus(t, a.webhook(t, foreign, foreignSig), http.StatusNotFound)
}
