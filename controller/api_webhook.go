package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/payment"
)

const maxWebhookSize = 64 << 10

// stripeWebhook handles POST /webhooks/stripe. It is not behind the API token
// middleware; the Stripe-Signature header authenticates the request.
func (ctrl *controller) stripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookSize))
	if err != nil {
		return badBody(c)
	}
	secret := ""
	if ctrl.model.Config != nil {
		secret = ctrl.model.Config.StripeWebhookSecret
	}
	if secret == "" {
		return respond(c, http.StatusServiceUnavailable, apiError("payments_disabled", "webhook secret is not configured"))
	}
	conf, err := payment.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"), secret)
	if errors.Is(err, payment.ErrIgnoredEvent) {
		return c.NoContent(http.StatusOK)
	}
	if err != nil {
		return apiFail(c, err, "webhook")
	}
	inv, err := ctrl.billing.ConfirmPayment(c.Request().Context(), *conf)
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	requestLogger(c).Info("stripe payment received", "invoice_id", inv.ID, "reference", conf.Reference)
	return c.JSON(http.StatusOK, map[string]any{"invoice_id": inv.ID, "status": inv.Status})
}
