package controller

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/njrobinson96/InvoiceNinja2/billing"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

type APIError struct {
	Code    string `json:"code" xml:"code"`
	Message string `json:"message" xml:"message"`
	Field   string `json:"field,omitempty" xml:"field,omitempty"`
}

func apiError(code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func wantsXML(c echo.Context) bool {
	if c.QueryParam("format") == "xml" {
		return true
	}
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, "application/xml") || strings.Contains(accept, "text/xml")
}

func respond(c echo.Context, status int, v any) error {
	if wantsXML(c) {
		return c.XML(status, v)
	}
	return c.JSON(status, v)
}

// apiFail writes the error response for err. what names the object in
// messages, e.g. "invoice".
func apiFail(c echo.Context, err error, what string) error {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return respond(c, http.StatusBadRequest, &APIError{Code: "validation_error", Message: ve.Message, Field: ve.Field})
	case errors.Is(err, model.ErrValidation):
		return respond(c, http.StatusBadRequest, apiError("validation_error", err.Error()))
	case errors.Is(err, model.ErrNotFound):
		return respond(c, http.StatusNotFound, apiError("not_found", what+" not found"))
	case errors.Is(err, model.ErrInvalidTransition):
		return respond(c, http.StatusConflict, apiError("invalid_transition", err.Error()))
	case errors.Is(err, model.ErrClientInUse):
		return respond(c, http.StatusConflict, apiError("client_in_use", "client still has invoices or recurring templates"))
	case errors.Is(err, model.ErrAlreadyGenerated):
		return respond(c, http.StatusConflict, apiError("already_generated", err.Error()))
	case errors.Is(err, model.ErrConflict):
		return respond(c, http.StatusConflict, apiError("conflict", "the "+what+" was modified concurrently, retry"))
	case errors.Is(err, billing.ErrPaymentsDisabled):
		return respond(c, http.StatusServiceUnavailable, apiError("payments_disabled", "online payments are not configured"))
	case errors.Is(err, model.ErrExternal):
		requestLogger(c).Warn("external capability failed", "error", err)
		return respond(c, http.StatusBadGateway, apiError("external_error", "delivery to an external service failed"))
	}
	requestLogger(c).Error("api request failed", "error", err)
	return respond(c, http.StatusInternalServerError, apiError("db_error", "could not process "+what))
}

func requestLogger(c echo.Context) *slog.Logger {
	if l, ok := c.Get("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func paramID(c echo.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func badID(c echo.Context) error {
	return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid id"))
}

func badBody(c echo.Context) error {
	return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid request body"))
}

// parseDecimal reads a money or quantity field sent as a string.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &model.ValidationError{Field: field, Message: "is not a number"}
	}
	return d, nil
}

// parseDate accepts YYYY-MM-DD and RFC 3339 timestamps.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &model.ValidationError{Field: field, Message: "is required"}
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: field, Message: "must be a date (YYYY-MM-DD)"}
	}
	return d.UTC(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func etag(kind string, id uint, updated time.Time) string {
	return `W/"` + kind + `-` + strconv.FormatUint(uint64(id), 10) + `-` + strconv.FormatInt(updated.Unix(), 10) + `"`
}
