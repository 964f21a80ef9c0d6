package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

// ---- DTOs for invoices ----

type APIInvoice struct {
	ID                  uint             `json:"id" xml:"id,attr"`
	Number              string           `json:"invoice_number" xml:"invoice_number"`
	ClientID            uint             `json:"client_id" xml:"client_id"`
	Status              string           `json:"status" xml:"status"`
	EffectiveStatus     string           `json:"effective_status" xml:"effective_status"`
	IssueDate           string           `json:"issue_date" xml:"issue_date"`
	DueDate             string           `json:"due_date" xml:"due_date"`
	Currency            string           `json:"currency" xml:"currency"`
	TotalAmount         string           `json:"total_amount" xml:"total_amount"`
	Notes               string           `json:"notes,omitempty" xml:"notes,omitempty"`
	IsRecurring         bool             `json:"is_recurring" xml:"is_recurring"`
	RecurringFrequency  string           `json:"recurring_frequency,omitempty" xml:"recurring_frequency,omitempty"`
	RecurringTemplateID *uint            `json:"recurring_template_id,omitempty" xml:"recurring_template_id,omitempty"`
	OccurrenceDate      string           `json:"occurrence_date,omitempty" xml:"occurrence_date,omitempty"`
	LastSentDate        *time.Time       `json:"last_sent_date,omitempty" xml:"last_sent_date,omitempty"`
	PaymentReference    string           `json:"payment_reference,omitempty" xml:"payment_reference,omitempty"`
	Items               []APIInvoiceItem `json:"items,omitempty" xml:"items>item,omitempty"`
	CreatedAt           time.Time        `json:"created_at" xml:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" xml:"updated_at"`
}

type APIInvoiceItem struct {
	ID          uint   `json:"id" xml:"id,attr"`
	Position    int    `json:"position" xml:"position"`
	Description string `json:"description" xml:"description"`
	Quantity    string `json:"quantity" xml:"quantity"`
	UnitPrice   string `json:"unit_price" xml:"unit_price"`
	Amount      string `json:"amount" xml:"amount"`
}

type APIInvoiceList struct {
	XMLName    struct{}     `json:"-" xml:"invoices"`
	Items      []APIInvoice `json:"items" xml:"invoice"`
	NextCursor string       `json:"next_cursor,omitempty" xml:"next_cursor,omitempty"`
}

// APIInvoiceInput is the body of POST and PUT /api/v1/invoices. On update a
// missing items list keeps the stored items.
type APIInvoiceInput struct {
	Number             string                 `json:"invoice_number"`
	ClientID           uint                   `json:"client_id"`
	IssueDate          string                 `json:"issue_date"`
	DueDate            string                 `json:"due_date"`
	Status             string                 `json:"status"`
	Currency           string                 `json:"currency"`
	Notes              string                 `json:"notes"`
	IsRecurring        bool                   `json:"is_recurring"`
	RecurringFrequency string                 `json:"recurring_frequency"`
	Items              *[]APIInvoiceItemInput `json:"items"`
}

type APIInvoiceItemInput struct {
	Position    int    `json:"position"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

func (in *APIInvoiceItemInput) toModel() (model.InvoiceItem, error) {
	qty, err := parseDecimal("quantity", in.Quantity)
	if err != nil {
		return model.InvoiceItem{}, err
	}
	price, err := parseDecimal("unit_price", in.UnitPrice)
	if err != nil {
		return model.InvoiceItem{}, err
	}
	return model.InvoiceItem{
		Position:    in.Position,
		Description: strings.TrimSpace(in.Description),
		Quantity:    qty,
		UnitPrice:   price,
	}, nil
}

func (ctrl *controller) invoiceFromInput(in *APIInvoiceInput, ownerID uint) (*model.Invoice, error) {
	issue, err := parseDate("issue_date", in.IssueDate)
	if err != nil {
		return nil, err
	}
	due, err := parseDate("due_date", in.DueDate)
	if err != nil {
		return nil, err
	}
	currency := strings.TrimSpace(in.Currency)
	if currency == "" {
		currency = ctrl.currency()
	}
	inv := &model.Invoice{
		OwnerID:            ownerID,
		ClientID:           in.ClientID,
		Number:             strings.TrimSpace(in.Number),
		IssueDate:          issue,
		DueDate:            due,
		Status:             model.InvoiceStatus(strings.ToLower(strings.TrimSpace(in.Status))),
		Currency:           currency,
		Notes:              strings.TrimSpace(in.Notes),
		IsRecurring:        in.IsRecurring,
		RecurringFrequency: schedule.Frequency(strings.ToLower(strings.TrimSpace(in.RecurringFrequency))),
	}
	if in.Items != nil {
		inv.Items = make([]model.InvoiceItem, 0, len(*in.Items))
		for i := range *in.Items {
			it, err := (*in.Items)[i].toModel()
			if err != nil {
				return nil, err
			}
			inv.Items = append(inv.Items, it)
		}
	}
	return inv, nil
}

func invoiceItemToAPI(it *model.InvoiceItem) APIInvoiceItem {
	return APIInvoiceItem{
		ID:          it.ID,
		Position:    it.Position,
		Description: it.Description,
		Quantity:    it.Quantity.String(),
		UnitPrice:   it.UnitPrice.StringFixed(2),
		Amount:      it.Amount.StringFixed(2),
	}
}

func (ctrl *controller) invoiceToAPI(inv *model.Invoice) APIInvoice {
	out := APIInvoice{
		ID:                  inv.ID,
		Number:              inv.Number,
		ClientID:            inv.ClientID,
		Status:              string(inv.Status),
		EffectiveStatus:     string(model.ComputeStatus(inv, ctrl.now())),
		IssueDate:           formatDate(inv.IssueDate),
		DueDate:             formatDate(inv.DueDate),
		Currency:            inv.Currency,
		TotalAmount:         inv.TotalAmount.StringFixed(2),
		Notes:               inv.Notes,
		IsRecurring:         inv.IsRecurring,
		RecurringFrequency:  string(inv.RecurringFrequency),
		RecurringTemplateID: inv.RecurringTemplateID,
		OccurrenceDate:      formatDatePtr(inv.OccurrenceDate),
		LastSentDate:        inv.LastSentDate,
		PaymentReference:    inv.PaymentReference,
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt,
	}
	if len(inv.Items) > 0 {
		out.Items = make([]APIInvoiceItem, len(inv.Items))
		for i := range inv.Items {
			out.Items[i] = invoiceItemToAPI(&inv.Items[i])
		}
	}
	return out
}

type invoiceListQuery struct {
	Status   string `form:"status"`
	ClientID uint   `form:"client_id"`
	Limit    int    `form:"limit"`
	Cursor   string `form:"cursor"`
	Sort     string `form:"sort"`
}

var queryDecoder = form.NewDecoder()

// apiInvoiceList handles GET /api/v1/invoices
func (ctrl *controller) apiInvoiceList(c echo.Context) error {
	var q invoiceListQuery
	if err := queryDecoder.Decode(&q, c.QueryParams()); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_query", "invalid query params"))
	}
	invs, next, err := ctrl.model.ListInvoices(c.Request().Context(), apiOwnerID(c), model.InvoiceFilter{
		Status:   q.Status,
		ClientID: q.ClientID,
		Limit:    q.Limit,
		Cursor:   q.Cursor,
		Sort:     q.Sort,
		AsOf:     ctrl.now(),
	})
	if err != nil {
		return apiFail(c, err, "invoices")
	}
	items := make([]APIInvoice, len(invs))
	for i := range invs {
		items[i] = ctrl.invoiceToAPI(&invs[i])
	}
	return respond(c, http.StatusOK, APIInvoiceList{Items: items, NextCursor: next})
}

// apiInvoiceGet handles GET /api/v1/invoices/:id
func (ctrl *controller) apiInvoiceGet(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	inv, err := ctrl.model.LoadInvoice(c.Request().Context(), id, apiOwnerID(c))
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	c.Response().Header().Set("ETag", etag("inv", inv.ID, inv.UpdatedAt))
	return respond(c, http.StatusOK, ctrl.invoiceToAPI(inv))
}

// apiInvoiceCreate handles POST /api/v1/invoices
func (ctrl *controller) apiInvoiceCreate(c echo.Context) error {
	var input APIInvoiceInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	inv, err := ctrl.invoiceFromInput(&input, apiOwnerID(c))
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	if err := ctrl.model.CreateInvoice(c.Request().Context(), inv); err != nil {
		return apiFail(c, err, "invoice")
	}
	c.Response().Header().Set("Location", "/api/v1/invoices/"+strconv.FormatUint(uint64(inv.ID), 10))
	return respond(c, http.StatusCreated, ctrl.invoiceToAPI(inv))
}

// apiInvoiceUpdate handles PUT /api/v1/invoices/:id
func (ctrl *controller) apiInvoiceUpdate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var input APIInvoiceInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	inv, err := ctrl.invoiceFromInput(&input, ownerID)
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	inv.ID = id
	// status changes go through PATCH /status
	inv.Status = model.InvoiceStatusDraft
	if err := ctrl.model.UpdateInvoice(ctx, inv); err != nil {
		return apiFail(c, err, "invoice")
	}
	updated, err := ctrl.model.LoadInvoice(ctx, id, ownerID)
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	return respond(c, http.StatusOK, ctrl.invoiceToAPI(updated))
}

// apiInvoiceDelete handles DELETE /api/v1/invoices/:id
func (ctrl *controller) apiInvoiceDelete(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := ctrl.model.DeleteInvoice(c.Request().Context(), id, apiOwnerID(c)); err != nil {
		return apiFail(c, err, "invoice")
	}
	return c.NoContent(http.StatusNoContent)
}

type statusChangeReq struct {
	Status           string `json:"status"`
	PaymentReference string `json:"payment_reference"`
}

// apiInvoiceStatus handles PATCH /api/v1/invoices/:id/status
func (ctrl *controller) apiInvoiceStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var req statusChangeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	to := model.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !to.Valid() {
		return respond(c, http.StatusBadRequest, &APIError{Code: "validation_error", Message: "unknown status", Field: "status"})
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	var (
		inv *model.Invoice
		err error
	)
	if to == model.InvoiceStatusPaid {
		inv, err = ctrl.model.MarkInvoicePaid(ctx, ownerID, id, strings.TrimSpace(req.PaymentReference), ctrl.now())
	} else {
		inv, err = ctrl.model.ChangeInvoiceStatus(ctx, ownerID, id, to, ctrl.now())
	}
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	requestLogger(c).Info("invoice status changed", "invoice_id", id, "status", inv.Status)
	return respond(c, http.StatusOK, ctrl.invoiceToAPI(inv))
}

// apiInvoiceSend handles POST /api/v1/invoices/:id/send
func (ctrl *controller) apiInvoiceSend(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var req struct {
		Note string `json:"note"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badBody(c)
		}
	}
	inv, err := ctrl.billing.SendInvoice(c.Request().Context(), apiOwnerID(c), id, strings.TrimSpace(req.Note))
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	return respond(c, http.StatusOK, ctrl.invoiceToAPI(inv))
}

// apiInvoiceRemind handles POST /api/v1/invoices/:id/remind
func (ctrl *controller) apiInvoiceRemind(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	inv, err := ctrl.billing.SendReminder(c.Request().Context(), apiOwnerID(c), id)
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	return respond(c, http.StatusOK, ctrl.invoiceToAPI(inv))
}

// apiInvoiceReceipt handles POST /api/v1/invoices/:id/receipt
func (ctrl *controller) apiInvoiceReceipt(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := ctrl.billing.SendReceipt(c.Request().Context(), apiOwnerID(c), id); err != nil {
		return apiFail(c, err, "invoice")
	}
	return c.NoContent(http.StatusAccepted)
}

// apiInvoicePaymentIntent handles POST /api/v1/invoices/:id/payment-intent
func (ctrl *controller) apiInvoicePaymentIntent(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	intent, err := ctrl.billing.CreatePaymentIntent(c.Request().Context(), apiOwnerID(c), id)
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	return c.JSON(http.StatusCreated, intent)
}
