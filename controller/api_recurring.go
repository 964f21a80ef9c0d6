package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/recurring"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

type APIRecurringTemplate struct {
	ID                 uint             `json:"id" xml:"id,attr"`
	ClientID           uint             `json:"client_id" xml:"client_id"`
	Name               string           `json:"name" xml:"name"`
	Frequency          string           `json:"frequency" xml:"frequency"`
	NextGenerationDate string           `json:"next_generation_date" xml:"next_generation_date"`
	DaysBefore         int              `json:"days_before" xml:"days_before"`
	Active             bool             `json:"active" xml:"active"`
	AutoSend           bool             `json:"auto_send" xml:"auto_send"`
	Notes              string           `json:"notes,omitempty" xml:"notes,omitempty"`
	EmailTemplate      string           `json:"email_template,omitempty" xml:"email_template,omitempty"`
	Total              string           `json:"total" xml:"total"`
	Items              []APIInvoiceItem `json:"items" xml:"items>item"`
	CreatedAt          time.Time        `json:"created_at" xml:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" xml:"updated_at"`
}

type APIRecurringTemplateList struct {
	XMLName struct{}               `json:"-" xml:"recurring_templates"`
	Items   []APIRecurringTemplate `json:"items" xml:"recurring_template"`
}

// APIRecurringTemplateInput is the body of POST and PUT
// /api/v1/recurring-templates. next_generation_date and active are only read
// on create.
type APIRecurringTemplateInput struct {
	ClientID           uint                  `json:"client_id"`
	Name               string                `json:"name"`
	Frequency          string                `json:"frequency"`
	NextGenerationDate string                `json:"next_generation_date"`
	DaysBefore         int                   `json:"days_before"`
	Active             *bool                 `json:"active"`
	AutoSend           bool                  `json:"auto_send"`
	Notes              string                `json:"notes"`
	EmailTemplate      string                `json:"email_template"`
	Items              []APIInvoiceItemInput `json:"items"`
}

func templateItemFromInput(in *APIInvoiceItemInput) (model.RecurringTemplateItem, error) {
	it, err := in.toModel()
	if err != nil {
		return model.RecurringTemplateItem{}, err
	}
	return model.RecurringTemplateItem{
		Position:    it.Position,
		Description: it.Description,
		Quantity:    it.Quantity,
		UnitPrice:   it.UnitPrice,
	}, nil
}

func templateFromInput(in *APIRecurringTemplateInput, ownerID uint, create bool) (*model.RecurringTemplate, error) {
	t := &model.RecurringTemplate{
		OwnerID:       ownerID,
		ClientID:      in.ClientID,
		Name:          strings.TrimSpace(in.Name),
		Frequency:     schedule.Frequency(strings.ToLower(strings.TrimSpace(in.Frequency))),
		DaysBefore:    in.DaysBefore,
		AutoSend:      in.AutoSend,
		Notes:         strings.TrimSpace(in.Notes),
		EmailTemplate: in.EmailTemplate,
		Active:        true,
	}
	if create {
		start, err := parseDate("next_generation_date", in.NextGenerationDate)
		if err != nil {
			return nil, err
		}
		t.NextGenerationDate = start
		if in.Active != nil {
			t.Active = *in.Active
		}
		for i := range in.Items {
			it, err := templateItemFromInput(&in.Items[i])
			if err != nil {
				return nil, err
			}
			t.Items = append(t.Items, it)
		}
	}
	return t, nil
}

func templateItemToAPI(it *model.RecurringTemplateItem) APIInvoiceItem {
	return APIInvoiceItem{
		ID:          it.ID,
		Position:    it.Position,
		Description: it.Description,
		Quantity:    it.Quantity.String(),
		UnitPrice:   it.UnitPrice.StringFixed(2),
		Amount:      it.Amount.StringFixed(2),
	}
}

func templateToAPI(t *model.RecurringTemplate) APIRecurringTemplate {
	out := APIRecurringTemplate{
		ID:                 t.ID,
		ClientID:           t.ClientID,
		Name:               t.Name,
		Frequency:          string(t.Frequency),
		NextGenerationDate: formatDate(t.NextGenerationDate),
		DaysBefore:         t.DaysBefore,
		Active:             t.Active,
		AutoSend:           t.AutoSend,
		Notes:              t.Notes,
		EmailTemplate:      t.EmailTemplate,
		Total:              t.Total().StringFixed(2),
		Items:              make([]APIInvoiceItem, len(t.Items)),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	for i := range t.Items {
		out.Items[i] = templateItemToAPI(&t.Items[i])
	}
	return out
}

// apiTemplateList handles GET /api/v1/recurring-templates
func (ctrl *controller) apiTemplateList(c echo.Context) error {
	ts, err := ctrl.model.ListRecurringTemplates(c.Request().Context(), apiOwnerID(c))
	if err != nil {
		return apiFail(c, err, "recurring templates")
	}
	items := make([]APIRecurringTemplate, len(ts))
	for i := range ts {
		items[i] = templateToAPI(&ts[i])
	}
	return respond(c, http.StatusOK, APIRecurringTemplateList{Items: items})
}

// apiTemplateGet handles GET /api/v1/recurring-templates/:id
func (ctrl *controller) apiTemplateGet(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	t, err := ctrl.model.LoadRecurringTemplate(c.Request().Context(), id, apiOwnerID(c))
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	c.Response().Header().Set("ETag", etag("tmpl", t.ID, t.UpdatedAt))
	return respond(c, http.StatusOK, templateToAPI(t))
}

// apiTemplateCreate handles POST /api/v1/recurring-templates
func (ctrl *controller) apiTemplateCreate(c echo.Context) error {
	var input APIRecurringTemplateInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	t, err := templateFromInput(&input, apiOwnerID(c), true)
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	if err := ctrl.model.CreateRecurringTemplate(c.Request().Context(), t); err != nil {
		return apiFail(c, err, "recurring template")
	}
	c.Response().Header().Set("Location", "/api/v1/recurring-templates/"+strconv.FormatUint(uint64(t.ID), 10))
	return respond(c, http.StatusCreated, templateToAPI(t))
}

// apiTemplateUpdate handles PUT /api/v1/recurring-templates/:id
func (ctrl *controller) apiTemplateUpdate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var input APIRecurringTemplateInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	t, err := templateFromInput(&input, ownerID, false)
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	t.ID = id
	if err := ctrl.model.UpdateRecurringTemplate(ctx, t); err != nil {
		return apiFail(c, err, "recurring template")
	}
	updated, err := ctrl.model.LoadRecurringTemplate(ctx, id, ownerID)
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	return respond(c, http.StatusOK, templateToAPI(updated))
}

// apiTemplateDelete handles DELETE /api/v1/recurring-templates/:id
func (ctrl *controller) apiTemplateDelete(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := ctrl.model.DeleteRecurringTemplate(c.Request().Context(), id, apiOwnerID(c)); err != nil {
		return apiFail(c, err, "recurring template")
	}
	return c.NoContent(http.StatusNoContent)
}

// apiTemplateToggle handles POST /api/v1/recurring-templates/:id/toggle
func (ctrl *controller) apiTemplateToggle(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	if _, err := ctrl.model.ToggleRecurringTemplate(ctx, id, ownerID); err != nil {
		return apiFail(c, err, "recurring template")
	}
	t, err := ctrl.model.LoadRecurringTemplate(ctx, id, ownerID)
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	return respond(c, http.StatusOK, templateToAPI(t))
}

func (ctrl *controller) templateHasItem(ctx context.Context, ownerID, templateID, itemID uint) error {
	items, err := ctrl.model.ListTemplateItems(ctx, ownerID, templateID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ID == itemID {
			return nil
		}
	}
	return fmt.Errorf("item %d of template %d: %w", itemID, templateID, model.ErrNotFound)
}

// apiTemplateItemList handles GET /api/v1/recurring-templates/:id/items
func (ctrl *controller) apiTemplateItemList(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	items, err := ctrl.model.ListTemplateItems(c.Request().Context(), apiOwnerID(c), id)
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	out := make([]APIInvoiceItem, len(items))
	for i := range items {
		out[i] = templateItemToAPI(&items[i])
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}

// apiTemplateInvoices handles GET /api/v1/recurring-templates/:id/invoices
func (ctrl *controller) apiTemplateInvoices(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	if _, err := ctrl.model.LoadRecurringTemplate(ctx, id, ownerID); err != nil {
		return apiFail(c, err, "recurring template")
	}
	invs, err := ctrl.model.GeneratedInvoices(ctx, ownerID, id)
	if err != nil {
		return apiFail(c, err, "invoices")
	}
	out := APIInvoiceList{Items: make([]APIInvoice, len(invs))}
	for i := range invs {
		out.Items[i] = ctrl.invoiceToAPI(&invs[i])
	}
	return respond(c, http.StatusOK, out)
}

// apiTemplateItemCreate handles POST /api/v1/recurring-templates/:id/items
func (ctrl *controller) apiTemplateItemCreate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var input APIInvoiceItemInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	it, err := templateItemFromInput(&input)
	if err != nil {
		return apiFail(c, err, "template item")
	}
	if err := ctrl.model.AddTemplateItem(c.Request().Context(), apiOwnerID(c), id, &it); err != nil {
		return apiFail(c, err, "recurring template")
	}
	return respond(c, http.StatusCreated, templateItemToAPI(&it))
}

// apiTemplateItemUpdate handles PUT /api/v1/recurring-templates/:id/items/:itemid
func (ctrl *controller) apiTemplateItemUpdate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	itemID, ok := paramID(c, "itemid")
	if !ok {
		return badID(c)
	}
	var input APIInvoiceItemInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	it, err := templateItemFromInput(&input)
	if err != nil {
		return apiFail(c, err, "template item")
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	if err := ctrl.templateHasItem(ctx, ownerID, id, itemID); err != nil {
		return apiFail(c, err, "template item")
	}
	it.ID = itemID
	if err := ctrl.model.UpdateTemplateItem(ctx, ownerID, &it); err != nil {
		return apiFail(c, err, "template item")
	}
	return respond(c, http.StatusOK, templateItemToAPI(&it))
}

// apiTemplateItemDelete handles DELETE /api/v1/recurring-templates/:id/items/:itemid
func (ctrl *controller) apiTemplateItemDelete(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	itemID, ok := paramID(c, "itemid")
	if !ok {
		return badID(c)
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	if err := ctrl.templateHasItem(ctx, ownerID, id, itemID); err != nil {
		return apiFail(c, err, "template item")
	}
	if err := ctrl.model.DeleteTemplateItem(ctx, ownerID, itemID); err != nil {
		return apiFail(c, err, "template item")
	}
	return c.NoContent(http.StatusNoContent)
}

type APIGenerationResult struct {
	TemplateID     uint        `json:"template_id"`
	OccurrenceDate string      `json:"occurrence_date"`
	Skipped        bool        `json:"skipped,omitempty"`
	SkipReason     string      `json:"skip_reason,omitempty"`
	Error          string      `json:"error,omitempty"`
	Sent           bool        `json:"sent"`
	SendError      string      `json:"send_error,omitempty"`
	Invoice        *APIInvoice `json:"invoice,omitempty"`
}

type APIGenerationReport struct {
	RunID     string                `json:"run_id"`
	Reference string                `json:"reference_date"`
	Generated int                   `json:"generated"`
	Failed    int                   `json:"failed"`
	Results   []APIGenerationResult `json:"results"`
}

func (ctrl *controller) generationResultToAPI(res recurring.Result) APIGenerationResult {
	out := APIGenerationResult{
		TemplateID:     res.TemplateID,
		OccurrenceDate: formatDate(res.OccurrenceDate),
		Skipped:        res.Skipped,
		SkipReason:     res.SkipReason,
		Sent:           res.Sent,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.SendErr != nil {
		out.SendError = res.SendErr.Error()
	}
	if res.Invoice != nil {
		inv := ctrl.invoiceToAPI(res.Invoice)
		out.Invoice = &inv
	}
	return out
}

// apiTemplateGenerate handles POST /api/v1/recurring-templates/:id/generate
func (ctrl *controller) apiTemplateGenerate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	res, err := ctrl.engine.GenerateOne(c.Request().Context(), apiOwnerID(c), id, ctrl.now())
	if err != nil {
		return apiFail(c, err, "recurring template")
	}
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	return c.JSON(status, ctrl.generationResultToAPI(res))
}

// apiGenerateDue handles POST /api/v1/recurring-templates/generate. An
// optional "date" query parameter (YYYY-MM-DD) overrides today.
func (ctrl *controller) apiGenerateDue(c echo.Context) error {
	ref := ctrl.now()
	if d := c.QueryParam("date"); d != "" {
		parsed, err := parseDate("date", d)
		if err != nil {
			return apiFail(c, err, "generation")
		}
		ref = parsed
	}
	report, err := ctrl.engine.GenerateDueForOwner(c.Request().Context(), apiOwnerID(c), ref)
	if err != nil {
		return apiFail(c, err, "generation")
	}
	out := APIGenerationReport{
		RunID:     report.RunID,
		Reference: formatDate(report.Reference),
		Generated: len(report.Generated()),
		Failed:    len(report.Failed()),
		Results:   make([]APIGenerationResult, len(report.Results)),
	}
	for i, res := range report.Results {
		out.Results[i] = ctrl.generationResultToAPI(res)
	}
	return c.JSON(http.StatusOK, out)
}
