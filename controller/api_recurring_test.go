package controller

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

func TestAPITemplateCreateAndGet(t *testing.T) {
	a := setupTestAPI(t)
	inactive := false

	rec := a.call(t, http.MethodPost, "/api/v1/recurring-templates", APIRecurringTemplateInput{
		ClientID:           a.data.Client.ID,
		Name:               "Hosting",
		Frequency:          "Quarterly",
		NextGenerationDate: "2024-03-31",
		DaysBefore:         10,
		Active:             &inactive,
		Items: []APIInvoiceItemInput{
			{Description: "Server", Quantity: "3", UnitPrice: "40"},
			{Description: "Backup", Quantity: "1", UnitPrice: "5.50"},
		},
	}, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusCreated)

	created := decode[APIRecurringTemplate](t, rec)
	if created.Frequency != "quarterly" || created.Active || created.Total != "125.50" {
		t.Errorf("created = %+v", created)
	}
	if created.NextGenerationDate != "2024-03-31" {
		t.Errorf("NextGenerationDate = %q", created.NextGenerationDate)
	}

	rec = a.call(t, http.MethodGet, fmt.Sprintf("/api/v1/recurring-templates/%d", created.ID), nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	got := decode[APIRecurringTemplate](t, rec)
	if len(got.Items) != 2 || got.Items[1].Amount != "5.50" {
		t.Errorf("items = %+v", got.Items)
	}

	rec = a.call(t, http.MethodGet, "/api/v1/recurring-templates", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if n := len(decode[APIRecurringTemplateList](t, rec).Items); n != 1 {
		t.Errorf("list has %d templates, want 1", n)
	}
}

func TestAPITemplateCreate_Invalid(t *testing.T) {
	a := setupTestAPI(t)

	tests := []struct {
		name  string
		in    APIRecurringTemplateInput
		field string
	}{
		{"unknown frequency", APIRecurringTemplateInput{ClientID: a.data.Client.ID, Name: "x", Frequency: "daily", NextGenerationDate: "2024-01-01"}, "frequency"},
		{"missing start", APIRecurringTemplateInput{ClientID: a.data.Client.ID, Name: "x", Frequency: "weekly"}, "next_generation_date"},
		{"missing name", APIRecurringTemplateInput{ClientID: a.data.Client.ID, Frequency: "weekly", NextGenerationDate: "2024-01-01"}, "name"},
		{"unknown client", APIRecurringTemplateInput{ClientID: 999, Name: "x", Frequency: "weekly", NextGenerationDate: "2024-01-01"}, "client_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.call(t, http.MethodPost, "/api/v1/recurring-templates", tt.in, fixtures.DefaultOwnerID)
			wantStatus(t, rec, http.StatusBadRequest)
			if got := decode[APIError](t, rec); got.Field != tt.field {
				t.Errorf("Field = %q, want %q", got.Field, tt.field)
			}
		})
	}
}

func TestAPITemplateUpdateToggleDelete(t *testing.T) {
	a := setupTestAPI(t)
	tmpl := fixtures.MustCreateTemplate(t, a.store, fixtures.Template(a.data.Client.ID))
	path := fmt.Sprintf("/api/v1/recurring-templates/%d", tmpl.ID)

	rec := a.call(t, http.MethodPut, path, APIRecurringTemplateInput{
		ClientID:           a.data.Client.ID,
		Name:               "Weekly retainer",
		Frequency:          "weekly",
		NextGenerationDate: "2030-01-01",
		DaysBefore:         7,
	}, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	updated := decode[APIRecurringTemplate](t, rec)
	if updated.Name != "Weekly retainer" || updated.Frequency != "weekly" || updated.DaysBefore != 7 {
		t.Errorf("updated = %+v", updated)
	}
	// the schedule position is owned by the generator
	if updated.NextGenerationDate != "2024-01-15" || !updated.Active {
		t.Errorf("next = %s active = %v, want 2024-01-15 / true", updated.NextGenerationDate, updated.Active)
	}

	rec = a.call(t, http.MethodPost, path+"/toggle", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if decode[APIRecurringTemplate](t, rec).Active {
		t.Error("template still active after toggle")
	}

	other := fixtures.SeedOwner(t, a.store, "other@example.com")
	wantStatus(t, a.call(t, http.MethodPost, path+"/toggle", nil, other), http.StatusNotFound)
	wantStatus(t, a.call(t, http.MethodDelete, path, nil, other), http.StatusNotFound)

	wantStatus(t, a.call(t, http.MethodDelete, path, nil, fixtures.DefaultOwnerID), http.StatusNoContent)
	wantStatus(t, a.call(t, http.MethodGet, path, nil, fixtures.DefaultOwnerID), http.StatusNotFound)
}

func TestAPITemplateItems(t *testing.T) {
	a := setupTestAPI(t)
	tmpl := fixtures.MustCreateTemplate(t, a.store, fixtures.Template(a.data.Client.ID))
	second := fixtures.MustCreateTemplate(t, a.store, fixtures.Template(a.data.Client.ID, fixtures.WithTemplateName("Second")))
	base := fmt.Sprintf("/api/v1/recurring-templates/%d/items", tmpl.ID)

	rec := a.call(t, http.MethodPost, base, APIInvoiceItemInput{Description: "Extra", Quantity: "2", UnitPrice: "25"}, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusCreated)
	item := decode[APIInvoiceItem](t, rec)
	if item.Amount != "50.00" {
		t.Errorf("Amount = %s, want 50.00", item.Amount)
	}

	rec = a.call(t, http.MethodGet, base, nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if items := decode[map[string][]APIInvoiceItem](t, rec)["items"]; len(items) != 2 {
		t.Errorf("template has %d items, want 2", len(items))
	}

	rec = a.call(t, http.MethodPut, fmt.Sprintf("%s/%d", base, item.ID),
		APIInvoiceItemInput{Description: "Extra", Quantity: "4", UnitPrice: "25"}, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[APIInvoiceItem](t, rec); got.Amount != "100.00" {
		t.Errorf("Amount = %s, want 100.00", got.Amount)
	}

	rec = a.call(t, http.MethodDelete, fmt.Sprintf("/api/v1/recurring-templates/%d/items/%d", second.ID, item.ID), nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusNotFound)

	rec = a.call(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, item.ID), nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusNoContent)

	loaded, err := a.store.LoadRecurringTemplate(context.Background(), tmpl.ID, fixtures.DefaultOwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Items) != 1 || loaded.Total().StringFixed(2) != "500.00" {
		t.Errorf("template items = %+v", loaded.Items)
	}
}

func TestAPITemplateGenerate(t *testing.T) {
	a := setupTestAPI(t)
	// paused and not due yet: generate-now ignores both
	tmpl := fixtures.MustCreateTemplate(t, a.store, fixtures.Template(a.data.Client.ID,
		fixtures.WithTemplateActive(false),
		fixtures.WithTemplateNextDate(fixtures.Day(2024, time.March, 1))))
	path := fmt.Sprintf("/api/v1/recurring-templates/%d/generate", tmpl.ID)

	rec := a.call(t, http.MethodPost, path, nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusCreated)
	res := decode[APIGenerationResult](t, rec)
	if res.Invoice == nil || res.Skipped {
		t.Fatalf("result = %+v", res)
	}
	if res.OccurrenceDate != "2024-03-01" || res.Invoice.IssueDate != "2024-02-10" || res.Invoice.TotalAmount != "500.00" {
		t.Errorf("result = %+v / invoice %+v", res, res.Invoice)
	}

	loaded, err := a.store.LoadRecurringTemplate(context.Background(), tmpl.ID, fixtures.DefaultOwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.NextGenerationDate.Equal(schedule.Date(2024, time.April, 1)) {
		t.Errorf("next = %s, want 2024-04-01", loaded.NextGenerationDate)
	}

	listPath := fmt.Sprintf("/api/v1/recurring-templates/%d/invoices", tmpl.ID)
	rec = a.call(t, http.MethodGet, listPath, nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if list := decode[APIInvoiceList](t, rec); len(list.Items) != 1 || list.Items[0].ID != res.Invoice.ID {
		t.Errorf("generated invoices = %+v", list.Items)
	}

	other := fixtures.SeedOwner(t, a.store, "other@example.com")
	wantStatus(t, a.call(t, http.MethodPost, path, nil, other), http.StatusNotFound)
	wantStatus(t, a.call(t, http.MethodGet, listPath, nil, other), http.StatusNotFound)
}

func TestAPIGenerateDue(t *testing.T) {
	a := setupTestAPI(t)
	other := fixtures.SeedOwner(t, a.store, "other@example.com")
	otherClient := fixtures.Client(fixtures.WithClientOwner(other))
	if err := a.store.CreateClient(context.Background(), otherClient); err != nil {
		t.Fatal(err)
	}

	fixtures.MustCreateTemplate(t, a.store, fixtures.Template(a.data.Client.ID, fixtures.WithTemplateAutoSend(true)))
	fixtures.MustCreateTemplate(t, a.store, fixtures.Template(a.data.Client.ID,
		fixtures.WithTemplateNextDate(fixtures.Day(2024, time.June, 1))))
	foreign := fixtures.MustCreateTemplate(t, a.store, fixtures.Template(otherClient.ID, fixtures.WithTemplateOwner(other)))

	rec := a.call(t, http.MethodPost, "/api/v1/recurring-templates/generate", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	report := decode[APIGenerationReport](t, rec)
	if report.RunID == "" || report.Reference != "2024-02-10" {
		t.Errorf("report = %+v", report)
	}
	if report.Generated != 1 || report.Failed != 0 || len(report.Results) != 1 {
		t.Fatalf("report = %+v", report)
	}
	res := report.Results[0]
	if !res.Sent || res.Invoice == nil || res.Invoice.Status != "sent" {
		t.Errorf("auto send result = %+v", res)
	}
	if n := len(a.mail.Sent()); n != 1 {
		t.Errorf("sent %d mails, want 1", n)
	}

	// the other owner's template was not touched
	loaded, err := a.store.LoadRecurringTemplate(context.Background(), foreign.ID, other)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.NextGenerationDate.Equal(fixtures.Day(2024, time.January, 15)) {
		t.Errorf("foreign template advanced to %s", loaded.NextGenerationDate)
	}

	// explicit reference date
	rec = a.call(t, http.MethodPost, "/api/v1/recurring-templates/generate?date=2024-06-01", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if report := decode[APIGenerationReport](t, rec); report.Generated != 2 {
		t.Errorf("generated %d on 2024-06-01, want 2", report.Generated)
	}

	rec = a.call(t, http.MethodPost, "/api/v1/recurring-templates/generate?date=June", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusBadRequest)
}
