package controller

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
)

func TestParseItems(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		input   string
		want    []string // description|quantity|unit_price
		wantErr bool
	}{
		{
			name:  "csv semicolon with decimal comma",
			ext:   ".csv",
			input: "description;quantity;unit_price\nDesign;3,5;80\nHosting;1;12,50 €\n",
			want:  []string{"Design|3.5|80", "Hosting|1|12.5"},
		},
		{
			name:  "csv comma with aliases and blank lines",
			ext:   ".CSV",
			input: "\ntext,quantity,net_price\nSupport,2,45\n,,\n",
			want:  []string{"Support|2|45"},
		},
		{
			name:  "xml sniffed",
			input: `<invoice><items><item><description>Audit</description><quantity>1</quantity><unit_price>900.00</unit_price></item></items></invoice>`,
			want:  []string{"Audit|1|900"},
		},
		{name: "missing column", ext: ".csv", input: "description;quantity\nx;1\n", wantErr: true},
		{name: "header only", ext: ".csv", input: "description;quantity;unit_price\n", wantErr: true},
		{name: "bad quantity", ext: ".csv", input: "description;quantity;unit_price\nx;abc;1\n", wantErr: true},
		{name: "no description", ext: ".csv", input: "description;quantity;unit_price\n;1;1\n", wantErr: true},
		{name: "empty xml", ext: ".xml", input: `<invoice><items/></invoice>`, wantErr: true},
		{name: "unsupported", ext: ".json", input: `[]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseItems(strings.NewReader(tt.input), tt.ext)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", items)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseItems: %v", err)
			}
			got := make([]string, len(items))
			for i, it := range items {
				got[i] = fmt.Sprintf("%s|%s|%s", it.Description, it.Quantity, it.UnitPrice)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("items = %v, want %v", got, tt.want)
			}
		})
	}
}

func multipartFile(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func (a *testAPI) upload(t *testing.T, target, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartFile(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := a.e.NewContext(req, rec)
	setOwnerContext(c, fixtures.DefaultOwnerID)
	a.e.Router().Find(http.MethodPost, target, c)
	if err := c.Handler()(c); err != nil {
		a.e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestAPIInvoiceItemsImport(t *testing.T) {
	a := setupTestAPI(t)
	inv := fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(a.data.Client.ID,
		fixtures.WithInvoiceItems(fixtures.Item("Existing", "1", "100"))))
	target := fmt.Sprintf("/api/v1/invoices/%d/items/import", inv.ID)

	rec := a.upload(t, target, "lines.csv", "description;quantity;unit_price\nDesign;2;50\nHosting;1;20\n")
	wantStatus(t, rec, http.StatusOK)
	got := decode[APIInvoice](t, rec)
	if len(got.Items) != 3 || got.TotalAmount != "220.00" {
		t.Fatalf("invoice = %+v", got)
	}
	if got.Items[0].Description != "Existing" || got.Items[2].Description != "Hosting" {
		t.Errorf("items out of order: %+v", got.Items)
	}

	// a broken file leaves the invoice untouched
	rec = a.upload(t, target, "lines.csv", "description;quantity;unit_price\nDesign;two;50\n")
	wantStatus(t, rec, http.StatusBadRequest)
	if code := decode[APIError](t, rec).Code; code != "parse_error" {
		t.Errorf("code = %q, want parse_error", code)
	}

	rec = a.upload(t, "/api/v1/invoices/9999/items/import", "lines.csv", "description;quantity;unit_price\nx;1;1\n")
	wantStatus(t, rec, http.StatusNotFound)
}
