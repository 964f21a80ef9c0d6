package controller

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/njrobinson96/InvoiceNinja2/fixtures"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(invoiceSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestWriteInvoicesXLSX(t *testing.T) {
	invoices := []model.Invoice{
		{
			ID: 1, ClientID: 7, Number: "INV-2024-0001", Status: model.InvoiceStatusSent, Currency: "usd",
			IssueDate: fixtures.Day(2024, time.January, 1), DueDate: fixtures.Day(2024, time.January, 31),
			TotalAmount: decimal.RequireFromString("1234.5"),
		},
		{
			ID: 2, ClientID: 99, Number: "INV-2024-0002", Status: model.InvoiceStatusDraft, Currency: "usd",
			IssueDate: fixtures.Day(2024, time.February, 1), DueDate: fixtures.Day(2024, time.March, 1),
			TotalAmount: decimal.RequireFromString("10"), IsRecurring: true,
		},
	}
	var buf bytes.Buffer
	if err := WriteInvoicesXLSX(&buf, invoices, map[uint]string{7: "Acme Corp"}, testNow); err != nil {
		t.Fatalf("WriteInvoicesXLSX: %v", err)
	}

	rows := readSheet(t, buf.Bytes())
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "Number" || rows[0][7] != "Total" {
		t.Errorf("header = %v", rows[0])
	}
	first := rows[1]
	if first[1] != "Acme Corp" || first[4] != "sent" || first[5] != "overdue" || first[7] != "1234.5" {
		t.Errorf("first row = %v", first)
	}
	second := rows[2]
	if second[1] != "Unknown Client" || second[5] != "draft" || (second[8] != "TRUE" && second[8] != "1") {
		t.Errorf("second row = %v", second)
	}
}

func TestAPIInvoiceExport(t *testing.T) {
	a := setupTestAPI(t)
	fixtures.MustCreateInvoice(t, a.store, fixtures.Invoice(a.data.Client.ID,
		fixtures.WithInvoiceItems(fixtures.Item("Work", "1", "100"))))
	other := fixtures.SeedOwner(t, a.store, "other@example.com")

	rec := a.call(t, http.MethodGet, "/api/v1/invoices/export.xlsx", nil, fixtures.DefaultOwnerID)
	wantStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="invoices-2024-02-10.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rows := readSheet(t, rec.Body.Bytes()); len(rows) != 2 || rows[1][0] != "INV-2024-0001" {
		t.Errorf("rows = %v", rows)
	}

	rec = a.call(t, http.MethodGet, "/api/v1/invoices/export.xlsx", nil, other)
	wantStatus(t, rec, http.StatusOK)
	if rows := readSheet(t, rec.Body.Bytes()); len(rows) != 1 {
		t.Errorf("foreign export has %d rows, want header only", len(rows))
	}
}
