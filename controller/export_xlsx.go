package controller

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/njrobinson96/InvoiceNinja2/dashboard"
	"github.com/njrobinson96/InvoiceNinja2/model"
)

const (
	invoiceSheet    = "Invoices"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var invoiceColumns = []any{
	"Number", "Client", "Issue date", "Due date", "Status", "Effective status", "Currency", "Total", "Recurring", "Last sent",
}

// WriteInvoicesXLSX writes one row per invoice. clients maps client ids to
// names; effective statuses are computed at now.
func WriteInvoicesXLSX(w io.Writer, invoices []model.Invoice, clients map[uint]string, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(invoiceSheet, "A1", &invoiceColumns); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(invoiceColumns), 1)
	if err := f.SetCellStyle(invoiceSheet, "A1", last, bold); err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	for i := range invoices {
		inv := &invoices[i]
		name, ok := clients[inv.ClientID]
		if !ok {
			name = dashboard.UnknownClient
		}
		lastSent := ""
		if inv.LastSentDate != nil {
			lastSent = formatDate(*inv.LastSentDate)
		}
		row := []any{
			inv.Number,
			name,
			formatDate(inv.IssueDate),
			formatDate(inv.DueDate),
			string(inv.Status),
			string(model.ComputeStatus(inv, now)),
			inv.Currency,
			inv.TotalAmount.InexactFloat64(),
			inv.IsRecurring,
			lastSent,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(invoiceSheet, cell, &row); err != nil {
			return err
		}
		total, _ := excelize.CoordinatesToCellName(8, i+2)
		if err := f.SetCellStyle(invoiceSheet, total, total, money); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(invoiceSheet, "A", "B", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(invoiceSheet, "C", "J", 14); err != nil {
		return err
	}
	if err := f.AutoFilter(invoiceSheet, fmt.Sprintf("A1:%s", last), nil); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// apiInvoiceExport handles GET /api/v1/invoices/export.xlsx
func (ctrl *controller) apiInvoiceExport(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	invs, err := ctrl.model.InvoicesForOwner(ctx, ownerID)
	if err != nil {
		return apiFail(c, err, "invoices")
	}
	clients, err := ctrl.model.ListClients(ctx, ownerID)
	if err != nil {
		return apiFail(c, err, "clients")
	}
	names := make(map[uint]string, len(clients))
	for _, cl := range clients {
		names[cl.ID] = cl.Name
	}

	now := ctrl.now()
	var buf bytes.Buffer
	if err := WriteInvoicesXLSX(&buf, invs, names, now); err != nil {
		return ErrInternal(fmt.Errorf("xlsx export: %w", err))
	}
	filename := fmt.Sprintf("invoices-%s.xlsx", now.Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
