package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/dashboard"
)

type APIDashboard struct {
	PendingAmount    string                      `json:"pending_amount"`
	PaidAmount       string                      `json:"paid_amount"`
	OverdueAmount    string                      `json:"overdue_amount"`
	TotalClients     int                         `json:"total_clients"`
	RecentInvoices   []dashboard.InvoiceSummary  `json:"recent_invoices"`
	UpcomingPayments []dashboard.UpcomingPayment `json:"upcoming_payments"`
}

// apiDashboard handles GET /api/v1/dashboard/metrics
func (ctrl *controller) apiDashboard(c echo.Context) error {
	m, err := dashboard.Load(c.Request().Context(), ctrl.model, apiOwnerID(c), ctrl.now())
	if err != nil {
		return apiFail(c, err, "dashboard")
	}
	return c.JSON(http.StatusOK, APIDashboard{
		PendingAmount:    m.PendingAmount.StringFixed(2),
		PaidAmount:       m.PaidAmount.StringFixed(2),
		OverdueAmount:    m.OverdueAmount.StringFixed(2),
		TotalClients:     m.TotalClients,
		RecentInvoices:   m.RecentInvoices,
		UpcomingPayments: m.UpcomingPayments,
	})
}
