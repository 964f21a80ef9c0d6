package controller

import "github.com/labstack/echo/v4"

func (ctrl *controller) apiInit(e *echo.Echo) {
	// unauthenticated
	e.POST("/api/v1/auth/token", ctrl.apiLogin)
	e.POST("/webhooks/stripe", ctrl.stripeWebhook)

	api := e.Group("/api/v1")
	api.Use(ctrl.APIKeyAuthMiddleware())
	ctrl.apiRoutes(api)
}

// apiRoutes registers the token protected routes on api.
func (ctrl *controller) apiRoutes(api *echo.Group) {
	// token management
	api.GET("/tokens", ctrl.apiListTokens)
	api.POST("/tokens", ctrl.apiCreateToken)
	api.DELETE("/tokens/:id", ctrl.apiRevokeToken)

	api.GET("/clients", ctrl.apiClientList)
	api.POST("/clients", ctrl.apiClientCreate)
	api.GET("/clients/:id", ctrl.apiClientGet)
	api.PUT("/clients/:id", ctrl.apiClientUpdate)
	api.DELETE("/clients/:id", ctrl.apiClientDelete)

	api.GET("/invoices", ctrl.apiInvoiceList)
	api.POST("/invoices", ctrl.apiInvoiceCreate)
	api.GET("/invoices/export.xlsx", ctrl.apiInvoiceExport)
	api.GET("/invoices/:id", ctrl.apiInvoiceGet)
	api.PUT("/invoices/:id", ctrl.apiInvoiceUpdate)
	api.DELETE("/invoices/:id", ctrl.apiInvoiceDelete)
	api.PATCH("/invoices/:id/status", ctrl.apiInvoiceStatus)
	api.POST("/invoices/:id/send", ctrl.apiInvoiceSend)
	api.POST("/invoices/:id/remind", ctrl.apiInvoiceRemind)
	api.POST("/invoices/:id/receipt", ctrl.apiInvoiceReceipt)
	api.POST("/invoices/:id/payment-intent", ctrl.apiInvoicePaymentIntent)
	api.POST("/invoices/:id/items", ctrl.apiInvoiceItemCreate)
	api.POST("/invoices/:id/items/import", ctrl.apiInvoiceItemsImport)
	api.PUT("/invoices/:id/items/:itemid", ctrl.apiInvoiceItemUpdate)
	api.DELETE("/invoices/:id/items/:itemid", ctrl.apiInvoiceItemDelete)

	api.GET("/recurring-templates", ctrl.apiTemplateList)
	api.POST("/recurring-templates", ctrl.apiTemplateCreate)
	api.POST("/recurring-templates/generate", ctrl.apiGenerateDue)
	api.GET("/recurring-templates/:id", ctrl.apiTemplateGet)
	api.PUT("/recurring-templates/:id", ctrl.apiTemplateUpdate)
	api.DELETE("/recurring-templates/:id", ctrl.apiTemplateDelete)
	api.POST("/recurring-templates/:id/toggle", ctrl.apiTemplateToggle)
	api.POST("/recurring-templates/:id/generate", ctrl.apiTemplateGenerate)
	api.GET("/recurring-templates/:id/invoices", ctrl.apiTemplateInvoices)
	api.GET("/recurring-templates/:id/items", ctrl.apiTemplateItemList)
	api.POST("/recurring-templates/:id/items", ctrl.apiTemplateItemCreate)
	api.PUT("/recurring-templates/:id/items/:itemid", ctrl.apiTemplateItemUpdate)
	api.DELETE("/recurring-templates/:id/items/:itemid", ctrl.apiTemplateItemDelete)

	api.GET("/dashboard/metrics", ctrl.apiDashboard)
}
