package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

// itemOfInvoice makes sure itemID is a line of invoice invoiceID.
func (ctrl *controller) itemOfInvoice(ctx context.Context, ownerID, invoiceID, itemID uint) error {
	inv, err := ctrl.model.LoadInvoice(ctx, invoiceID, ownerID)
	if err != nil {
		return err
	}
	for _, it := range inv.Items {
		if it.ID == itemID {
			return nil
		}
	}
	return fmt.Errorf("item %d of invoice %d: %w", itemID, invoiceID, model.ErrNotFound)
}

// apiInvoiceItemCreate handles POST /api/v1/invoices/:id/items
func (ctrl *controller) apiInvoiceItemCreate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var input APIInvoiceItemInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	it, err := input.toModel()
	if err != nil {
		return apiFail(c, err, "invoice item")
	}
	if err := ctrl.model.AddInvoiceItem(c.Request().Context(), apiOwnerID(c), id, &it); err != nil {
		return apiFail(c, err, "invoice")
	}
	return respond(c, http.StatusCreated, invoiceItemToAPI(&it))
}

// apiInvoiceItemUpdate handles PUT /api/v1/invoices/:id/items/:itemid
func (ctrl *controller) apiInvoiceItemUpdate(c echo.Context) error {
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
	it, err := input.toModel()
	if err != nil {
		return apiFail(c, err, "invoice item")
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	if err := ctrl.itemOfInvoice(ctx, ownerID, id, itemID); err != nil {
		return apiFail(c, err, "invoice item")
	}
	it.ID = itemID
	if err := ctrl.model.UpdateInvoiceItem(ctx, ownerID, &it); err != nil {
		return apiFail(c, err, "invoice item")
	}
	return respond(c, http.StatusOK, invoiceItemToAPI(&it))
}

// apiInvoiceItemDelete handles DELETE /api/v1/invoices/:id/items/:itemid
func (ctrl *controller) apiInvoiceItemDelete(c echo.Context) error {
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
	if err := ctrl.itemOfInvoice(ctx, ownerID, id, itemID); err != nil {
		return apiFail(c, err, "invoice item")
	}
	if err := ctrl.model.DeleteInvoiceItem(ctx, ownerID, itemID); err != nil {
		return apiFail(c, err, "invoice item")
	}
	return c.NoContent(http.StatusNoContent)
}
