package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

type APIClient struct {
	ID        uint      `json:"id" xml:"id,attr"`
	Name      string    `json:"name" xml:"name"`
	Email     string    `json:"email" xml:"email"`
	Phone     string    `json:"phone,omitempty" xml:"phone,omitempty"`
	Address   string    `json:"address,omitempty" xml:"address,omitempty"`
	Company   string    `json:"company,omitempty" xml:"company,omitempty"`
	Notes     string    `json:"notes,omitempty" xml:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at" xml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" xml:"updated_at"`
}

type APIClientList struct {
	XMLName struct{}    `json:"-" xml:"clients"`
	Items   []APIClient `json:"items" xml:"client"`
	Total   int         `json:"total" xml:"total,attr"`
}

// APIClientInput is the body of POST and PUT /api/v1/clients.
type APIClientInput struct {
	Name    string `json:"name" xml:"name"`
	Email   string `json:"email" xml:"email"`
	Phone   string `json:"phone,omitempty" xml:"phone,omitempty"`
	Address string `json:"address,omitempty" xml:"address,omitempty"`
	Company string `json:"company,omitempty" xml:"company,omitempty"`
	Notes   string `json:"notes,omitempty" xml:"notes,omitempty"`
}

func (in *APIClientInput) toModel(ownerID uint) *model.Client {
	return &model.Client{
		OwnerID: ownerID,
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
		Company: strings.TrimSpace(in.Company),
		Notes:   strings.TrimSpace(in.Notes),
	}
}

func clientToAPI(cl *model.Client) APIClient {
	return APIClient{
		ID:        cl.ID,
		Name:      cl.Name,
		Email:     cl.Email,
		Phone:     cl.Phone,
		Address:   cl.Address,
		Company:   cl.Company,
		Notes:     cl.Notes,
		CreatedAt: cl.CreatedAt,
		UpdatedAt: cl.UpdatedAt,
	}
}

// apiClientList handles GET /api/v1/clients
func (ctrl *controller) apiClientList(c echo.Context) error {
	clients, err := ctrl.model.ListClients(c.Request().Context(), apiOwnerID(c))
	if err != nil {
		return apiFail(c, err, "clients")
	}
	items := make([]APIClient, len(clients))
	for i := range clients {
		items[i] = clientToAPI(&clients[i])
	}
	return respond(c, http.StatusOK, APIClientList{Items: items, Total: len(items)})
}

// apiClientGet handles GET /api/v1/clients/:id
func (ctrl *controller) apiClientGet(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	cl, err := ctrl.model.LoadClient(c.Request().Context(), id, apiOwnerID(c))
	if err != nil {
		return apiFail(c, err, "client")
	}
	c.Response().Header().Set("ETag", etag("client", cl.ID, cl.UpdatedAt))
	return respond(c, http.StatusOK, clientToAPI(cl))
}

// apiClientCreate handles POST /api/v1/clients
func (ctrl *controller) apiClientCreate(c echo.Context) error {
	var input APIClientInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	cl := input.toModel(apiOwnerID(c))
	if err := ctrl.model.CreateClient(c.Request().Context(), cl); err != nil {
		return apiFail(c, err, "client")
	}
	c.Response().Header().Set("Location", "/api/v1/clients/"+strconv.FormatUint(uint64(cl.ID), 10))
	return respond(c, http.StatusCreated, clientToAPI(cl))
}

// apiClientUpdate handles PUT /api/v1/clients/:id
func (ctrl *controller) apiClientUpdate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var input APIClientInput
	if err := c.Bind(&input); err != nil {
		return badBody(c)
	}
	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	cl := input.toModel(ownerID)
	cl.ID = id
	if err := ctrl.model.UpdateClient(ctx, cl); err != nil {
		return apiFail(c, err, "client")
	}
	updated, err := ctrl.model.LoadClient(ctx, id, ownerID)
	if err != nil {
		return apiFail(c, err, "client")
	}
	return respond(c, http.StatusOK, clientToAPI(updated))
}

// apiClientDelete handles DELETE /api/v1/clients/:id
func (ctrl *controller) apiClientDelete(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := ctrl.model.DeleteClient(c.Request().Context(), id, apiOwnerID(c)); err != nil {
		return apiFail(c, err, "client")
	}
	return c.NoContent(http.StatusNoContent)
}
