package controller

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

const loginTokenTTL = 12 * time.Hour

type createTokenReq struct {
	Name      string     `json:"name"`
	Scope     string     `json:"scope"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type createTokenResp struct {
	ID        uint       `json:"id"`
	Prefix    string     `json:"prefix"`
	Token     string     `json:"token"` // shown once
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type APIToken struct {
	ID         uint       `json:"id" xml:"id,attr"`
	Name       string     `json:"name" xml:"name"`
	Prefix     string     `json:"prefix" xml:"prefix"`
	Scope      string     `json:"scope,omitempty" xml:"scope,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" xml:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" xml:"last_used_at,omitempty"`
	Disabled   bool       `json:"disabled" xml:"disabled"`
	CreatedAt  time.Time  `json:"created_at" xml:"created_at"`
}

type APITokenList struct {
	XMLName    struct{}   `json:"-" xml:"tokens"`
	Items      []APIToken `json:"items" xml:"token"`
	NextCursor string     `json:"next_cursor,omitempty" xml:"next_cursor,omitempty"`
}

func (ctrl *controller) apiCreateToken(c echo.Context) error {
	var req createTokenReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return respond(c, http.StatusBadRequest, &APIError{Code: "validation_error", Message: "is required", Field: "name"})
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(ctrl.now()) {
		return respond(c, http.StatusBadRequest, &APIError{Code: "validation_error", Message: "must be in the future", Field: "expires_at"})
	}
	token, rec, err := ctrl.model.CreateAPIToken(c.Request().Context(), apiOwnerID(c), apiUserID(c), name, req.Scope, req.ExpiresAt)
	if err != nil {
		return apiFail(c, err, "token")
	}
	return c.JSON(http.StatusCreated, createTokenResp{
		ID: rec.ID, Prefix: rec.TokenPrefix, Token: token, ExpiresAt: rec.ExpiresAt,
	})
}

func (ctrl *controller) apiListTokens(c echo.Context) error {
	var q struct {
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}
	if err := c.Bind(&q); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_query", "invalid query params"))
	}
	rows, next, err := ctrl.model.ListAPITokensByOwner(c.Request().Context(), apiOwnerID(c), q.Limit, q.Cursor)
	if err != nil {
		return apiFail(c, err, "tokens")
	}
	items := make([]APIToken, len(rows))
	for i, r := range rows {
		items[i] = APIToken{
			ID:         r.ID,
			Name:       r.Name,
			Prefix:     r.TokenPrefix,
			Scope:      r.Scope,
			ExpiresAt:  r.ExpiresAt,
			LastUsedAt: r.LastUsedAt,
			Disabled:   r.Disabled,
			CreatedAt:  r.CreatedAt,
		}
	}
	return respond(c, http.StatusOK, APITokenList{Items: items, NextCursor: next})
}

func (ctrl *controller) apiRevokeToken(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := ctrl.model.RevokeAPIToken(c.Request().Context(), apiOwnerID(c), id); err != nil {
		return apiFail(c, err, "token")
	}
	return c.NoContent(http.StatusNoContent)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// apiLogin exchanges email and password for a short lived token. It is the
// only API route without token authentication.
func (ctrl *controller) apiLogin(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	token, rec, err := ctrl.model.IssueLoginToken(c.Request().Context(), req.Email, req.Password, loginTokenTTL)
	if err != nil {
		if errors.Is(err, model.ErrInvalidPassword) {
			requestLogger(c).Info("login failed", "email", model.NormalizeEmail(req.Email))
			return c.JSON(http.StatusUnauthorized, apiError("unauthorized", "invalid email or password"))
		}
		return apiFail(c, err, "login")
	}
	return c.JSON(http.StatusCreated, createTokenResp{
		ID: rec.ID, Prefix: rec.TokenPrefix, Token: token, ExpiresAt: rec.ExpiresAt,
	})
}
