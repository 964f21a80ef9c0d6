package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

// Context keys set by APIKeyAuthMiddleware.
const (
	keyOwnerID = "api_owner_id"
	keyUserID  = "api_user_id"
)

// tokenFromHeader extracts the token from "Bearer <token>" or
// "Api-Key <token>". The returned code names the failure for the client.
func tokenFromHeader(h string) (token, code string) {
	if h == "" {
		return "", "missing_token"
	}
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !(strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "Api-Key")) {
		return "", "bad_token"
	}
	return strings.TrimSpace(rest), ""
}

// APIKeyAuthMiddleware resolves the request's token to its owner. Handlers
// read the owner with apiOwnerID.
func (ctrl *controller) APIKeyAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, code := tokenFromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			switch code {
			case "missing_token":
				return c.JSON(http.StatusUnauthorized, apiError(code, "Provide Authorization header"))
			case "bad_token":
				return c.JSON(http.StatusUnauthorized, apiError(code, "Use Bearer or Api-Key"))
			}

			rec, err := ctrl.model.ValidateAPIToken(c.Request().Context(), token)
			switch {
			case errors.Is(err, model.ErrTokenExpired):
				return c.JSON(http.StatusUnauthorized, apiError("token_expired", "Token expired"))
			case err != nil:
				return c.JSON(http.StatusUnauthorized, apiError("unauthorized", "Unauthorized"))
			}

			c.Set(keyOwnerID, rec.OwnerID)
			c.Set(keyUserID, rec.UserID)
			requestLogger(c).Debug("api token accepted", "owner_id", rec.OwnerID, "token_prefix", rec.TokenPrefix)
			return next(c)
		}
	}
}

func apiOwnerID(c echo.Context) uint {
	if v, ok := c.Get(keyOwnerID).(uint); ok {
		return v
	}
	return 0
}

func apiUserID(c echo.Context) *uint {
	if v, ok := c.Get(keyUserID).(*uint); ok {
		return v
	}
	return nil
}
