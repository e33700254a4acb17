package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/model"
)

// Authenticator resolves an access token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.Principal, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(c echo.Context, err error) error

// BearerAuth returns an Echo middleware that validates the Bearer access
// token and stores the resolved principal in the context. Handlers read it
// back with CurrentPrincipal. Failures are rendered by onError so they use
// the same status mapping as the auth endpoints.
func BearerAuth(authn Authenticator, onError ErrorWriter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			p, err := authn.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return onError(c, err)
			}

			setPrincipal(c, p)
			return next(c)
		}
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
