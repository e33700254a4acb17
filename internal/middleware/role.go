package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/logging"
)

// RequireRole returns a middleware that lets the request through only when
// the principal stored by BearerAuth has one of roles. It must run after
// BearerAuth; otherwise every request is refused.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxRole).(string)
			if !allowed[role] {
				logging.FromContext(c.Request().Context()).Warn("role check failed",
					"user_id", currentUserID(c), "role", role, "path", c.Path())
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
