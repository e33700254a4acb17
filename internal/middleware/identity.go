package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/model"
)

// Context keys set by BearerAuth.
const (
	ctxPrincipal = "principal"
	ctxUserID    = "user_id"
	ctxRole      = "role"
)

func setPrincipal(c echo.Context, p *model.Principal) {
	c.Set(ctxPrincipal, p)
	c.Set(ctxUserID, strconv.FormatUint(p.ID, 10))
	c.Set(ctxRole, p.Role)
}

// CurrentPrincipal returns the principal stored by BearerAuth.
func CurrentPrincipal(c echo.Context) (*model.Principal, bool) {
	p, ok := c.Get(ctxPrincipal).(*model.Principal)
	return p, ok && p != nil
}

// currentUserID returns the authenticated principal id, or "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
