// Package router registers the HTTP routes on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/handler"
	"github.com/iliyamo/recipe-box/internal/middleware"
	"github.com/iliyamo/recipe-box/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, ready *handler.ReadinessHandler) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready.Readyz)
	}
}

// RegisterAuth registers the session endpoints. Credential exchanges live
// under /v1/auth behind limit; endpoints needing a valid access token live
// under /v1 behind authn; admin operations additionally require the ADMIN
// role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn middleware.Authenticator, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	if limit != nil {
		g.Use(limit)
	}
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout verifies its own tokens so an expired access token does not
	// prevent revoking the refresh token.
	g.POST("/logout", a.Logout)

	requireAuth := middleware.BearerAuth(authn, handler.WriteAuthError)

	v1 := e.Group("/v1", requireAuth)
	v1.GET("/me", a.Me)

	admin := e.Group("/v1/admin", requireAuth, middleware.RequireRole(model.RoleAdmin))
	admin.POST("/principals/:id/unlock", a.Unlock)
}
