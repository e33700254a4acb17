package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/logging"
)

// Health is the liveness probe: the process is up and serving.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// ReadinessHandler reports whether the dependencies the auth endpoints
// need are reachable.
type ReadinessHandler struct {
	Checks  map[string]Check
	Timeout time.Duration
}

func NewReadinessHandler(checks map[string]Check) *ReadinessHandler {
	return &ReadinessHandler{Checks: checks, Timeout: 2 * time.Second}
}

// Readyz runs every check and answers 503 when any of them fails. Error
// details are logged, not returned.
func (h *ReadinessHandler) Readyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	results := make(map[string]string, len(h.Checks))
	status := http.StatusOK
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			logging.FromContext(ctx).Warn("readiness check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	return c.JSON(status, echo.Map{"status": state, "checks": results})
}
