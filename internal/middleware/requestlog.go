package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/logging"
)

// RequestLogger tags each request with an id (the caller's X-Request-ID
// when present, else a new ULID), stores a logger carrying that id in the
// request context and writes one line per request when it completes.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 64 {
				id = auth.NewID()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			log := base.With("request_id", id)
			c.SetRequest(req.WithContext(logging.WithContext(req.Context(), log)))

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo render the error so the logged status is final.
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []any{
				"method", req.Method,
				"path", c.Path(),
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote_ip", c.RealIP(),
			}
			if uid := currentUserID(c); uid != "anon" {
				attrs = append(attrs, "user_id", uid)
			}
			switch {
			case status >= 500:
				log.Error("request", append(attrs, "error", err)...)
			case status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		}
	}
}
