package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/logging"
)

// WriteAuthError maps an auth failure to its HTTP response. All token
// verification failures share one "unauthorized" body; the precise kind
// only reaches the log.
func WriteAuthError(c echo.Context, err error) error {
	log := logging.FromContext(c.Request().Context())

	switch kind := auth.KindOf(err); kind {
	case auth.KindTokenExpired, auth.KindTokenRevoked, auth.KindMalformedToken,
		auth.KindMissingClaim, auth.KindWrongTokenType:
		log.Debug("token rejected", "kind", kind.String())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})

	case auth.KindInvalidCredentials:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})

	case auth.KindAccountLocked:
		var ae *auth.Error
		secs := 1
		if errors.As(err, &ae) && !ae.LockedUntil.IsZero() {
			secs = max(int(math.Ceil(time.Until(ae.LockedUntil).Seconds())), 1)
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return c.JSON(http.StatusLocked, echo.Map{"error": "account locked", "retry_after": secs})

	case auth.KindAccountDisabled:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})

	case auth.KindRepositoryUnavailable, auth.KindHashingError:
		log.Error("auth backend failure", "kind", kind.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})

	default:
		log.Error("unexpected auth error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
