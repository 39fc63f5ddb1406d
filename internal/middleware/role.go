package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/storefront/internal/auth"
	"github.com/congo-pay/storefront/internal/session"
)

// SessionLocal holds the caller's session.Record once RequireSession has run.
const SessionLocal = "session"

// RequireSession rejects callers without a persisted session.
func RequireSession(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := auth.ClientID(c)
		if id == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing client token")
		}
		rec, err := svc.Manager(id).Current(c.UserContext())
		if errors.Is(err, session.ErrNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "not signed in")
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "session lookup failed")
		}
		c.Locals(SessionLocal, rec)
		return c.Next()
	}
}

// RequireArea admits only sessions whose role routes to area, using the same
// rule as post-login navigation. Mount it after RequireSession.
func RequireArea(area string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, ok := c.Locals(SessionLocal).(session.Record)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "not signed in")
		}
		if auth.Destination(rec.Profile.Role) != area {
			return fiber.NewError(http.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}
