package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/api/iterator"

	"github.com/congo-pay/storefront/internal/profile"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		checks := fiber.Map{}
		healthy := true

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			checks["postgres"] = result(d.DB.Ping(ctx), &healthy)
		}
		if d.Cache != nil {
			checks["redis"] = result(d.Cache.Ping(ctx).Err(), &healthy)
		}
		if d.Firebase != nil && d.Firebase.Firestore != nil {
			_, err := d.Firebase.Firestore.Collection(profile.Collection).Limit(1).Documents(ctx).Next()
			if errors.Is(err, iterator.Done) {
				err = nil
			}
			checks["firestore"] = result(err, &healthy)
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"backends":  fiber.Map{"profiles": d.Cfg.ProfileBackend, "identity": d.Cfg.IdentityBackend},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func result(err error, healthy *bool) string {
	if err != nil {
		*healthy = false
		return err.Error()
	}
	return "ok"
}
