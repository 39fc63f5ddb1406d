package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/storefront/internal/auth"
	"github.com/congo-pay/storefront/internal/middleware"
)

// RegisterAuthRoutes wires the session endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, idempotency fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/signup", chain(h.Signup, idempotency)...)
	group.Post("/login", chain(h.Login, rateLimiter)...)
	group.Post("/phone/start", chain(h.StartPhone, rateLimiter)...)
	group.Post("/phone/confirm", chain(h.ConfirmPhone, rateLimiter)...)
	group.Post("/logout", h.Logout)
	group.Get("/session", h.Session)
}

// RegisterProfileRoutes wires the signed-in profile stream and the admin console.
func RegisterProfileRoutes(r fiber.Router, svc *auth.Service, h *auth.Handler) {
	signedIn := middleware.RequireSession(svc)
	r.Get("/profile/watch", signedIn, h.WatchProfile)
	r.Get("/admin/users", signedIn, middleware.RequireArea(auth.AdminAreaPath), h.ListUsers)
}

func chain(h fiber.Handler, pre ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(pre)+1)
	for _, p := range pre {
		if p != nil {
			out = append(out, p)
		}
	}
	return append(out, h)
}
