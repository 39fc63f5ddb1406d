package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/storefront/internal/auth"
	"github.com/congo-pay/storefront/internal/config"
	"github.com/congo-pay/storefront/internal/firebase"
	"github.com/congo-pay/storefront/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and
// Firebase are nil when the matching backend is not configured.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Firebase *firebase.Clients
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes and returns the
// auth service behind them.
func Setup(app *fiber.App, d Deps) (*auth.Service, error) {
	// Enforce Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() && d.Cache == nil {
		return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	svc, err := NewAuthService(context.Background(), d)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewClientTokens(d.Cfg.ClientTokenSecret)
	if err != nil {
		return nil, err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	if d.Cfg.IsDev() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// API routes
	api := app.Group("/api/v1", middleware.ClientSession(tokens, d.Logger))
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	handler := auth.NewHandler(svc, d.Logger)
	RegisterAuthRoutes(api, handler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit), idempotency)
	RegisterProfileRoutes(api, svc, handler)

	return svc, nil
}
