package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/storefront/internal/auth"
	"github.com/congo-pay/storefront/internal/config"
	"github.com/congo-pay/storefront/internal/routes"
)

// Server wraps the Fiber application and the idle-manager sweeper.
type Server struct {
	app         *fiber.App
	cfg         config.Config
	auth        *auth.Service
	stopSweeper func()
	logger      *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, deps routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	deps.Cfg = cfg
	svc, err := routes.Setup(app, deps)
	if err != nil {
		return nil, err
	}

	every := cfg.ManagerIdleTTL / 2
	if every < time.Minute {
		every = time.Minute
	}
	stop, err := svc.StartSweeper(every, cfg.ManagerIdleTTL)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, auth: svc, stopSweeper: stop, logger: deps.Logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	s.logger.Info("listening", slog.String("addr", s.cfg.Address()))
	return s.app.Listen(s.cfg.Address())
}

// Shutdown ends open profile streams, then gracefully stops the HTTP server
// and the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.stopSweeper()
	s.auth.Close()
	return s.app.ShutdownWithContext(ctx)
}
