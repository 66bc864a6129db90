package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme/announcement-call/internal/api/handlers"
	"github.com/acme/announcement-call/internal/app"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the Fiber application.
type Server struct {
	app      *fiber.App
	deps     *app.Container
	handlers *handlers.HandlerSet
}

// NewServer constructs a new HTTP server.
func NewServer(deps *app.Container, handlers *handlers.HandlerSet) *Server {
	cfg := fiber.Config{
		AppName:               deps.Config.App.Name,
		ReadTimeout:           deps.Config.HTTP.ReadTimeout,
		WriteTimeout:          deps.Config.HTTP.WriteTimeout,
		IdleTimeout:           deps.Config.HTTP.IdleTimeout,
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	}

	app := fiber.New(cfg)
	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	handlers.Register(app)

	return &Server{app: app, deps: deps, handlers: handlers}
}

// App exposes the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins serving HTTP traffic and blocks until ctx is cancelled or the
// listener fails. A failed listener also releases the shutdown watcher.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.deps.Config.HTTP.Port)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.deps.Logger.Info("http server listening", zap.String("addr", addr))
		return s.app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := s.Shutdown(); err != nil {
			s.deps.Logger.Warn("server shutdown", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// Shutdown gracefully stops the server. In-flight calls that outlive the
// timeout are cut off and may leave a live phone call behind.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
