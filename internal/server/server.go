// Package server exposes the assistant over HTTP and WebSocket using fiber.
package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/assistant"
	"github.com/a3tai/pdf-assistant/internal/config"
	"github.com/a3tai/pdf-assistant/internal/files"
	"github.com/a3tai/pdf-assistant/internal/pdf"
	"github.com/a3tai/pdf-assistant/internal/session"
	"github.com/a3tai/pdf-assistant/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Sessions  *session.Manager
	Files     *files.Store
	PDF       *pdf.Service
	Assistant *assistant.Service
	Hub       *ws.Hub
	Logger    *zap.Logger
}

// Server owns the fiber app.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
}

// New builds the app and registers every route.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger}

	s.app = fiber.New(fiber.Config{
		AppName:               cfg.ServerName,
		BodyLimit:             int(cfg.MaxFileSize) + 1024*1024,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	origins := strings.Join(cfg.AllowedOrigins(), ",")
	if origins == "" {
		origins = "*"
	}

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "*",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition",
	}))
	s.app.Use(otelfiber.Middleware())
	s.app.Use(requestLogger(logger))

	s.registerRoutes()
	return s
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)
	if s.deps.Hub != nil {
		s.app.Get("/ws/:clientId", s.deps.Hub.Handler())
	}

	api := s.app.Group("/api")

	fileRoutes := api.Group("/files")
	fileRoutes.Post("/upload", s.handleUpload)
	fileRoutes.Post("/set-current", s.handleSetCurrent)
	fileRoutes.Get("/download/:fileId", s.handleDownload)
	fileRoutes.Get("/info/:fileId", s.handleFileInfo)
	fileRoutes.Get("/:sessionId", s.handleListFiles)
	fileRoutes.Delete("/:fileId", s.handleDeleteFile)

	chat := api.Group("/chat")
	chat.Post("/send", s.handleSendMessage)
	chat.Get("/history/:sessionId", s.handleHistory)
	chat.Delete("/history/:sessionId", s.handleClearHistory)
	chat.Get("/sessions", s.handleSessions)

	ops := api.Group("/pdf")
	ops.Post("/operation", s.handlePerformOperation)
	ops.Get("/operations", s.handleOperations)
	ops.Get("/operations/:operationId", s.handleOperationStatus)
	ops.Get("/operation/:type/parameters", s.handleOperationParameters)

	sessions := api.Group("/session")
	sessions.Post("/create", s.handleCreateSession)
	sessions.Get("/:sessionId", s.handleGetSession)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	s.logger.Info("http server listening", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownErr := s.app.ShutdownWithTimeout(shutdownTimeout)
		// Shutdown only reaches listeners fasthttp has registered; closing ln
		// also stops a Listener call that has not started accepting yet.
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("closing listener", zap.Error(err))
		}
		if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) &&
			!strings.Contains(err.Error(), "use of closed network connection") {
			return err
		}
		return shutdownErr
	}
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = statusFor(err)
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("request", fields...)
		}
		return err
	}
}
