package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/pdf-assistant/internal/assistant"
	"github.com/a3tai/pdf-assistant/internal/config"
	"github.com/a3tai/pdf-assistant/internal/files"
	"github.com/a3tai/pdf-assistant/internal/llm"
	"github.com/a3tai/pdf-assistant/internal/logging"
	"github.com/a3tai/pdf-assistant/internal/mcp"
	"github.com/a3tai/pdf-assistant/internal/pdf"
	"github.com/a3tai/pdf-assistant/internal/server"
	"github.com/a3tai/pdf-assistant/internal/session"
	"github.com/a3tai/pdf-assistant/internal/ws"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// components is the wired backend shared by both modes.
type components struct {
	sessions  *session.Manager
	files     *files.Store
	pdf       *pdf.Service
	assistant *assistant.Service
	hub       *ws.Hub
}

func (c *components) Close() error {
	return c.sessions.Close()
}

// newLogger builds the process logger. stdio mode keeps stdout for the
// protocol and stays quiet unless debugging.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: os.Stderr,
	}
	if cfg.IsStdioMode() && !cfg.IsDebug() {
		opts.Level = "error"
	}
	return logging.New(opts)
}

func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch session.StoreType(cfg.SessionStore) {
	case session.StoreTypeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis unavailable at %s: %w", opts.Addr, err)
		}
		return session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(client),
			session.WithRedisTTL(cfg.SessionTTL),
		)
	default:
		return session.NewStore(session.StoreType(cfg.SessionStore))
	}
}

// build wires storage, the PDF engine, the command generator, the assistant
// and the push hub.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(store, logger.Named("session"))

	engine := pdf.NewService(cfg.MaxFileSize, logger.Named("pdf"))
	fileStore, err := files.NewStore(cfg.UploadDir, cfg.MaxFileSize, engine, logger.Named("files"))
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	generator, err := llm.New(ctx, cfg, logger.Named("llm"))
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	hub := ws.NewHub(logger.Named("ws"))
	svc := assistant.New(sessions, fileStore, engine, generator, logger.Named("assistant"),
		assistant.WithNotifier(hub),
		assistant.WithOperationTTL(cfg.OperationTTL),
	)
	hub.OnChat(func(ctx context.Context, clientID, content string) error {
		_, err := svc.HandleMessage(ctx, clientID, content)
		return err
	})

	logger.Info("backend ready",
		zap.String("session_store", cfg.SessionStore),
		zap.String("generator", generator.Name()),
		zap.String("upload_dir", cfg.UploadDir),
	)

	return &components{
		sessions:  sessions,
		files:     fileStore,
		pdf:       engine,
		assistant: svc,
		hub:       hub,
	}, nil
}

// runServerMode serves HTTP and the WebSocket hub until ctx is canceled or
// either of them fails.
func runServerMode(ctx context.Context, cfg *config.Config, c *components, logger *zap.Logger) error {
	srv := server.New(cfg, server.Deps{
		Sessions:  c.sessions,
		Files:     c.files,
		PDF:       c.pdf,
		Assistant: c.assistant,
		Hub:       c.hub,
		Logger:    logger.Named("http"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.hub.Run(ctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// runStdioMode serves MCP tools until the parent closes stdin.
func runStdioMode(ctx context.Context, cfg *config.Config, c *components, logger *zap.Logger) error {
	srv, err := mcp.NewServer(cfg, mcp.Deps{
		Sessions:  c.sessions,
		Files:     c.files,
		PDF:       c.pdf,
		Assistant: c.assistant,
		Logger:    logger.Named("mcp"),
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.IsServerMode() {
		return runServerMode(ctx, cfg, c, logger)
	}
	return runStdioMode(ctx, cfg, c, logger)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.IsDebug() && cfg.IsServerMode() {
		logger.Debug("starting with configuration", zap.String("config", cfg.String()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Assistant\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
