package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/client/api"
	"github.com/a3tai/pdf-assistant/internal/client/session"
	"github.com/a3tai/pdf-assistant/internal/logging"
)

const (
	defaultServer = "http://127.0.0.1:8000"
	envPrefix     = "PDF_ASSISTANT"
)

// cli holds flags and the client components shared by every command.
type cli struct {
	v *viper.Viper

	logger   *zap.Logger
	sessions *session.Store
	api      *api.Client
	out      *syncWriter
}

// syncWriter serializes writes from the REPL and push callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s, format, args...)
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "pdf-chat",
		Short: "Chat with the PDF assistant from the terminal",
		Long: `pdf-chat talks to a running PDF assistant backend.

Upload PDFs into your session, then ask for what you need in plain language:
"merge all files", "extract pages 2-4", "rotate page 1 by 90 degrees".

Run without arguments to start the interactive chat.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runChat(cmd, args)
		},
	}

	flags := root.PersistentFlags()
	flags.String("server", defaultServer, "backend base URL")
	flags.String("state", "", "file holding the session id (default: user config dir)")
	flags.Duration("timeout", api.DefaultTimeout, "HTTP request timeout")
	flags.BoolP("verbose", "V", false, "debug logging")

	c.v.SetEnvPrefix(envPrefix)
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(flags)

	root.AddCommand(
		c.chatCmd(),
		c.uploadCmd(),
		c.filesCmd(),
		c.downloadCmd(),
		c.deleteCmd(),
		c.sendCmd(),
		c.historyCmd(),
		c.sessionCmd(),
		c.healthCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	c.out = &syncWriter{w: cmd.OutOrStdout()}

	level := "warn"
	if c.v.GetBool("verbose") {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	c.logger = logger

	var storage session.Storage
	if path := c.v.GetString("state"); path != "" {
		storage = session.NewFileStorage(path)
	} else {
		fs, err := session.DefaultFileStorage()
		if err != nil {
			return err
		}
		storage = fs
	}
	c.sessions = session.New(storage, session.WithLogger(logger.Named("session")))

	timeout := c.v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = api.DefaultTimeout
	}
	c.api = api.New(c.v.GetString("server"),
		api.WithTimeout(timeout),
		api.WithLogger(logger.Named("api")),
	)
	return nil
}

func (c *cli) sessionID() (string, error) {
	id, err := c.sessions.ID()
	if err != nil {
		return "", fmt.Errorf("no session: %w", err)
	}
	return id, nil
}

// fail prints the readable form of err and returns it so cobra exits non-zero.
func (c *cli) fail(err error) error {
	c.out.printf("Error: %s\n", api.ErrorMessage(err))
	return err
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}
