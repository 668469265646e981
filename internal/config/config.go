package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Session store drivers
	StoreMemory = "memory"
	StoreRedis  = "redis"

	// LLM providers
	ProviderRules  = "rules"
	ProviderGemini = "gemini"

	// Default values
	DefaultPort         = 8000
	DefaultHost         = "127.0.0.1"
	DefaultLogLevel     = "info"
	DefaultMaxFileSize  = 50 * 1024 * 1024 // 50MB
	DefaultUploadDir    = "uploads"
	DefaultLLMModel     = "gemini-2.5-flash"
	DefaultSessionTTL   = 24 * time.Hour
	DefaultOperationTTL = time.Hour
	DefaultCORSOrigins  = "http://localhost:3000,http://127.0.0.1:3000"

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "PDF_ASSISTANT"
)

// ErrVersionRequested is returned by Load when --version is on the command line.
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the PDF assistant backend
type Config struct {
	// Server configuration
	Mode        string // "server" or "stdio"
	Host        string
	Port        int
	CORSOrigins string

	// Storage
	UploadDir    string
	MaxFileSize  int64 // Maximum upload size in bytes
	SessionStore string
	RedisURL     string
	SessionTTL   time.Duration
	OperationTTL time.Duration

	// Command generation
	LLMProvider  string
	LLMModel     string
	GeminiAPIKey string

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
	LogFile    string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeServer,
		Host:         DefaultHost,
		Port:         DefaultPort,
		CORSOrigins:  DefaultCORSOrigins,
		UploadDir:    DefaultUploadDir,
		MaxFileSize:  DefaultMaxFileSize,
		SessionStore: StoreMemory,
		SessionTTL:   DefaultSessionTTL,
		OperationTTL: DefaultOperationTTL,
		LLMProvider:  ProviderRules,
		LLMModel:     DefaultLLMModel,
		Version:      "1.0.0",
		ServerName:   "pdf-assistant",
		LogLevel:     DefaultLogLevel,
	}
}

// LoadFromFlags loads .env, environment variables and os.Args into a Config
func LoadFromFlags() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Load(os.Args[1:])
}

// Load builds a Config from args and PDF_ASSISTANT_* environment variables.
// Flags win over the environment, which wins over defaults.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setupViperEnvironment(v, cfg)

	flags := pflag.NewFlagSet("pdf-assistant", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	defineCommandLineFlags(flags, cfg)
	flags.Usage = usageFunc(flags)

	if hasVersionFlag(args) {
		return nil, ErrVersionRequested
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			flags.SetOutput(os.Stderr)
			flags.Usage()
		}
		return nil, err
	}

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	populateConfigFromViper(v, cfg)

	if cfg.UploadDir != "" {
		if expandedPath, err := filepath.Abs(cfg.UploadDir); err == nil {
			cfg.UploadDir = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("cors-origins", cfg.CORSOrigins)
	v.SetDefault("upload-dir", cfg.UploadDir)
	v.SetDefault("maxfilesize", cfg.MaxFileSize)
	v.SetDefault("session-store", cfg.SessionStore)
	v.SetDefault("redis-url", cfg.RedisURL)
	v.SetDefault("session-ttl", cfg.SessionTTL)
	v.SetDefault("operation-ttl", cfg.OperationTTL)
	v.SetDefault("llm-provider", cfg.LLMProvider)
	v.SetDefault("llm-model", cfg.LLMModel)
	v.SetDefault("gemini-api-key", cfg.GeminiAPIKey)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("logfile", cfg.LogFile)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.String("mode", cfg.Mode, "Run mode: 'server' for HTTP + WebSocket, 'stdio' for MCP standard I/O")
	flags.String("host", cfg.Host, "Server host address (server mode only)")
	flags.Int("port", cfg.Port, "Server port (server mode only)")
	flags.String("cors-origins", cfg.CORSOrigins, "Comma separated list of allowed CORS origins")
	flags.String("upload-dir", cfg.UploadDir, "Directory where uploaded and generated PDFs are stored")
	flags.Int64("maxfilesize", cfg.MaxFileSize, "Maximum upload size in bytes")
	flags.String("session-store", cfg.SessionStore, "Session store driver (memory, redis)")
	flags.String("redis-url", cfg.RedisURL, "Redis URL for the redis session store")
	flags.Duration("session-ttl", cfg.SessionTTL, "Idle lifetime of a session in the redis store")
	flags.Duration("operation-ttl", cfg.OperationTTL, "How long operation results stay queryable")
	flags.String("llm-provider", cfg.LLMProvider, "Command generator (rules, gemini)")
	flags.String("llm-model", cfg.LLMModel, "Gemini model name")
	flags.String("gemini-api-key", cfg.GeminiAPIKey, "Gemini API key")
	flags.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("logfile", cfg.LogFile, "Optional JSON log file, rotated")
}

func usageFunc(flags *pflag.FlagSet) func() {
	return func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", name)
		fmt.Fprintf(os.Stderr, "\nPDF Assistant - chat driven PDF operations over HTTP, WebSocket and MCP\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                      # HTTP server on 127.0.0.1:8000\n", name)
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio --upload-dir=./uploads  # MCP tools over stdio\n", name)
		fmt.Fprintf(os.Stderr, "  %s --session-store=redis --redis-url=redis://localhost:6379/0\n", name)
		fmt.Fprintf(os.Stderr, "\nEvery option can be set as %s_<OPTION> (dashes become underscores),\n", envPrefix)
		fmt.Fprintf(os.Stderr, "for example %s_GEMINI_API_KEY. A .env file is read when present.\n", envPrefix)
	}
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.CORSOrigins = v.GetString("cors-origins")
	cfg.UploadDir = v.GetString("upload-dir")
	cfg.MaxFileSize = v.GetInt64("maxfilesize")
	cfg.SessionStore = v.GetString("session-store")
	cfg.RedisURL = v.GetString("redis-url")
	cfg.SessionTTL = v.GetDuration("session-ttl")
	cfg.OperationTTL = v.GetDuration("operation-ttl")
	cfg.LLMProvider = v.GetString("llm-provider")
	cfg.LLMModel = v.GetString("llm-model")
	cfg.GeminiAPIKey = v.GetString("gemini-api-key")
	cfg.LogLevel = v.GetString("loglevel")
	cfg.LogFile = v.GetString("logfile")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.UploadDir == "" {
		return errors.New("upload directory cannot be empty")
	}

	// Create the upload directory on first run
	if _, err := os.Stat(c.UploadDir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.UploadDir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create upload directory %s: %w", c.UploadDir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access upload directory %s: %w", c.UploadDir, err)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis session store requires a redis url")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be one of: memory, redis)", c.SessionStore)
	}

	switch c.LLMProvider {
	case ProviderRules:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("gemini provider requires an API key")
		}
	default:
		return fmt.Errorf("invalid llm provider: %s (must be one of: rules, gemini)", c.LLMProvider)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedOrigins splits CORSOrigins into trimmed entries.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration.
// The Gemini key is never printed.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Address: %s, UploadDir: %s, SessionStore: %s, LLMProvider: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Address(), c.UploadDir, c.SessionStore, c.LLMProvider, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the backend runs the HTTP + WebSocket server
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the backend runs as an MCP stdio tool server
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
