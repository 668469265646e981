package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load([]string{"--upload-dir", dir})
	require.NoError(t, err)

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, dir, cfg.UploadDir)
	assert.Equal(t, StoreMemory, cfg.SessionStore)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
}

func TestLoad_Flags(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load([]string{
		"--mode=stdio",
		"--host=0.0.0.0",
		"--port=9001",
		"--upload-dir=" + dir,
		"--maxfilesize=2048",
		"--loglevel=debug",
		"--operation-ttl=5m",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.OperationTTL)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PDF_ASSISTANT_PORT", "9100")
	t.Setenv("PDF_ASSISTANT_UPLOAD_DIR", dir)
	t.Setenv("PDF_ASSISTANT_LLM_PROVIDER", "gemini")
	t.Setenv("PDF_ASSISTANT_GEMINI_API_KEY", "from-env")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, dir, cfg.UploadDir)
	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, "from-env", cfg.GeminiAPIKey)
}

func TestLoad_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("PDF_ASSISTANT_PORT", "9100")

	cfg, err := Load([]string{"--port=9200", "--upload-dir", t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "mode", args: []string{"--mode=bogus"}},
		{name: "port", args: []string{"--port=0"}},
		{name: "log level", args: []string{"--loglevel=loud"}},
		{name: "unknown flag", args: []string{"--nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--upload-dir", t.TempDir()}, tt.args...)
			_, err := Load(args)
			assert.Error(t, err)
		})
	}
}

func TestLoad_VersionFlag(t *testing.T) {
	_, err := Load([]string{"--version"})
	assert.True(t, errors.Is(err, ErrVersionRequested))
}
