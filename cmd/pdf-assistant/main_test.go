package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/config"
)

const testVersion = "1.2.3"

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = originalStdout }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
		w.Close()
	}()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	<-done
	return buf.String()
}

func TestPrintVersion(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	version = testVersion
	buildTime = "2023-12-01_10:30:00"
	gitCommit = "abc123"
	defer func() {
		version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	output := captureStdout(t, printVersion)

	expectedStrings := []string{
		"PDF Assistant",
		"Version: " + testVersion,
		"Build Time: 2023-12-01_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
		}
	}
}

func TestPrintVersionWithDefaults(t *testing.T) {
	output := captureStdout(t, printVersion)
	if !strings.Contains(output, "Version: "+version) {
		t.Errorf("printVersion() should print the build version, got:\n%s", output)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{name: "server info", mode: config.ModeServer, level: "info", wantDebug: false, wantInfo: true},
		{name: "server debug", mode: config.ModeServer, level: "debug", wantDebug: true, wantInfo: true},
		{name: "stdio quiet", mode: config.ModeStdio, level: "info", wantDebug: false, wantInfo: false},
		{name: "stdio debug", mode: config.ModeStdio, level: "debug", wantDebug: true, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Mode = tt.mode
			cfg.LogLevel = tt.level

			logger, err := newLogger(cfg)
			if err != nil {
				t.Fatalf("newLogger() error = %v", err)
			}
			if got := logger.Core().Enabled(zap.DebugLevel); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Core().Enabled(zap.InfoLevel); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
		})
	}

	cfg := config.DefaultConfig()
	cfg.LogLevel = "loud"
	if _, err := newLogger(cfg); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestOpenSessionStore(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	store.Close()

	mr := miniredis.RunT(t)
	cfg.SessionStore = config.StoreRedis
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	store, err = openSessionStore(ctx, cfg)
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	store.Close()

	cfg.RedisURL = "not a url"
	if _, err := openSessionStore(ctx, cfg); err == nil {
		t.Error("expected error for invalid redis url")
	}

	addr := mr.Addr()
	mr.Close()
	cfg.RedisURL = "redis://" + addr + "/0"
	if _, err := openSessionStore(ctx, cfg); err == nil {
		t.Error("expected error for unreachable redis")
	}
}

func TestBuild(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UploadDir = t.TempDir()

	c, err := build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer c.Close()

	if c.assistant.Generator().Name() != "rules" {
		t.Errorf("expected the rules generator, got %s", c.assistant.Generator().Name())
	}

	cfg.LLMProvider = "unknown"
	if _, err := build(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown llm provider")
	}
}

func TestRunServerMode(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := config.DefaultConfig()
	cfg.UploadDir = t.TempDir()
	cfg.Port = port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, zap.NewNop())
	}()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() returned %v after shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerModePortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	defer ln.Close()

	cfg := config.DefaultConfig()
	cfg.UploadDir = t.TempDir()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	if err := run(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected an error when the port is taken")
	}
}
