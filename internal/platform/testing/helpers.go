package testing

import (
	"io"
	"path/filepath"
	"testing"

	"shravan-server-go/internal/platform/config"
	"shravan-server-go/internal/platform/logging"
)

// SetupTestConfig returns the default configuration with every on-disk path
// moved under t.TempDir().
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = filepath.Join(dir, "logs")
	cfg.Log.File = "test.log"
	cfg.Staging.Dir = filepath.Join(dir, "frames")
	cfg.Web.StaticDir = filepath.Join(dir, "web")
	cfg.Geolocation.Cache.Driver = "none"
	return cfg
}

// SetupTestLogger returns a DEBUG logger that writes only to a temp file.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "DEBUG",
		Dir:      t.TempDir(),
		Filename: "test.log",
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}
