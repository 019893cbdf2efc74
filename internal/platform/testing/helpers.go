package testing

import (
	"bytes"
	"testing"
	"time"

	"guardian-shell/internal/platform/config"
	"guardian-shell/internal/platform/logging"
)

// SetupTestConfig returns defaults tuned for fast tests: in-memory store,
// short timeouts, console disabled.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Log = config.LogConfig{Level: "DEBUG"}
	cfg.API.BaseURL = "http://127.0.0.1:0"
	cfg.API.Timeout = 2 * time.Second
	cfg.Session.LoginTimeout = time.Second
	cfg.Store = config.StoreConfig{Driver: "memory", Namespace: "test"}
	cfg.WebView.LoadTimeout = 200 * time.Millisecond
	cfg.Console.Enabled = false
	cfg.DevTools = config.DevToolsConfig{Enabled: true, Capacity: 50}

	return cfg
}

// SetupTestLogger builds a console logger that writes into a buffer the
// test can inspect.
func SetupTestLogger(t *testing.T) (*logging.Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{
		Level:   "DEBUG",
		Console: &buf,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	return logger, &buf
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

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
