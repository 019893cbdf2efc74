package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "guardian-shell/internal/platform/errors"
)

const (
	DefaultPath = ".config.yaml"
	envPrefix   = "SHELL_"
)

// Loader reads the yaml file over the defaults, then applies SHELL_* env overrides.
type Loader struct {
	useDotEnv bool
	path      string
	getenv    func(string) string
}

// NewLoader creates a loader that reads .config.yaml, or the file named by SHELL_CONFIG.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		getenv:    os.Getenv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file path.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	if getenv != nil {
		l.getenv = getenv
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// A missing .env is normal outside development.
		_ = godotenv.Load()
	}

	path := l.path
	if path == "" {
		path = l.getenv(envPrefix + "CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	origin := "defaults"

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "parse "+path, err)
		}
		origin = path
	case os.IsNotExist(err):
	default:
		return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "read "+path, err)
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: origin}, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	set := func(name string, dst *string) {
		if v := strings.TrimSpace(l.getenv(envPrefix + name)); v != "" {
			*dst = v
		}
	}

	set("LOG_LEVEL", &cfg.Log.Level)
	set("API_BASE_URL", &cfg.API.BaseURL)
	set("STORE_DRIVER", &cfg.Store.Driver)
	set("STORE_SEAL_KEY", &cfg.Store.SealKey)
	set("REDIS_ADDR", &cfg.Store.Redis.Addr)
	set("REDIS_PASSWORD", &cfg.Store.Redis.Password)
	set("SQLITE_DSN", &cfg.Store.SQLite.DSN)
	set("APP_VERSION", &cfg.App.Version)
	set("APP_MIN_VERSION", &cfg.App.MinVersion)
	set("CONTENT_URL", &cfg.WebView.ContentURL)
	set("CONSOLE_ADDR", &cfg.Console.Addr)
	set("KAKAO_TOKEN", &cfg.Social.KakaoToken)

	if v := strings.ToLower(strings.TrimSpace(l.getenv(envPrefix + "DEVTOOLS"))); v != "" {
		cfg.DevTools.Enabled = v == "1" || v == "true"
	}
}

func (l *Loader) validate(cfg *Config) error {
	op := "config.validate"
	if cfg.API.BaseURL == "" {
		return platformerrors.New(platformerrors.KindConfig, op, "api.base_url is required")
	}
	if _, err := url.ParseRequestURI(cfg.API.BaseURL); err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, op, "api.base_url is not a URL", err)
	}
	if cfg.API.Timeout <= 0 {
		return platformerrors.New(platformerrors.KindConfig, op, "api.timeout must be positive")
	}
	if cfg.WebView.LoadTimeout <= 0 {
		return platformerrors.New(platformerrors.KindConfig, op, "webview.load_timeout must be positive")
	}

	switch strings.ToLower(cfg.Store.Driver) {
	case "memory", "sqlite", "redis":
	default:
		return platformerrors.New(platformerrors.KindConfig, op,
			fmt.Sprintf("unsupported store.driver %q", cfg.Store.Driver))
	}
	if strings.EqualFold(cfg.Store.Driver, "redis") && cfg.Store.Redis.Addr == "" {
		return platformerrors.New(platformerrors.KindConfig, op, "store.redis.addr is required for the redis driver")
	}
	if cfg.Store.SealKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Store.SealKey)
		if err != nil || len(key) != 32 {
			return platformerrors.New(platformerrors.KindConfig, op, "store.seal_key must be 32 bytes, base64 encoded")
		}
	}

	if cfg.Console.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Console.Addr); err != nil {
			return platformerrors.Wrap(platformerrors.KindConfig, op, "console.addr must be host:port", err)
		}
	}
	if cfg.Bridge.Path == "" || !strings.HasPrefix(cfg.Bridge.Path, "/") {
		return platformerrors.New(platformerrors.KindConfig, op, "bridge.path must start with /")
	}
	return nil
}
