package config

import (
	"time"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Store    StoreConfig    `yaml:"store"`
	App      AppConfig      `yaml:"app"`
	WebView  WebViewConfig  `yaml:"webview"`
	URLGuard URLGuardConfig `yaml:"urlguard"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Console  ConsoleConfig  `yaml:"console"`
	Social   SocialConfig   `yaml:"social"`
	DevTools DevToolsConfig `yaml:"devtools"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// APIConfig points the shell at the backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	LoginTimeout time.Duration `yaml:"login_timeout"`
}

// StoreConfig selects the secure key-value backend.
type StoreConfig struct {
	Driver    string      `yaml:"driver"`
	Namespace string      `yaml:"namespace"`
	SealKey   string      `yaml:"seal_key,omitempty"`
	Redis     RedisStore  `yaml:"redis,omitempty"`
	SQLite    SQLiteStore `yaml:"sqlite,omitempty"`
}

type RedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}

// AppConfig carries version gating for the force-update screen.
type AppConfig struct {
	Version    string `yaml:"version"`
	MinVersion string `yaml:"min_version"`
	UpdateURL  string `yaml:"update_url"`
}

type WebViewConfig struct {
	ContentURL  string        `yaml:"content_url"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

// URLGuardConfig is the navigation policy applied to top-frame loads.
type URLGuardConfig struct {
	AllowedSchemes     []string `yaml:"allowed_schemes"`
	AllowedDomains     []string `yaml:"allowed_domains"`
	DeniedDomains      []string `yaml:"denied_domains"`
	DeniedPathPrefixes []string `yaml:"denied_path_prefixes"`
}

type BridgeConfig struct {
	Path             string        `yaml:"path"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

type ConsoleConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Addr      string   `yaml:"addr"`
	StaticDir string   `yaml:"static_dir"`
	CORS      []string `yaml:"cors_origins"`
}

// SocialConfig configures provider SDK stand-ins. An empty token means the
// provider is not registered on this platform.
type SocialConfig struct {
	KakaoToken string `yaml:"kakao_token,omitempty"`
}

type DevToolsConfig struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}
