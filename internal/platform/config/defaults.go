package config

import "time"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "shell.log",
		},
		API: APIConfig{
			BaseURL: "https://api.dongdong.io",
			Timeout: 60 * time.Second,
		},
		Session: SessionConfig{
			LoginTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Namespace: "guardian",
			SQLite: SQLiteStore{
				DSN: "data/secure.db",
			},
		},
		App: AppConfig{
			Version: "1.0.0",
		},
		WebView: WebViewConfig{
			ContentURL:  "https://guardian.dongdong.kr",
			LoadTimeout: 15 * time.Second,
		},
		URLGuard: URLGuardConfig{
			AllowedSchemes: []string{"https", "http", "about"},
			AllowedDomains: []string{
				"dongdong.io",
				"dongdong.kr",
				"dev-client.dongdong.io",
				"guardian.dongdong.kr",
				"staging-guardian.dongdong.kr",
				"localhost",
			},
			DeniedDomains: []string{
				"kauth.kakao.com",
				"accounts.kakao.com",
				"accounts.google.com",
				"appleid.apple.com",
			},
			DeniedPathPrefixes: []string{"/login", "/auth", "/signup", "/onboarding"},
		},
		Bridge: BridgeConfig{
			Path:             "/bridge",
			HandshakeTimeout: 10 * time.Second,
		},
		Console: ConsoleConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8787",
			CORS:    []string{"http://localhost:8081"},
		},
		DevTools: DevToolsConfig{
			Enabled:  false,
			Capacity: 200,
		},
	}
}
