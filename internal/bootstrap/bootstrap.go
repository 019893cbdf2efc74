package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"guardian-shell/internal/domain/auth"
	"guardian-shell/internal/domain/auth/model"
	authstore "guardian-shell/internal/domain/auth/store"
	"guardian-shell/internal/domain/bridge"
	"guardian-shell/internal/domain/eventbus"
	"guardian-shell/internal/domain/navigation"
	"guardian-shell/internal/domain/urlguard"
	"guardian-shell/internal/domain/webview"
	platformconfig "guardian-shell/internal/platform/config"
	platformerrors "guardian-shell/internal/platform/errors"
	platformlogging "guardian-shell/internal/platform/logging"
	"guardian-shell/internal/platform/observability"
	platformstorage "guardian-shell/internal/platform/storage"
	"guardian-shell/internal/transport/api"
	httptransport "guardian-shell/internal/transport/http"
	"guardian-shell/internal/transport/ws"
)

const (
	busWorkers      = 2
	shutdownTimeout = 15 * time.Second
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger
	devlog     *platformlogging.DevLog
	metrics    *observability.Recorder

	db     *gorm.DB
	store  authstore.Store
	tokens *auth.TokenStore
	bus    *eventbus.Bus

	manager   *auth.Manager
	screens   *navigation.Router
	gate      *navigation.Gate
	channel   *bridge.Channel
	container *webview.Container
	gateway   *api.Gateway

	hub     *ws.Hub
	pages   *ws.Router
	router  *httptransport.Router
	console *httptransport.Server
}

// Run boots the shell, resolves the stored session and serves the console
// until ctx is cancelled or a termination signal arrives.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.release()
		return err
	}
	defer state.release()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	if state.console != nil {
		console := state.console
		group.Go(func() error {
			if err := console.Start(groupCtx); err != nil {
				return platformerrors.Wrap(platformerrors.KindTransport, "transport:console", "console server failed", err)
			}
			return nil
		})
	}

	session := state.manager.CheckAuth(groupCtx)
	logger.InfoTag("Bootstrap", "session resolved: state=%s authenticated=%t", session.State, session.Authenticated)

	return waitForShutdown(groupCtx, cancel, logger, group, state)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.InfoTag("Bootstrap", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Bootstrap", "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag("Bootstrap", "  %s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-store",
			Title:     "Open secure store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStoreStep,
		},
		{
			ID:        "auth:init-manager",
			Title:     "Initialise session manager",
			DependsOn: []string{"storage:init-store"},
			Execute:   initSessionStep,
		},
		{
			ID:        "navigation:init-gate",
			Title:     "Initialise navigation gate",
			DependsOn: []string{"auth:init-manager"},
			Execute:   initNavigationStep,
		},
		{
			ID:        "bridge:init-channel",
			Title:     "Initialise bridge channel",
			DependsOn: []string{"navigation:init-gate"},
			Execute:   initBridgeStep,
		},
		{
			ID:        "webview:init-container",
			Title:     "Initialise content container",
			DependsOn: []string{"bridge:init-channel"},
			Execute:   initContainerStep,
		},
		{
			ID:        "api:init-gateway",
			Title:     "Initialise request gateway",
			DependsOn: []string{"auth:init-manager"},
			Execute:   initGatewayStep,
		},
		{
			ID:        "transport:init-console",
			Title:     "Initialise bridge socket and console",
			DependsOn: []string{"webview:init-container", "api:init-gateway"},
			Kind:      platformerrors.KindTransport,
			Execute:   initTransportStep,
		},
	}
}

// loadConfigStep keeps a config that was injected before the graph ran.
func loadConfigStep(_ context.Context, state *appState) error {
	if state.config != nil {
		if state.configPath == "" {
			state.configPath = "injected"
		}
		return nil
	}
	res, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = res.Config
	state.configPath = res.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	if state.logger == nil {
		logger, err := platformlogging.New(platformlogging.Config{
			Level:    state.config.Log.Level,
			Dir:      state.config.Log.Dir,
			Filename: state.config.Log.File,
		})
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
		}
		state.logger = logger
	}

	state.metrics = observability.New(state.logger.Slog(), strings.EqualFold(state.config.Log.Level, "debug"))
	state.devlog = platformlogging.NewDevLog(state.config.DevTools.Enabled, state.config.DevTools.Capacity)
	state.devlog.Info(platformlogging.ScopeSys, "shell starting", map[string]any{
		"version": state.config.App.Version,
		"config":  state.configPath,
	})

	state.logger.InfoTag("Bootstrap", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func initStoreStep(ctx context.Context, state *appState) error {
	cfg := state.config.Store
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	storeCfg := authstore.Config{
		Driver:    driver,
		Namespace: cfg.Namespace,
	}
	if cfg.SealKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.SealKey)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindConfig, "storage:init-store", "store.seal_key is not base64", err)
		}
		storeCfg.SealKey = key
	}

	deps := authstore.Dependencies{Logger: state.logger}
	switch driver {
	case authstore.DriverSQLite:
		db, err := platformstorage.Open(cfg.SQLite.DSN)
		if err != nil {
			return err
		}
		state.db = db
		deps.SQLiteDB = db
		storeCfg.SQLite = &authstore.SQLiteConfig{DSN: cfg.SQLite.DSN}
	case authstore.DriverRedis:
		storeCfg.Redis = &authstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	kv, err := authstore.New(storeCfg, deps)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-store", "failed to create secure store", err)
	}
	state.store = kv

	if stats, err := kv.Stats(ctx); err == nil {
		state.logger.InfoTag("Storage", "secure store ready: %v", stats)
	}
	return nil
}

func initSessionStep(_ context.Context, state *appState) error {
	cfg := state.config
	state.tokens = auth.NewTokenStore(state.store, state.logger)
	state.bus = eventbus.New(busWorkers)

	providers := auth.NewProviderRegistry()
	if cfg.Social.KakaoToken != "" {
		providers.Register(auth.NewStaticProvider(model.ProviderKakao, cfg.Social.KakaoToken))
	} else {
		state.logger.WarnTag("Auth", "no kakao token configured, kakao login is unavailable")
	}

	manager, err := auth.NewManager(auth.Options{
		Tokens:       state.tokens,
		Backend:      api.NewBackendClient(cfg.API.BaseURL, cfg.API.Timeout, state.logger),
		Providers:    providers,
		Bus:          state.bus,
		Logger:       state.logger,
		LoginTimeout: cfg.Session.LoginTimeout,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager", "failed to create session manager", err)
	}
	state.manager = manager
	return nil
}

func initNavigationStep(_ context.Context, state *appState) error {
	cfg := state.config
	state.screens = navigation.NewRouter(navigation.RouteOnboarding)
	state.gate = navigation.NewGate(navigation.GateOptions{
		Flags:      state.tokens,
		Navigator:  state.screens,
		Bus:        state.bus,
		Logger:     state.logger,
		DevLog:     state.devlog,
		AppVersion: cfg.App.Version,
		MinVersion: cfg.App.MinVersion,
		UpdateURL:  cfg.App.UpdateURL,
	})

	gate := state.gate
	state.screens.OnChange(func(loc navigation.Location) { gate.SetLocation(loc) })
	gate.SetLocation(state.screens.Location())

	if err := state.bus.Subscribe(eventbus.EventSessionChanged, gate.OnSessionChanged); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "navigation:init-gate", "subscribe gate", err)
	}

	logger := state.logger
	if err := state.bus.Subscribe(eventbus.EventNavRedirect, func(e eventbus.RedirectEventData) {
		logger.DebugTag("Navigation", "redirected %s -> %s", e.Location, e.Route)
	}); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "navigation:init-gate", "subscribe redirect log", err)
	}
	return nil
}

func initBridgeStep(_ context.Context, state *appState) error {
	channel, err := bridge.NewChannel(bridge.Options{
		Session:   state.manager,
		Navigator: state.screens,
		Bus:       state.bus,
		Logger:    state.logger,
		DevLog:    state.devlog,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bridge:init-channel", "failed to create bridge channel", err)
	}
	state.channel = channel

	if err := state.bus.Subscribe(eventbus.EventSessionChanged, channel.OnSessionChanged); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bridge:init-channel", "subscribe channel", err)
	}

	logger := state.logger
	subs := map[string]interface{}{
		eventbus.EventBridgeAnalytics: func(e eventbus.AnalyticsEventData) {
			logger.InfoTag("Analytics", "%s %v", e.Event, e.Properties)
		},
		eventbus.EventBridgeAction: func(e eventbus.ActionEventData) {
			logger.InfoTag("Bridge", "device action %s requested", e.Type)
		},
		eventbus.EventBridgeReady: func(at time.Time) {
			logger.InfoTag("Bridge", "content ready at %s", at.Format(time.RFC3339))
		},
	}
	for topic, fn := range subs {
		if err := state.bus.Subscribe(topic, fn); err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "bridge:init-channel", "subscribe "+topic, err)
		}
	}
	return nil
}

func initContainerStep(_ context.Context, state *appState) error {
	policy := state.config.URLGuard
	guard := urlguard.New(urlguard.Policy{
		AllowedSchemes:     policy.AllowedSchemes,
		AllowedDomains:     policy.AllowedDomains,
		DeniedDomains:      policy.DeniedDomains,
		DeniedPathPrefixes: policy.DeniedPathPrefixes,
	})

	container, err := webview.New(webview.Options{
		ContentURL:  state.config.WebView.ContentURL,
		LoadTimeout: state.config.WebView.LoadTimeout,
		Guard:       guard,
		Bridge:      state.channel,
		Bus:         state.bus,
		Logger:      state.logger,
		DevLog:      state.devlog,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "webview:init-container", "failed to create content container", err)
	}
	state.container = container
	return nil
}

func initGatewayStep(_ context.Context, state *appState) error {
	state.gateway = api.NewGateway(api.GatewayOptions{
		BaseURL: state.config.API.BaseURL,
		Timeout: state.config.API.Timeout,
		Session: state.manager,
		Logger:  state.logger,
		DevLog:  state.devlog,
		Metrics: state.metrics,
	})
	return nil
}

func initTransportStep(_ context.Context, state *appState) error {
	cfg := state.config

	state.hub = ws.NewHub(state.logger, state.devlog)
	state.pages = ws.NewRouter(state.hub, state.logger, ws.RouterOptions{
		HandshakeTimeout: cfg.Bridge.HandshakeTimeout,
		AllowedOrigins:   cfg.Bridge.AllowedOrigins,
	})
	state.pages.SetHandlerBuilder(ws.Builder(state.channel, state.container, state.logger))

	state.router = httptransport.Build(httptransport.Options{
		LogLevel:    cfg.Log.Level,
		Logger:      state.logger,
		CORSOrigins: cfg.Console.CORS,
		StaticDir:   cfg.Console.StaticDir,
		Metrics:     state.metrics,
	})
	httptransport.NewConsoleHandler(httptransport.ConsoleDeps{
		Session:   state.manager,
		Gate:      state.gate,
		Screens:   state.screens,
		Content:   state.container,
		Bridge:    state.channel,
		Gateway:   state.gateway,
		DevLog:    state.devlog,
		Metrics:   state.metrics,
		Logger:    state.logger,
		Pages:     state.pages.Handle,
		PagesPath: cfg.Bridge.Path,
	}).RegisterRoutes(state.router)

	if cfg.Console.Enabled {
		state.console = httptransport.NewServer(cfg.Console.Addr, state.router, state.logger)
	} else {
		state.logger.InfoTag("Bootstrap", "console disabled")
	}
	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
	state *appState,
) error {
	<-ctx.Done()
	logger.InfoTag("Bootstrap", "shutting down: %v", context.Cause(ctx))

	cancel()
	if state.console != nil {
		if err := state.console.Stop(); err != nil {
			logger.WarnTag("Bootstrap", "console did not stop cleanly: %v", err)
		}
	}
	if state.hub != nil {
		if page := state.hub.Current(); page != "" {
			logger.InfoTag("Bootstrap", "closing page %s", page)
		}
		state.hub.Shutdown(ws.ErrSessionShutdown)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag("Bootstrap", "shutdown timed out")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.shutdown", "shutdown timed out")
	}
	return nil
}

// release closes whatever the init graph managed to open, newest first.
func (s *appState) release() {
	if s.container != nil {
		s.container.Close()
	}
	if s.bus != nil {
		s.bus.Shutdown()
	}
	if s.store != nil {
		if err := s.store.Close(context.Background()); err != nil && s.logger != nil {
			s.logger.WarnTag("Storage", "secure store close: %v", err)
		}
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil && s.logger != nil {
			s.logger.WarnTag("Storage", "database close: %v", err)
		}
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
