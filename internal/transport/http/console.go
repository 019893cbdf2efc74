package httptransport

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"guardian-shell/internal/domain/auth"
	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/bridge"
	"guardian-shell/internal/domain/navigation"
	"guardian-shell/internal/domain/webview"
	platformerrors "guardian-shell/internal/platform/errors"
	"guardian-shell/internal/platform/logging"
	"guardian-shell/internal/platform/observability"
	"guardian-shell/internal/transport/api"
)

// ConsoleDeps lists what the console drives. Nil members leave their routes
// unregistered.
type ConsoleDeps struct {
	Session *auth.Manager
	Gate    *navigation.Gate
	Screens *navigation.Router
	Content *webview.Container
	Bridge  *bridge.Channel
	Gateway *api.Gateway
	DevLog  *logging.DevLog
	Metrics *observability.Recorder
	Logger  *logging.Logger
	// Pages upgrades content pages onto the bridge at PagesPath.
	Pages     http.HandlerFunc
	PagesPath string
}

// ConsoleHandler exposes the shell's host side over HTTP so an operator or
// a test harness can play the role of the native UI.
type ConsoleHandler struct {
	deps   ConsoleDeps
	logger *logging.Logger
}

func NewConsoleHandler(deps ConsoleDeps) *ConsoleHandler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &ConsoleHandler{deps: deps, logger: logger}
}

// RegisterRoutes registers console routes on router.
func (h *ConsoleHandler) RegisterRoutes(router *Router) {
	router.Engine.GET("/healthz", h.Health)

	if h.deps.Pages != nil {
		path := h.deps.PagesPath
		if path == "" {
			path = "/bridge"
		}
		router.Engine.GET(path, gin.WrapF(h.deps.Pages))
	}

	group := router.API
	if h.deps.Session != nil {
		group.GET("/session", h.GetSession)
		group.POST("/session/login", h.Login)
		group.POST("/session/social", h.SocialLogin)
		group.POST("/session/logout", h.Logout)
		group.POST("/session/refresh", h.Refresh)
		group.PUT("/session/auto-login", h.SetAutoLogin)
		group.DELETE("/session/data", h.ClearData)

		group.GET("/onboarding", h.GetOnboarding)
		group.POST("/onboarding/intro-complete", h.CompleteIntro)
		group.POST("/onboarding/permission-complete", h.CompletePermission)
	}
	if h.deps.Screens != nil {
		group.GET("/navigation", h.GetNavigation)
		group.POST("/navigation/location", h.SetLocation)
		group.POST("/navigation/back", h.Back)
	}
	if h.deps.Content != nil {
		group.GET("/webview", h.GetWebView)
		group.POST("/webview/retry", h.Retry)
	}
	if h.deps.Bridge != nil {
		group.POST("/bridge/deep-link", h.DeepLink)
		group.POST("/bridge/app-state", h.AppState)
		group.POST("/bridge/push", h.PushData)
	}
	if h.deps.DevLog != nil {
		group.GET("/devlog", h.GetDevLog)
		group.DELETE("/devlog", h.ClearDevLog)
	}
	if h.deps.Metrics != nil {
		group.GET("/metrics", h.GetMetrics)
	}
	if h.deps.Gateway != nil {
		group.Any("/proxy/*path", h.Proxy)
	}
}

func (h *ConsoleHandler) Health(c *gin.Context) {
	data := gin.H{"status": "ok"}
	if h.deps.Session != nil {
		data["session"] = h.deps.Session.Snapshot().State
	}
	if h.deps.Bridge != nil {
		data["bridgeAttached"] = h.deps.Bridge.Attached()
	}
	RespondSuccess(c, http.StatusOK, data, "")
}

func (h *ConsoleHandler) GetSession(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.deps.Session.Snapshot(), "")
}

func (h *ConsoleHandler) Login(c *gin.Context) {
	var creds model.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request format", nil)
		return
	}
	if err := h.deps.Session.Login(c.Request.Context(), creds); err != nil {
		h.logger.WarnTag("Console", "login failed: %v", err)
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, h.deps.Session.Snapshot(), "signed in")
}

type socialLoginRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func (h *ConsoleHandler) SocialLogin(c *gin.Context) {
	var req socialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request format", nil)
		return
	}
	provider := model.Provider(strings.ToLower(req.Provider))
	if err := h.deps.Session.SocialLogin(c.Request.Context(), provider); err != nil {
		h.logger.WarnTag("Console", "%s login failed: %v", provider, err)
		h.recordProvider(provider, "error", "login failed", map[string]any{"error": err.Error()})
		RespondErr(c, err)
		return
	}
	h.recordProvider(provider, "info", "login succeeded", nil)
	RespondSuccess(c, http.StatusOK, h.deps.Session.Snapshot(), "signed in")
}

func (h *ConsoleHandler) recordProvider(provider model.Provider, level, msg string, meta map[string]any) {
	if provider != model.ProviderKakao || !h.deps.DevLog.Enabled() {
		return
	}
	if level == "error" {
		h.deps.DevLog.Error(logging.ScopeKakao, msg, meta)
		return
	}
	h.deps.DevLog.Info(logging.ScopeKakao, msg, meta)
}

func (h *ConsoleHandler) Logout(c *gin.Context) {
	h.deps.Session.Logout(c.Request.Context())
	RespondSuccess(c, http.StatusOK, h.deps.Session.Snapshot(), "signed out")
}

func (h *ConsoleHandler) Refresh(c *gin.Context) {
	ok, err := h.deps.Session.RefreshAuth(c.Request.Context())
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"refreshed": ok, "session": h.deps.Session.Snapshot()}, "")
}

type autoLoginRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *ConsoleHandler) SetAutoLogin(c *gin.Context) {
	var req autoLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request format", nil)
		return
	}
	if err := h.deps.Session.SetAutoLogin(c.Request.Context(), *req.Enabled); err != nil {
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, h.deps.Session.Snapshot(), "")
}

// ClearData wipes every stored key, preferences and onboarding flags
// included, then signs out and lets the gate pick the first screen again.
func (h *ConsoleHandler) ClearData(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.deps.Session.Tokens().WipeAll(ctx); err != nil {
		h.logger.ErrorTag("Console", "wipe failed: %v", err)
		RespondErr(c, platformerrors.Wrap(platformerrors.KindStorage, "console.clear_data", "failed to wipe stored data", err))
		return
	}
	h.deps.Session.Logout(ctx)
	h.reevaluate(c)
}

func (h *ConsoleHandler) GetOnboarding(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.deps.Session.Tokens().OnboardingFlags(c.Request.Context()), "")
}

func (h *ConsoleHandler) CompleteIntro(c *gin.Context) {
	if err := h.deps.Session.Tokens().MarkIntroSlidesShown(c.Request.Context()); err != nil {
		RespondErr(c, err)
		return
	}
	h.reevaluate(c)
}

func (h *ConsoleHandler) CompletePermission(c *gin.Context) {
	if err := h.deps.Session.Tokens().MarkPermissionPromptShown(c.Request.Context()); err != nil {
		RespondErr(c, err)
		return
	}
	h.reevaluate(c)
}

// reevaluate runs the gate after a flag write, since flag writes do not
// raise a session change.
func (h *ConsoleHandler) reevaluate(c *gin.Context) {
	flags := h.deps.Session.Tokens().OnboardingFlags(c.Request.Context())
	if h.deps.Gate == nil {
		RespondSuccess(c, http.StatusOK, gin.H{"flags": flags}, "")
		return
	}
	decision := h.deps.Gate.Evaluate(c.Request.Context())
	RespondSuccess(c, http.StatusOK, gin.H{"flags": flags, "decision": decision}, "")
}

func (h *ConsoleHandler) navigationState() gin.H {
	data := gin.H{
		"location": h.deps.Screens.Location().String(),
		"depth":    h.deps.Screens.Depth(),
	}
	if h.deps.Gate != nil {
		data["decision"] = h.deps.Gate.Current()
	}
	return data
}

func (h *ConsoleHandler) GetNavigation(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.navigationState(), "")
}

type locationRequest struct {
	Route string `json:"route" binding:"required"`
	Push  bool   `json:"push"`
}

func (h *ConsoleHandler) SetLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request format", nil)
		return
	}
	if req.Push {
		h.deps.Screens.Push(req.Route)
	} else {
		h.deps.Screens.Replace(req.Route)
	}
	RespondSuccess(c, http.StatusOK, h.navigationState(), "")
}

func (h *ConsoleHandler) Back(c *gin.Context) {
	if !h.deps.Screens.Back() {
		RespondError(c, http.StatusConflict, "already at the root screen", h.navigationState())
		return
	}
	RespondSuccess(c, http.StatusOK, h.navigationState(), "")
}

func (h *ConsoleHandler) GetWebView(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.deps.Content.State(), "")
}

func (h *ConsoleHandler) Retry(c *gin.Context) {
	if err := h.deps.Content.Retry(); err != nil {
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, h.deps.Content.State(), "")
}

func (h *ConsoleHandler) DeepLink(c *gin.Context) {
	var link bridge.DeepLink
	if err := c.ShouldBindJSON(&link); err != nil || (link.URL == "" && link.Path == "") {
		RespondError(c, http.StatusBadRequest, "deep link needs a url or a path", nil)
		return
	}
	h.deliver(c, h.deps.Bridge.SendDeepLink(link))
}

type appStateRequest struct {
	State string `json:"state" binding:"required,oneof=active background inactive"`
}

func (h *ConsoleHandler) AppState(c *gin.Context) {
	var req appStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "state must be active, background or inactive", nil)
		return
	}
	h.deliver(c, h.deps.Bridge.SendAppState(req.State))
}

func (h *ConsoleHandler) PushData(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request format", nil)
		return
	}
	h.deliver(c, h.deps.Bridge.SendPushData(data))
}

func (h *ConsoleHandler) deliver(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bridge.ErrNoSurface):
		RespondError(c, http.StatusServiceUnavailable, err.Error(), nil)
	case err != nil:
		RespondErr(c, err)
	default:
		RespondSuccess(c, http.StatusAccepted, nil, "delivered")
	}
}

func (h *ConsoleHandler) GetDevLog(c *gin.Context) {
	scope := logging.Scope(strings.ToUpper(c.Query("scope")))
	entries := h.deps.DevLog.Entries()
	if scope != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Scope == scope {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	RespondSuccess(c, http.StatusOK, gin.H{"enabled": h.deps.DevLog.Enabled(), "entries": entries}, "")
}

func (h *ConsoleHandler) ClearDevLog(c *gin.Context) {
	h.deps.DevLog.Clear()
	RespondSuccess(c, http.StatusOK, nil, "cleared")
}

func (h *ConsoleHandler) GetMetrics(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.deps.Metrics.Snapshot(), "")
}

// Proxy forwards /api/proxy/<path> to the backend through the request
// gateway so calls pick up the bearer token and the refresh protocol.
func (h *ConsoleHandler) Proxy(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable request body", nil)
		return
	}

	header := http.Header{}
	for _, k := range []string{"Content-Type", "Accept"} {
		if v := c.GetHeader(k); v != "" {
			header.Set(k, v)
		}
	}

	resp, err := h.deps.Gateway.Do(c.Request.Context(), api.Request{
		Method: c.Request.Method,
		Path:   c.Param("path"),
		Query:  c.Request.URL.Query(),
		Header: header,
		Body:   body,
	})
	if resp == nil {
		RespondErr(c, err)
		return
	}

	if resp.RequestID != "" {
		c.Header("X-Backend-Request-Id", resp.RequestID)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.Status, contentType, resp.Body)
}
