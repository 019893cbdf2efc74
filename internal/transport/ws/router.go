package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"guardian-shell/internal/platform/logging"
)

// ErrSessionReplaced closes a page when a newer one takes over the bridge.
var ErrSessionReplaced = errors.New("websocket session replaced by a newer page")

// HandlerBuilder creates a session handler for an upgraded websocket connection.
type HandlerBuilder func(conn *Connection, req *http.Request) (SessionHandler, error)

// Router is responsible for upgrading HTTP connections to websocket sessions.
type Router struct {
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	builder          atomic.Value // HandlerBuilder
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	// AllowedOrigins limits which pages may connect. Empty allows any.
	AllowedOrigins []string
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: originChecker(opts.AllowedOrigins),
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	upgrader.HandshakeTimeout = timeout

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// SetHandlerBuilder registers the handler builder that will be invoked after a successful upgrade.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

// Handle upgrades the HTTP connection and launches a new page session.
// Only one page drives the bridge at a time; older pages are closed.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "handshake failed: %v", err)
		}
		return
	}

	pageID := resolvePageID(req)
	if r.logger != nil {
		r.logger.InfoTag("WebSocket", "page connected id=%s", pageID)
	}

	wsConn := NewConnection(pageID, conn)
	handler, err := builder(wsConn, req)
	if err != nil || handler == nil {
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "building page handler failed: %v", err)
		}
		_ = wsConn.Close()
		return
	}

	session := r.hub.Open(handler, wsConn)
	go session.Run(func(runErr error) {
		r.hub.Release(session)
		if runErr != nil && !isNormalClose(runErr) && r.logger != nil {
			r.logger.WarnTag("WebSocket", "page %s ended: %v", session.ID(), runErr)
		}
	})
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled)
}

func resolvePageID(req *http.Request) string {
	id := req.Header.Get("Page-Id")
	if id == "" {
		id = req.URL.Query().Get("page-id")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id
}
