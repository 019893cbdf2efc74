package ws

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"guardian-shell/internal/domain/bridge"
	"guardian-shell/internal/domain/webview"
	"guardian-shell/internal/platform/logging"
)

// Bridge is the part of the bridge channel a page session drives.
type Bridge interface {
	Attach(s bridge.Surface)
	Detach(s bridge.Surface)
	HandleMessage(ctx context.Context, raw []byte) error
}

// Content is the webview container a page session reports into.
type Content interface {
	Attach(ctrl webview.Controller) error
	Detach(ctrl webview.Controller)
	OnLoadStart(url string)
	OnLoadEnd()
	OnLoadError(description string)
	ShouldStartLoad(req webview.NavigationRequest) bool
	OnNavigationStateChange(nav webview.NavigationState)
	Retry() error
}

// PageHandler binds one connected page to the bridge and the container.
type PageHandler struct {
	conn    *Connection
	bridge  Bridge
	content Content
	logger  *logging.Logger
}

func NewPageHandler(conn *Connection, b Bridge, content Content, logger *logging.Logger) *PageHandler {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &PageHandler{conn: conn, bridge: b, content: content, logger: logger}
}

// Builder returns a HandlerBuilder producing PageHandlers.
func Builder(b Bridge, content Content, logger *logging.Logger) HandlerBuilder {
	return func(conn *Connection, _ *http.Request) (SessionHandler, error) {
		if b == nil || content == nil {
			return nil, errors.New("page handler requires a bridge and a content container")
		}
		return NewPageHandler(conn, b, content, logger), nil
	}
}

func (h *PageHandler) GetSessionID() string {
	return h.conn.GetID()
}

// Handle attaches the page and processes its frames in order until the
// socket closes.
func (h *PageHandler) Handle(ctx context.Context) error {
	h.bridge.Attach(h.conn)
	if err := h.content.Attach(h.conn); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		f, err := h.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, errBadFrame) {
				h.logger.WarnTag("WebSocket", "page %s sent %v", h.conn.GetID(), err)
				continue
			}
			if errors.Is(err, net.ErrClosed) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		h.handleFrame(ctx, f)
	}
}

func (h *PageHandler) handleFrame(ctx context.Context, f Frame) {
	switch f.Kind {
	case FrameMessage:
		// Malformed envelopes are logged and dropped inside the channel.
		_ = h.bridge.HandleMessage(ctx, []byte(f.Data))
	case FrameLoadStart:
		h.content.OnLoadStart(f.URL)
	case FrameLoadEnd:
		h.content.OnLoadEnd()
	case FrameLoadError:
		h.content.OnLoadError(f.Error)
	case FrameNavState:
		h.content.OnNavigationStateChange(webview.NavigationState{
			URL:          f.URL,
			CanGoBack:    f.CanGoBack,
			CanGoForward: f.CanGoForward,
		})
	case FrameRequest:
		allowed := h.content.ShouldStartLoad(webview.NavigationRequest{URL: f.URL, MainFrame: f.MainFrame})
		reply := Frame{Kind: FrameShouldStart, ID: f.ID, URL: f.URL, Allowed: allowed}
		if !allowed {
			reply.Error = "navigation blocked"
		}
		if err := h.conn.WriteFrame(reply); err != nil {
			h.logger.WarnTag("WebSocket", "reply to page %s failed: %v", h.conn.GetID(), err)
		}
	case FrameRetry:
		if err := h.content.Retry(); err != nil {
			h.logger.WarnTag("WebSocket", "retry failed: %v", err)
		}
	default:
		h.logger.DebugTag("WebSocket", "ignoring frame kind %q", f.Kind)
	}
}

// Close detaches the page from the bridge and container.
func (h *PageHandler) Close() {
	h.bridge.Detach(h.conn)
	h.content.Detach(h.conn)
}
