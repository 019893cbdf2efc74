package ws

import (
	"sync"

	"guardian-shell/internal/platform/logging"
)

// Hub holds the one page that currently drives the bridge. Opening a page
// closes the page it replaces.
type Hub struct {
	logger *logging.Logger
	devlog *logging.DevLog

	mu      sync.Mutex
	current *Session
}

func NewHub(logger *logging.Logger, devlog *logging.DevLog) *Hub {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Hub{logger: logger, devlog: devlog}
}

// Open wraps handler in a session and makes it the current page.
func (h *Hub) Open(handler SessionHandler, conn *Connection) *Session {
	session := newSession(handler, conn, h.logger, h.devlog)

	h.mu.Lock()
	prev := h.current
	h.current = session
	h.mu.Unlock()

	if prev != nil {
		h.logger.InfoTag("WebSocket", "page %s replaces %s", session.ID(), prev.ID())
		prev.Close(ErrSessionReplaced)
	}
	if h.devlog.Enabled() {
		h.devlog.Info(logging.ScopeBridge, "page attached", map[string]any{"page": session.ID()})
	}
	return session
}

// Release forgets s if it is still the current page. A replaced page
// releasing late leaves its successor in place.
func (h *Hub) Release(s *Session) {
	h.mu.Lock()
	if h.current == s {
		h.current = nil
	}
	h.mu.Unlock()
}

// Current returns the id of the page driving the bridge, or "".
func (h *Hub) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return ""
	}
	return h.current.ID()
}

// Shutdown closes the current page with reason.
func (h *Hub) Shutdown(reason error) {
	h.mu.Lock()
	session := h.current
	h.current = nil
	h.mu.Unlock()

	if session != nil {
		session.Close(reason)
	}
}
