package ws

import (
	"context"
	"sync"
	"time"

	"guardian-shell/internal/platform/logging"
)

// SessionHandler drives one page connection until it ends.
type SessionHandler interface {
	Handle(ctx context.Context) error
	Close()
	GetSessionID() string
}

// Session is one connected content page. It ends when the page goes away,
// a newer page takes over or the shell shuts down.
type Session struct {
	id       string
	handler  SessionHandler
	conn     *Connection
	logger   *logging.Logger
	devlog   *logging.DevLog
	openedAt time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
}

func newSession(handler SessionHandler, conn *Connection, logger *logging.Logger, devlog *logging.DevLog) *Session {
	// The page outlives the upgrade request that created it.
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Session{
		id:       handler.GetSessionID(),
		handler:  handler,
		conn:     conn,
		logger:   logger,
		devlog:   devlog,
		openedAt: time.Now(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Run processes the page until it disconnects, then closes the session and
// calls onDone with the handler's error.
func (s *Session) Run(onDone func(error)) {
	err := s.handler.Handle(s.ctx)
	reason := err
	if reason == nil {
		reason = ErrPageDisconnected
	}
	s.Close(reason)
	if onDone != nil {
		onDone(err)
	}
}

// Close ends the session once. The socket goes first so bridge writes in
// flight fail fast, then the page is detached from the bridge and the
// container.
func (s *Session) Close(reason error) {
	s.once.Do(func() {
		if reason == nil {
			reason = ErrSessionShutdown
		}
		s.cancel(reason)

		if err := s.conn.Close(); err != nil {
			s.logger.WarnTag("WebSocket", "page %s socket close failed: %v", s.id, err)
		}
		s.handler.Close()
		s.record(reason)
	})
}

func (s *Session) record(reason error) {
	now := time.Now()
	s.logger.InfoTag("WebSocket", "page %s closed after %s: %v", s.id, now.Sub(s.openedAt).Round(time.Millisecond), reason)
	if !s.devlog.Enabled() {
		return
	}
	s.devlog.Info(logging.ScopeBridge, "page closed", map[string]any{
		"page":    s.id,
		"reason":  reason.Error(),
		"open_ms": now.Sub(s.openedAt).Milliseconds(),
		"idle_ms": now.Sub(s.conn.LastActive()).Milliseconds(),
	})
}
