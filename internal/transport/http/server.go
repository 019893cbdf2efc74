package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"guardian-shell/internal/platform/logging"
)

const shutdownTimeout = 5 * time.Second

// ErrServerShutdown is the cancellation cause used when the console stops.
var ErrServerShutdown = errors.New("console server shutdown")

// Server runs the console engine on a plain http.Server.
type Server struct {
	addr    string
	handler http.Handler
	logger  *logging.Logger

	mu      sync.Mutex
	httpSrv *http.Server
	ln      net.Listener
}

func NewServer(addr string, router *Router, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Server{addr: addr, handler: router.Engine, logger: logger}
}

// Start listens and serves until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpSrv != nil {
		s.mu.Unlock()
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv, s.ln = srv, ln
	s.mu.Unlock()

	if ctx != nil {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), shutdownTimeout, context.Cause(ctx))
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s.logger.InfoTag("HTTP", "console listening on %s", ln.Addr())

	err = srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), shutdownTimeout, ErrServerShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
