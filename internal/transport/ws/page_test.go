package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/bridge"
	"guardian-shell/internal/domain/urlguard"
	"guardian-shell/internal/domain/webview"
	"guardian-shell/internal/platform/logging"
)

type stubSession struct {
	mu      sync.Mutex
	snap    model.Session
	logouts int
}

func (s *stubSession) Snapshot() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) Logout(context.Context) {
	s.mu.Lock()
	s.logouts++
	s.snap = model.Session{State: model.StateSignedOut}
	s.mu.Unlock()
}

func (s *stubSession) logoutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

type page struct {
	t    *testing.T
	conn *websocket.Conn
}

func (p *page) send(f Frame) {
	p.t.Helper()
	data, err := sonic.Marshal(f)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.t.Fatalf("page write: %v", err)
	}
}

func (p *page) next() Frame {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		p.t.Fatalf("page read: %v", err)
	}
	var f Frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		p.t.Fatalf("bad frame %s: %v", data, err)
	}
	return f
}

type pageServer struct {
	url       string
	hub       *Hub
	container *webview.Container
	devlog    *logging.DevLog
}

func newPageServer(t *testing.T, session *stubSession) *pageServer {
	t.Helper()
	logger := logging.NewDiscard()
	devlog := logging.NewDevLog(true, 50)

	channel, err := bridge.NewChannel(bridge.Options{Session: session})
	if err != nil {
		t.Fatal(err)
	}
	container, err := webview.New(webview.Options{
		ContentURL:  "https://guardian.dongdong.kr",
		LoadTimeout: time.Minute,
		Guard: urlguard.New(urlguard.Policy{
			AllowedSchemes: []string{"https"},
			AllowedDomains: []string{"dongdong.kr"},
			DeniedDomains:  []string{"kauth.kakao.com"},
		}),
		Bridge: channel,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(container.Close)

	hub := NewHub(logger, devlog)
	router := NewRouter(hub, logger, RouterOptions{HandshakeTimeout: time.Second})
	router.SetHandlerBuilder(Builder(channel, container, logger))

	srv := httptest.NewServer(http.HandlerFunc(router.Handle))
	t.Cleanup(func() {
		hub.Shutdown(nil)
		srv.Close()
	})
	return &pageServer{
		url:       "ws" + strings.TrimPrefix(srv.URL, "http") + "/bridge",
		hub:       hub,
		container: container,
		devlog:    devlog,
	}
}

func (s *pageServer) dial(t *testing.T, pageID string) *page {
	t.Helper()
	header := http.Header{}
	if pageID != "" {
		header.Set("Page-Id", pageID)
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &page{t: t, conn: conn}
}

func setup(t *testing.T, session *stubSession) (*page, *webview.Container) {
	t.Helper()
	srv := newPageServer(t, session)
	return srv.dial(t, ""), srv.container
}

func TestPageSessionLifecycle(t *testing.T) {
	session := &stubSession{snap: model.Session{
		State:         model.StateSignedIn,
		Authenticated: true,
		AccessToken:   "host-token",
		User:          &model.User{ID: "7", Name: "Kim"},
	}}
	p, container := setup(t, session)

	load := p.next()
	if load.Kind != FrameLoad || load.URL != "https://guardian.dongdong.kr/" {
		t.Fatalf("expected load frame, got %+v", load)
	}
	if !strings.Contains(load.Script, `"host-token"`) {
		t.Fatalf("load must carry the token pre-load script, got %q", load.Script)
	}

	p.send(Frame{Kind: FrameLoadEnd})
	first, second := p.next(), p.next()
	if first.Kind != FrameMessage || !strings.Contains(first.Data, `"AUTH_TOKEN"`) {
		t.Fatalf("expected AUTH_TOKEN delivery, got %+v", first)
	}
	if second.Kind != FrameMessage || !strings.Contains(second.Data, `"USER_INFO"`) {
		t.Fatalf("expected USER_INFO delivery, got %+v", second)
	}
	if container.State().Status != webview.StatusReady {
		t.Fatalf("expected ready container, got %+v", container.State())
	}

	p.send(Frame{Kind: FrameRequest, ID: "n1", URL: "https://kauth.kakao.com/oauth", MainFrame: true})
	reply := p.next()
	if reply.Kind != FrameShouldStart || reply.ID != "n1" || reply.Allowed {
		t.Fatalf("expected denial, got %+v", reply)
	}
	if container.State().Status != webview.StatusFailed {
		t.Fatal("denied navigation should surface an error state")
	}

	p.send(Frame{Kind: FrameRetry})
	if reload := p.next(); reload.Kind != FrameReload {
		t.Fatalf("expected reload frame, got %+v", reload)
	}
	p.send(Frame{Kind: FrameLoadEnd})
	p.next()
	p.next()

	p.send(Frame{Kind: FrameMessage, Data: `{"type":"LOGOUT","payload":{},"timestamp":1}`})
	clear := p.next()
	if clear.Kind != FrameInject || !strings.Contains(clear.Script, "removeItem") {
		t.Fatalf("expected clear script, got %+v", clear)
	}

	deadline := time.Now().Add(2 * time.Second)
	for session.logoutCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("host logout never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewerPageReplacesCurrent(t *testing.T) {
	session := &stubSession{snap: model.Session{AccessToken: "host-token"}}
	srv := newPageServer(t, session)

	first := srv.dial(t, "page-1")
	if f := first.next(); f.Kind != FrameLoad {
		t.Fatalf("expected load frame, got %+v", f)
	}
	if got := srv.hub.Current(); got != "page-1" {
		t.Fatalf("expected page-1 to be current, got %q", got)
	}

	second := srv.dial(t, "page-2")
	if f := second.next(); f.Kind != FrameLoad {
		t.Fatalf("expected load frame for the new page, got %+v", f)
	}
	if got := srv.hub.Current(); got != "page-2" {
		t.Fatalf("expected page-2 to take over, got %q", got)
	}

	_ = first.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.conn.ReadMessage(); err == nil {
		t.Fatal("replaced page should be disconnected")
	}

	var closed map[string]any
	for _, e := range srv.devlog.Entries() {
		if e.Scope == logging.ScopeBridge && e.Message == "page closed" {
			closed = e.Meta
		}
	}
	if closed == nil || closed["page"] != "page-1" || closed["reason"] != ErrSessionReplaced.Error() {
		t.Fatalf("expected a BRIDGE close entry for page-1, got %v", closed)
	}

	srv.hub.Shutdown(ErrSessionShutdown)
	if srv.hub.Current() != "" {
		t.Fatal("shutdown should leave no current page")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:8081/"})

	req := httptest.NewRequest("GET", "/bridge", nil)
	if !check(req) {
		t.Fatal("requests without an origin are allowed")
	}
	req.Header.Set("Origin", "http://localhost:8081")
	if !check(req) {
		t.Fatal("listed origin should pass")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatal("unlisted origin should be rejected")
	}
	if !originChecker(nil)(req) {
		t.Fatal("no allow-list means any origin")
	}
}
