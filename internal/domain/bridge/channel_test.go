package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"

	"guardian-shell/internal/domain/auth"
	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/auth/store"
	"guardian-shell/internal/domain/eventbus"
	"guardian-shell/internal/platform/logging"
)

// journal records calls across fakes so tests can assert ordering.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeSurface struct {
	j         *journal
	mu        sync.Mutex
	scripts   []string
	envelopes [][]byte
	injectErr error
}

func (s *fakeSurface) InjectJavaScript(script string) error {
	s.mu.Lock()
	s.scripts = append(s.scripts, script)
	s.mu.Unlock()
	if s.j != nil {
		s.j.add("inject")
	}
	return s.injectErr
}

func (s *fakeSurface) PostMessage(envelope []byte) error {
	s.mu.Lock()
	s.envelopes = append(s.envelopes, envelope)
	s.mu.Unlock()
	return nil
}

func (s *fakeSurface) types(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.envelopes))
	for _, e := range s.envelopes {
		var env struct {
			Type string `json:"type"`
		}
		if err := sonic.Unmarshal(e, &env); err != nil {
			t.Fatalf("bad envelope %s: %v", e, err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (s *fakeSurface) scriptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scripts)
}

type fakeSession struct {
	j       *journal
	mu      sync.Mutex
	snap    model.Session
	logouts int
}

func (f *fakeSession) Snapshot() model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Logout(context.Context) {
	f.mu.Lock()
	f.logouts++
	f.snap = model.Session{State: model.StateSignedOut}
	f.mu.Unlock()
	if f.j != nil {
		f.j.add("logout")
	}
}

type fakeNav struct {
	j        *journal
	mu       sync.Mutex
	pushes   []string
	replaces []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
}

func (n *fakeNav) Push(route string) {
	if n.inFlight.Add(1) > 1 {
		n.overlap.Store(true)
	}
	time.Sleep(n.delay)
	n.mu.Lock()
	n.pushes = append(n.pushes, route)
	n.mu.Unlock()
	n.inFlight.Add(-1)
}

func (n *fakeNav) Replace(route string) {
	n.mu.Lock()
	n.replaces = append(n.replaces, route)
	n.mu.Unlock()
	if n.j != nil {
		n.j.add("replace " + route)
	}
}

func envelope(tag Tag, payload string) []byte {
	return []byte(`{"type":"` + string(tag) + `","payload":` + payload + `,"timestamp":1700000000000}`)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func newChannel(t *testing.T, session SessionControl, nav Navigator, bus EventPublisher, devlog *logging.DevLog) *Channel {
	t.Helper()
	c, err := NewChannel(Options{Session: session, Navigator: nav, Bus: bus, DevLog: devlog})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBeforeContentLoadedScriptUsesSessionToken(t *testing.T) {
	session := &fakeSession{snap: model.Session{AccessToken: "host-token"}}
	c := newChannel(t, session, nil, nil, nil)

	script := c.BeforeContentLoadedScript()
	if !strings.Contains(script, `"host-token"`) || !strings.Contains(script, TokenEvent) {
		t.Fatalf("unexpected script:\n%s", script)
	}
}

func TestLoadEndDeliversTokenAndUser(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)
	session := &fakeSession{snap: model.Session{
		State:         model.StateSignedIn,
		Authenticated: true,
		AccessToken:   token,
		User:          &model.User{ID: "7", Name: "Kim"},
	}}
	surface := &fakeSurface{}
	c := newChannel(t, session, nil, nil, nil)
	c.Attach(surface)
	c.OnLoadEnd()

	types := surface.types(t)
	if len(types) != 2 || types[0] != string(TagAuthToken) || types[1] != string(TagUserInfo) {
		t.Fatalf("unexpected deliveries %v", types)
	}

	var first struct {
		Payload AuthToken `json:"payload"`
	}
	if err := sonic.Unmarshal(surface.envelopes[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.Payload.AccessToken != token || first.Payload.ExpiresAt != exp.UnixMilli() {
		t.Fatalf("unexpected auth payload %+v", first.Payload)
	}

	var second struct {
		Payload UserInfo `json:"payload"`
	}
	if err := sonic.Unmarshal(surface.envelopes[1], &second); err != nil {
		t.Fatal(err)
	}
	if second.Payload.Role != "guardian" || second.Payload.ID != "7" {
		t.Fatalf("unexpected user payload %+v", second.Payload)
	}
}

func TestTokenMirrorFollowsSession(t *testing.T) {
	session := &fakeSession{snap: model.Session{AccessToken: "t1"}}
	surface := &fakeSurface{}
	c := newChannel(t, session, nil, nil, nil)
	c.Attach(surface)

	c.OnSessionChanged(model.Session{AccessToken: "t0"})
	if len(surface.types(t)) != 0 || surface.scriptCount() != 0 {
		t.Fatal("nothing should reach content before it has loaded")
	}

	c.OnLoadEnd()
	c.OnSessionChanged(model.Session{AccessToken: "t1"})
	if got := surface.types(t); len(got) != 1 {
		t.Fatalf("unchanged token should not be re-sent, got %v", got)
	}

	c.OnSessionChanged(model.Session{AccessToken: "t2"})
	if got := surface.types(t); len(got) != 2 || got[1] != string(TagAuthToken) {
		t.Fatalf("rotated token should be delivered, got %v", got)
	}

	c.OnSessionChanged(model.Session{})
	if surface.scriptCount() != 1 || !strings.Contains(surface.scripts[0], "removeItem") {
		t.Fatalf("expected one clear script, got %v", surface.scripts)
	}
}

func TestLogoutDuringLoadClearsContentOnLoadEnd(t *testing.T) {
	session := &fakeSession{snap: model.Session{AccessToken: "t0", Authenticated: true}}
	surface := &fakeSurface{}
	c := newChannel(t, session, nil, nil, nil)
	c.Attach(surface)

	if script := c.BeforeContentLoadedScript(); !strings.Contains(script, `"t0"`) {
		t.Fatalf("pre-load script should carry t0, got:\n%s", script)
	}
	c.OnLoadStart()

	session.Logout(context.Background())
	c.OnSessionChanged(session.Snapshot())
	if surface.scriptCount() != 0 {
		t.Fatal("nothing should be injected while the page is loading")
	}

	c.OnLoadEnd()
	if surface.scriptCount() != 1 || !strings.Contains(surface.scripts[0], "removeItem") {
		t.Fatalf("expected the stale token to be cleared, got %v", surface.scripts)
	}
	if got := surface.types(t); len(got) != 0 {
		t.Fatalf("signed-out content should receive no messages, got %v", got)
	}

	c.OnSessionChanged(session.Snapshot())
	if surface.scriptCount() != 1 {
		t.Fatal("an unchanged signed-out session must not clear again")
	}
}

func TestSignedOutPreloadScriptClearsLeftoverToken(t *testing.T) {
	c := newChannel(t, &fakeSession{}, nil, nil, nil)
	if script := c.BeforeContentLoadedScript(); !strings.Contains(script, `localStorage.removeItem("accessToken")`) {
		t.Fatalf("signed-out pre-load script must remove the token, got:\n%s", script)
	}
}

func TestLogoutClearsContentThenSessionThenNavigates(t *testing.T) {
	j := &journal{}
	session := &fakeSession{j: j, snap: model.Session{AccessToken: "t1", Authenticated: true}}
	surface := &fakeSurface{j: j}
	nav := &fakeNav{j: j}
	c := newChannel(t, session, nav, nil, nil)
	c.Attach(surface)
	c.OnLoadEnd()

	if err := c.HandleMessage(context.Background(), envelope(TagLogout, `{}`)); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}

	got := j.list()
	want := []string{"inject", "logout", "replace " + LoginRoute}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order %v, want %v", got, want)
	}
}

func TestLogoutProceedsWhenContentClearFails(t *testing.T) {
	session := &fakeSession{snap: model.Session{AccessToken: "t1"}}
	surface := &fakeSurface{injectErr: errors.New("surface gone")}
	nav := &fakeNav{}
	c := newChannel(t, session, nav, nil, nil)
	c.Attach(surface)

	_ = c.HandleMessage(context.Background(), envelope(TagLogout, `null`))
	if session.logouts != 1 {
		t.Fatalf("host logout must happen regardless, got %d", session.logouts)
	}
	if len(nav.replaces) != 1 || nav.replaces[0] != LoginRoute {
		t.Fatalf("expected login redirect, got %v", nav.replaces)
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	session := &fakeSession{}
	nav := &fakeNav{}
	devlog := logging.NewDevLog(true, 10)
	c := newChannel(t, session, nav, nil, devlog)

	for _, raw := range []string{
		`{"type":"LOGOUT","payload":{}}`,
		`{"type":"EXPLODE","payload":{},"timestamp":1}`,
		`not json at all`,
	} {
		if err := c.HandleMessage(context.Background(), []byte(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
	if session.logouts != 0 || len(nav.replaces) != 0 {
		t.Fatal("malformed messages must not reach session or navigation")
	}
	if n := len(devlog.Entries()); n != 3 {
		t.Fatalf("expected 3 dropped entries, got %d", n)
	}
}

func TestNetworkTelemetryOnlyReachesDevLog(t *testing.T) {
	session := &fakeSession{snap: model.Session{AccessToken: "t1", Authenticated: true}}
	nav := &fakeNav{}
	devlog := logging.NewDevLog(true, 10)
	c := newChannel(t, session, nav, nil, devlog)

	raw := envelope(TagNetwork, `{"phase":"end","rid":"abc","method":"GET","url":"/api/me","status":401}`)
	if err := c.HandleMessage(context.Background(), raw); err != nil {
		t.Fatal(err)
	}

	if session.logouts != 0 || len(nav.pushes)+len(nav.replaces) != 0 {
		t.Fatal("telemetry must not affect session or navigation")
	}
	entries := devlog.Entries()
	if len(entries) != 1 || entries[0].Meta["rid"] != "abc" || entries[0].Scope != logging.ScopeBridge {
		t.Fatalf("unexpected devlog %+v", entries)
	}
}

func TestAnalyticsAndActionsFanOutOnBus(t *testing.T) {
	bus := eventbus.New(1)
	defer bus.Shutdown()

	analytics := make(chan eventbus.AnalyticsEventData, 1)
	actions := make(chan eventbus.ActionEventData, 4)
	if err := bus.Subscribe(eventbus.EventBridgeAnalytics, func(e eventbus.AnalyticsEventData) { analytics <- e }); err != nil {
		t.Fatal(err)
	}
	if err := bus.Subscribe(eventbus.EventBridgeAction, func(e eventbus.ActionEventData) { actions <- e }); err != nil {
		t.Fatal(err)
	}

	c := newChannel(t, &fakeSession{}, &fakeNav{}, bus, nil)
	ctx := context.Background()
	_ = c.HandleMessage(ctx, envelope(TagAnalytics, `{"event":"care_log_open","properties":{"from":"home"}}`))
	_ = c.HandleMessage(ctx, envelope(TagHaptic, `{"type":"light"}`))

	select {
	case e := <-analytics:
		if e.Event != "care_log_open" || e.Properties["from"] != "home" {
			t.Fatalf("unexpected analytics event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("analytics event not delivered")
	}
	select {
	case e := <-actions:
		if e.Type != string(TagHaptic) || e.Payload["type"] != "light" {
			t.Fatalf("unexpected action %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("action event not delivered")
	}
}

func TestDispatchIsSerialised(t *testing.T) {
	nav := &fakeNav{delay: 5 * time.Millisecond}
	c := newChannel(t, &fakeSession{}, nav, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.HandleMessage(context.Background(), envelope(TagNavigate, `{"route":"/detail"}`))
		}()
	}
	wg.Wait()

	if nav.overlap.Load() {
		t.Fatal("two messages were handled at the same time")
	}
	if len(nav.pushes) != 8 {
		t.Fatalf("expected 8 pushes, got %d", len(nav.pushes))
	}
}

type stubBackend struct{}

func (stubBackend) Login(context.Context, model.Credentials) (model.TokenPair, *model.User, error) {
	return model.TokenPair{}, nil, errors.New("unused")
}

func (stubBackend) SocialLogin(context.Context, string, string) (model.TokenPair, *model.User, error) {
	return model.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, &model.User{ID: "7", Name: "Kim"}, nil
}

func (stubBackend) Refresh(context.Context, string) (model.TokenPair, error) {
	return model.TokenPair{}, errors.New("unused")
}

func TestLogoutWithLiveSessionManager(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(1)
	defer bus.Shutdown()

	tokens := auth.NewTokenStore(store.NewMemory(store.Config{Namespace: "bridge"}), nil)
	mgr, err := auth.NewManager(auth.Options{
		Tokens:    tokens,
		Backend:   stubBackend{},
		Providers: auth.NewProviderRegistry(auth.NewStaticProvider(model.ProviderKakao, "sdk")),
		Bus:       bus,
	})
	if err != nil {
		t.Fatal(err)
	}

	nav := &fakeNav{}
	c := newChannel(t, mgr, nav, bus, nil)
	if err := bus.Subscribe(eventbus.EventSessionChanged, c.OnSessionChanged); err != nil {
		t.Fatal(err)
	}
	surface := &fakeSurface{}
	c.Attach(surface)
	c.OnLoadEnd()

	if err := mgr.SocialLogin(ctx, model.ProviderKakao); err != nil {
		t.Fatal(err)
	}
	if got := surface.types(t); len(got) != 2 || got[0] != string(TagAuthToken) {
		t.Fatalf("login should mirror the token into content, got %v", got)
	}
	before := surface.scriptCount()

	done := make(chan error, 1)
	go func() { done <- c.HandleMessage(ctx, envelope(TagLogout, `{}`)) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("logout did not complete")
	}

	if mgr.Snapshot().Authenticated || tokens.AccessToken(ctx) != "" {
		t.Fatal("host session must be cleared")
	}
	if got := surface.scriptCount() - before; got != 1 {
		t.Fatalf("content should be cleared exactly once, got %d scripts", got)
	}
	if len(nav.replaces) != 1 || nav.replaces[0] != LoginRoute {
		t.Fatalf("expected login redirect, got %v", nav.replaces)
	}
}
