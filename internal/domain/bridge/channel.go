package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"guardian-shell/internal/domain/auth"
	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/eventbus"
	"guardian-shell/internal/platform/logging"
)

// LoginRoute is where a content-initiated logout lands.
const LoginRoute = "/(auth)/login"

// ErrNoSurface is returned when nothing is attached to deliver to.
var ErrNoSurface = errors.New("bridge: no content surface attached")

// Surface is the content runtime the channel talks to.
type Surface interface {
	InjectJavaScript(script string) error
	PostMessage(envelope []byte) error
}

// ScriptSurface adapts a plain script injector into a Surface by sending
// envelopes through window.postMessage.
type ScriptSurface struct {
	inject func(script string) error
}

func NewScriptSurface(inject func(script string) error) *ScriptSurface {
	return &ScriptSurface{inject: inject}
}

func (s *ScriptSurface) InjectJavaScript(script string) error { return s.inject(script) }

func (s *ScriptSurface) PostMessage(envelope []byte) error {
	return s.inject(PostMessageScript(envelope))
}

// SessionControl is what the channel may read from and ask of the session.
type SessionControl interface {
	Snapshot() model.Session
	Logout(ctx context.Context)
}

// Navigator moves the host between screens.
type Navigator interface {
	Push(route string)
	Replace(route string)
}

// EventPublisher is the async side of the event bus.
type EventPublisher interface {
	PublishAsync(topic string, args ...interface{}) bool
}

type Options struct {
	Session   SessionControl
	Navigator Navigator
	Bus       EventPublisher
	Logger    model.Logger
	DevLog    *logging.DevLog
}

// Channel is the host end of the bridge. Inbound messages are handled one
// at a time in arrival order. The surface and token mirror live under a
// separate lock so a session change raised while a message is being handled
// can still update the mirror.
type Channel struct {
	session SessionControl
	nav     Navigator
	bus     EventPublisher
	logger  model.Logger
	devlog  *logging.DevLog
	now     func() time.Time

	dispatchMu sync.Mutex

	mu       sync.Mutex
	surface  Surface
	loaded   bool
	mirrored string
}

func NewChannel(opts Options) (*Channel, error) {
	if opts.Session == nil {
		return nil, errors.New("bridge channel requires a session")
	}
	logger := opts.Logger
	if logger == nil {
		logger = model.NopLogger{}
	}
	return &Channel{
		session: opts.Session,
		nav:     opts.Navigator,
		bus:     opts.Bus,
		logger:  logger,
		devlog:  opts.DevLog,
		now:     time.Now,
	}, nil
}

// Attach makes s the current surface. Content is not considered loaded
// until OnLoadEnd.
func (c *Channel) Attach(s Surface) {
	c.mu.Lock()
	c.surface = s
	c.loaded = false
	c.mirrored = ""
	c.mu.Unlock()
}

// Detach drops s if it is still the current surface.
func (c *Channel) Detach(s Surface) {
	c.mu.Lock()
	if c.surface == s {
		c.surface = nil
		c.loaded = false
		c.mirrored = ""
	}
	c.mu.Unlock()
}

func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface != nil
}

// BeforeContentLoadedScript is injected at the earliest content hook so the
// token is in storage before content makes its first request.
func (c *Channel) BeforeContentLoadedScript() string {
	return BeforeContentLoadedScript(c.session.Snapshot().AccessToken)
}

// OnLoadStart marks the surface as reloading.
func (c *Channel) OnLoadStart() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

// OnLoadEnd delivers the current token and user to freshly loaded content.
// A session that ended while the page was loading is cleared here, since the
// pre-load script may still have carried the old token.
func (c *Channel) OnLoadEnd() {
	s := c.session.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.mirrored = s.AccessToken
	if s.AccessToken == "" {
		if c.surface != nil {
			if err := c.surface.InjectJavaScript(ClearTokenScript()); err != nil {
				c.logger.Warn("clearing content token failed: %v", err)
			}
		}
	} else {
		c.sendLocked(authTokenMessage(s))
	}
	if s.User != nil {
		c.sendLocked(userInfoMessage(s.User))
	}
}

// OnSessionChanged keeps the content token mirror equal to the host token.
// It runs as a session:changed subscriber.
func (c *Channel) OnSessionChanged(s model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || c.surface == nil || s.AccessToken == c.mirrored {
		return
	}
	c.mirrored = s.AccessToken
	if s.AccessToken == "" {
		if err := c.surface.InjectJavaScript(ClearTokenScript()); err != nil {
			c.logger.Warn("clearing content token failed: %v", err)
		}
		return
	}
	c.sendLocked(authTokenMessage(s))
	if s.User != nil {
		c.sendLocked(userInfoMessage(s.User))
	}
}

func authTokenMessage(s model.Session) AuthToken {
	msg := AuthToken{AccessToken: s.AccessToken}
	if exp, ok := auth.TokenExpiry(s.AccessToken); ok {
		msg.ExpiresAt = exp.UnixMilli()
	}
	return msg
}

func userInfoMessage(u *model.User) UserInfo {
	role := u.Role
	if role == "" {
		role = "guardian"
	}
	return UserInfo{ID: u.ID, Name: u.Name, Phone: u.Phone, Role: role}
}

// Send delivers a host message to the attached surface.
func (c *Channel) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(msg)
}

func (c *Channel) SendDeepLink(link DeepLink) error { return c.Send(link) }

func (c *Channel) SendAppState(state string) error { return c.Send(AppState{State: state}) }

func (c *Channel) SendPushData(data map[string]any) error { return c.Send(PushData{Data: data}) }

func (c *Channel) sendLocked(msg Message) error {
	if c.surface == nil {
		return ErrNoSurface
	}
	data, err := Encode(msg, c.now())
	if err != nil {
		c.logger.Error("encode %s failed: %v", msg.Tag(), err)
		return err
	}
	if err := c.surface.PostMessage(data); err != nil {
		c.logger.Warn("deliver %s failed: %v", msg.Tag(), err)
		return err
	}
	c.logger.Debug("sent %s to content", msg.Tag())
	return nil
}

// HandleMessage processes one raw message from content. Malformed messages
// are logged and dropped; the returned error is informational only.
func (c *Channel) HandleMessage(ctx context.Context, raw []byte) error {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	msg, _, err := Decode(raw)
	if err != nil {
		c.logger.Warn("dropping content message: %v", err)
		if c.devlog.Enabled() {
			c.devlog.Warn(logging.ScopeBridge, "dropped message", map[string]any{"error": err.Error()})
		}
		return err
	}
	c.dispatch(ctx, msg)
	return nil
}

func (c *Channel) dispatch(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case Navigate:
		if m.Route == "" {
			c.logger.Warn("NAVIGATE without a route ignored")
			return
		}
		c.record("navigate", map[string]any{"route": m.Route})
		if c.nav != nil {
			c.nav.Push(m.Route)
		}
	case Logout:
		c.handleLogout(ctx)
	case Share:
		c.action(m.Tag(), map[string]any{"title": m.Title, "message": m.Message, "url": m.URL})
	case Haptic:
		c.action(m.Tag(), map[string]any{"type": m.Type})
	case OpenCamera, OpenGallery:
		c.action(m.Tag(), nil)
	case Analytics:
		c.publish(eventbus.EventBridgeAnalytics, eventbus.AnalyticsEventData{
			Event:      m.Event,
			Properties: m.Properties,
			ReceivedAt: c.now(),
		})
	case Ready:
		c.logger.Info("content reported ready")
		c.record("ready", nil)
		c.publish(eventbus.EventBridgeReady, c.now())
	case Network:
		if c.devlog.Enabled() {
			c.devlog.Info(logging.ScopeBridge, "content "+m.Phase+" "+m.Method+" "+m.URL, map[string]any{
				"rid":    m.RID,
				"status": m.Status,
				"ms":     m.DurationMs,
				"error":  m.Error,
			})
		}
	default:
		c.logger.Warn("no handler for %s, ignored", msg.Tag())
	}
}

// handleLogout tells content to drop its token without waiting for it, then
// clears the host session, which is authoritative, and shows login.
func (c *Channel) handleLogout(ctx context.Context) {
	c.mu.Lock()
	if c.surface != nil {
		if err := c.surface.InjectJavaScript(ClearTokenScript()); err != nil {
			c.logger.Warn("content token clear failed, continuing logout: %v", err)
		}
	}
	c.mirrored = ""
	c.mu.Unlock()

	c.session.Logout(ctx)
	c.record("logout", nil)
	if c.nav != nil {
		c.nav.Replace(LoginRoute)
	}
}

func (c *Channel) action(tag Tag, payload map[string]any) {
	c.record("action", map[string]any{"type": string(tag)})
	c.publish(eventbus.EventBridgeAction, eventbus.ActionEventData{Type: string(tag), Payload: payload})
}

func (c *Channel) publish(topic string, arg any) {
	if c.bus != nil && !c.bus.PublishAsync(topic, arg) {
		c.logger.Warn("event %s dropped, queue full", topic)
	}
}

func (c *Channel) record(msg string, meta map[string]any) {
	if c.devlog.Enabled() {
		c.devlog.Info(logging.ScopeBridge, msg, meta)
	}
}
