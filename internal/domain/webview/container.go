package webview

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/eventbus"
	platformerrors "guardian-shell/internal/platform/errors"
	"guardian-shell/internal/platform/logging"
)

const DefaultLoadTimeout = 15 * time.Second

// Status is the content load state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// State is a snapshot of the container.
type State struct {
	Status       Status              `json:"status"`
	URL          string              `json:"url"`
	CurrentURL   string              `json:"currentUrl,omitempty"`
	CanGoBack    bool                `json:"canGoBack"`
	CanGoForward bool                `json:"canGoForward"`
	Error        string              `json:"error,omitempty"`
	ErrorKind    platformerrors.Kind `json:"errorKind,omitempty"`
	Loads        int                 `json:"loads"`
}

// Guard vets top-frame navigations.
type Guard interface {
	Check(rawURL string) error
}

// Bridge is the part of the bridge channel tied to the load lifecycle.
type Bridge interface {
	BeforeContentLoadedScript() string
	OnLoadStart()
	OnLoadEnd()
}

// Controller drives the actual content runtime.
type Controller interface {
	Load(url, beforeContentLoaded string) error
	Reload(beforeContentLoaded string) error
}

// EventPublisher is the async side of the event bus.
type EventPublisher interface {
	PublishAsync(topic string, args ...interface{}) bool
}

// NavigationRequest is a load the content runtime asks permission for.
type NavigationRequest struct {
	URL       string `json:"url"`
	MainFrame bool   `json:"mainFrame"`
}

// NavigationState is reported by the runtime after each navigation.
type NavigationState struct {
	URL          string `json:"url"`
	CanGoBack    bool   `json:"canGoBack"`
	CanGoForward bool   `json:"canGoForward"`
}

type Options struct {
	ContentURL  string
	InitialPath string
	LoadTimeout time.Duration
	Guard       Guard
	Bridge      Bridge
	Bus         EventPublisher
	Logger      model.Logger
	DevLog      *logging.DevLog
}

// Container hosts the embedded content: it owns the load state machine,
// the load timeout and the top-frame URL policy.
type Container struct {
	url     string
	timeout time.Duration
	guard   Guard
	bridge  Bridge
	bus     EventPublisher
	logger  model.Logger
	devlog  *logging.DevLog

	mu         sync.Mutex
	controller Controller
	state      State
	loadSeq    uint64
	timer      *time.Timer
	lastErr    error
}

func New(opts Options) (*Container, error) {
	if opts.ContentURL == "" {
		return nil, errors.New("webview container requires a content url")
	}
	if opts.Guard == nil {
		return nil, errors.New("webview container requires a url guard")
	}
	logger := opts.Logger
	if logger == nil {
		logger = model.NopLogger{}
	}
	timeout := opts.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	url := ContentURL(opts.ContentURL, opts.InitialPath)
	return &Container{
		url:     url,
		timeout: timeout,
		guard:   opts.Guard,
		bridge:  opts.Bridge,
		bus:     opts.Bus,
		logger:  logger,
		devlog:  opts.DevLog,
		state:   State{Status: StatusIdle, URL: url},
	}, nil
}

// ContentURL joins base and path with exactly one slash.
func ContentURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Attach binds a runtime and starts loading the content URL.
func (c *Container) Attach(ctrl Controller) error {
	c.mu.Lock()
	c.controller = ctrl
	c.state = State{Status: StatusIdle, URL: c.url}
	c.mu.Unlock()
	return c.load(func(ctrl Controller, script string) error { return ctrl.Load(c.url, script) })
}

// Detach forgets ctrl if it is still bound.
func (c *Container) Detach(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller != ctrl {
		return
	}
	c.controller = nil
	c.stopTimerLocked()
	c.state = State{Status: StatusIdle, URL: c.url}
}

// Retry clears a failure and reloads.
func (c *Container) Retry() error {
	c.logger.Info("retrying content load")
	return c.load(func(ctrl Controller, script string) error { return ctrl.Reload(script) })
}

func (c *Container) load(start func(Controller, string) error) error {
	script := "true;"
	if c.bridge != nil {
		script = c.bridge.BeforeContentLoadedScript()
	}

	c.mu.Lock()
	ctrl := c.controller
	if ctrl == nil {
		c.mu.Unlock()
		return platformerrors.New(platformerrors.KindTransport, "webview.load", "no content runtime attached")
	}
	c.beginLoadLocked()
	c.mu.Unlock()
	c.notify()

	if err := start(ctrl, script); err != nil {
		c.fail(platformerrors.Wrap(platformerrors.KindTransport, "webview.load", "content runtime rejected load", err))
		return err
	}
	return nil
}

// OnLoadStart is reported by the runtime when a top-frame load begins.
func (c *Container) OnLoadStart(url string) {
	c.mu.Lock()
	if url != "" {
		c.state.CurrentURL = url
	}
	if c.state.Status != StatusLoading {
		c.beginLoadLocked()
	}
	c.mu.Unlock()
	c.notify()
}

// beginLoadLocked enters Loading and arms the load timeout.
func (c *Container) beginLoadLocked() {
	c.state.Status = StatusLoading
	c.state.Error = ""
	c.state.ErrorKind = ""
	c.state.Loads++
	c.lastErr = nil
	c.stopTimerLocked()
	c.loadSeq++
	seq := c.loadSeq
	c.timer = time.AfterFunc(c.timeout, func() { c.onTimeout(seq) })
	if c.bridge != nil {
		c.bridge.OnLoadStart()
	}
}

func (c *Container) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Container) onTimeout(seq uint64) {
	c.mu.Lock()
	stale := seq != c.loadSeq || c.state.Status != StatusLoading
	url := c.url
	if c.state.CurrentURL != "" {
		url = c.state.CurrentURL
	}
	c.mu.Unlock()
	if stale {
		return
	}
	c.fail(platformerrors.New(platformerrors.KindTimeout, "webview.load",
		fmt.Sprintf("content load timed out after %s (url=%s)", c.timeout, url)))
}

// OnLoadEnd marks the content ready and hands the session to it.
func (c *Container) OnLoadEnd() {
	c.mu.Lock()
	if c.state.Status != StatusLoading {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.state.Status = StatusReady
	c.mu.Unlock()

	if c.bridge != nil {
		c.bridge.OnLoadEnd()
	}
	c.logger.Info("content loaded")
	c.notify()
}

// OnLoadError records a runtime-reported load failure.
func (c *Container) OnLoadError(description string) {
	c.fail(platformerrors.New(platformerrors.KindNetwork, "webview.load", description))
}

// ShouldStartLoad decides a navigation. Subresource loads always pass; a
// denied top-frame load puts the container in the failed state.
func (c *Container) ShouldStartLoad(req NavigationRequest) bool {
	if !req.MainFrame {
		return true
	}
	if err := c.guard.Check(req.URL); err != nil {
		c.logger.Warn("top-frame navigation denied: %v", err)
		if c.devlog.Enabled() {
			c.devlog.Warn(logging.ScopeNav, "navigation denied", map[string]any{"url": req.URL})
		}
		c.fail(err)
		return false
	}
	return true
}

// OnNavigationStateChange tracks history and the current URL.
func (c *Container) OnNavigationStateChange(nav NavigationState) {
	c.mu.Lock()
	if nav.URL != "" {
		c.state.CurrentURL = nav.URL
	}
	c.state.CanGoBack = nav.CanGoBack
	c.state.CanGoForward = nav.CanGoForward
	c.mu.Unlock()
	c.notify()
}

func (c *Container) fail(err error) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.state.Status = StatusFailed
	c.state.Error = err.Error()
	c.state.ErrorKind = platformerrors.KindOf(err)
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Warn("content failed: %v", err)
	c.notify()
}

func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error behind the failed state, if any.
func (c *Container) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close stops the pending load timer.
func (c *Container) Close() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}

func (c *Container) notify() {
	if c.bus == nil {
		return
	}
	c.bus.PublishAsync(eventbus.EventWebViewState, c.State())
}
