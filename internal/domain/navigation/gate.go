package navigation

import (
	"context"
	"sync"

	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/eventbus"
	"guardian-shell/internal/platform/logging"
)

// Phase is the boot stabilisation state. Ready is sticky.
type Phase string

const (
	PhaseStabilizing Phase = "stabilizing"
	PhaseReady       Phase = "ready"
)

// View is what the root screen should render.
type View string

const (
	ViewLoading     View = "loading"
	ViewForceUpdate View = "force_update"
	ViewContent     View = "content"
)

// Navigator replaces the current screen. It must not push history.
type Navigator interface {
	Replace(route string)
}

// FlagSource reads the onboarding flags from storage.
type FlagSource interface {
	OnboardingFlags(ctx context.Context) model.OnboardingFlags
}

// EventPublisher is the async side of the event bus.
type EventPublisher interface {
	PublishAsync(topic string, args ...interface{}) bool
}

// ForceUpdate describes a blocking update prompt.
type ForceUpdate struct {
	AppVersion string `json:"appVersion"`
	MinVersion string `json:"minVersion"`
	UpdateURL  string `json:"updateUrl,omitempty"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Target     Group        `json:"target,omitempty"`
	Location   string       `json:"location"`
	Allowed    bool         `json:"allowed"`
	Redirect   string       `json:"redirect,omitempty"`
	Phase      Phase        `json:"phase"`
	View       View         `json:"view"`
	Superseded bool         `json:"superseded,omitempty"`
	Update     *ForceUpdate `json:"update,omitempty"`
}

type GateOptions struct {
	Flags     FlagSource
	Navigator Navigator
	Bus       EventPublisher
	Logger    model.Logger
	DevLog    *logging.DevLog

	AppVersion string
	MinVersion string
	UpdateURL  string
}

// Gate keeps the visible screen consistent with the session and onboarding
// state. Every evaluation bumps a generation counter; a result whose flag
// read was overtaken by a newer evaluation is discarded without redirecting.
type Gate struct {
	flags  FlagSource
	nav    Navigator
	bus    EventPublisher
	logger model.Logger
	devlog *logging.DevLog
	update *ForceUpdate

	mu            sync.Mutex
	loading       bool
	authenticated bool
	location      Location
	phase         Phase
	generation    uint64
	lastRedirect  string
	last          Decision
}

func NewGate(opts GateOptions) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = model.NopLogger{}
	}
	g := &Gate{
		flags:   opts.Flags,
		nav:     opts.Navigator,
		bus:     opts.Bus,
		logger:  logger,
		devlog:  opts.DevLog,
		loading: true,
		phase:   PhaseStabilizing,
	}
	if opts.MinVersion != "" && CompareVersions(opts.AppVersion, opts.MinVersion) < 0 {
		g.update = &ForceUpdate{
			AppVersion: opts.AppVersion,
			MinVersion: opts.MinVersion,
			UpdateURL:  opts.UpdateURL,
		}
		logger.Warn("app version %s is below minimum %s, forcing update", opts.AppVersion, opts.MinVersion)
	}
	g.last = Decision{Phase: PhaseStabilizing, View: ViewLoading, Location: Location(nil).String()}
	return g
}

// OnSessionChanged is the session:changed subscriber. It re-evaluates only
// when authentication or loading actually changed.
func (g *Gate) OnSessionChanged(s model.Session) {
	g.mu.Lock()
	changed := g.loading != s.Loading || g.authenticated != s.Authenticated
	g.loading = s.Loading
	g.authenticated = s.Authenticated
	g.mu.Unlock()

	if changed {
		g.Evaluate(context.Background())
	}
}

// SetLocation records where the app is now and re-evaluates.
func (g *Gate) SetLocation(loc Location) Decision {
	g.mu.Lock()
	g.location = append(Location(nil), loc...)
	g.mu.Unlock()
	return g.Evaluate(context.Background())
}

// Evaluate runs one pass of the gate. Nothing is decided while the session
// is loading.
func (g *Gate) Evaluate(ctx context.Context) Decision {
	g.mu.Lock()
	g.generation++
	gen := g.generation
	if g.loading {
		d := g.decisionLocked(Decision{Location: g.location.String()})
		g.mu.Unlock()
		return d
	}
	authenticated := g.authenticated
	g.mu.Unlock()

	var flags model.OnboardingFlags
	if !authenticated && g.flags != nil {
		flags = g.flags.OnboardingFlags(ctx)
	}

	g.mu.Lock()
	if gen != g.generation || g.loading {
		d := g.last
		g.mu.Unlock()
		g.logger.Debug("evaluation %d superseded, result discarded", gen)
		d.Superseded = true
		return d
	}

	loc := g.location
	target := Target(Inputs{
		Authenticated:         authenticated,
		IntroSlidesShown:      flags.IntroSlidesShown,
		PermissionPromptShown: flags.PermissionPromptShown,
	})
	d := Decision{Target: target, Location: loc.String(), Allowed: Allowed(target, loc)}

	var phaseChanged bool
	if d.Allowed {
		g.lastRedirect = ""
		if g.phase != PhaseReady {
			g.phase = PhaseReady
			phaseChanged = true
		}
	} else {
		key := string(target) + "|" + loc.String()
		if key != g.lastRedirect {
			g.lastRedirect = key
			d.Redirect = target.Route()
		}
	}
	d = g.decisionLocked(d)
	g.mu.Unlock()

	if phaseChanged {
		g.logger.Info("navigation stabilised at %s", d.Location)
		g.publish(eventbus.EventNavPhase, d)
	}
	if d.Redirect != "" {
		g.logger.Info("redirecting %s -> %s (target %s)", d.Location, d.Redirect, target)
		if g.devlog.Enabled() {
			g.devlog.Info(logging.ScopeNav, "redirect", map[string]any{
				"from":   d.Location,
				"to":     d.Redirect,
				"target": string(target),
			})
		}
		g.publish(eventbus.EventNavRedirect, eventbus.RedirectEventData{
			Target:   string(target),
			Location: d.Location,
			Route:    d.Redirect,
		})
		if g.nav != nil {
			g.nav.Replace(d.Redirect)
		}
	}
	return d
}

// decisionLocked fills in phase and view and remembers d as the latest.
func (g *Gate) decisionLocked(d Decision) Decision {
	d.Phase = g.phase
	switch {
	case g.loading:
		d.View = ViewLoading
	case g.update != nil:
		d.View = ViewForceUpdate
		u := *g.update
		d.Update = &u
	case g.phase == PhaseReady:
		d.View = ViewContent
	default:
		d.View = ViewLoading
	}
	g.last = d
	return d
}

// Current returns the latest decision without evaluating.
func (g *Gate) Current() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

func (g *Gate) publish(topic string, arg any) {
	if g.bus != nil {
		g.bus.PublishAsync(topic, arg)
	}
}
