package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/eventbus"
	platformerrors "guardian-shell/internal/platform/errors"
)

type (
	// Session re-exports the shared session snapshot for callers.
	Session = model.Session
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

const defaultLoginTimeout = 30 * time.Second

// Backend is the slice of the backend API the session lifecycle needs.
// Refresh must not pass through the request gateway.
type Backend interface {
	Login(ctx context.Context, creds model.Credentials) (model.TokenPair, *model.User, error)
	SocialLogin(ctx context.Context, provider, providerToken string) (model.TokenPair, *model.User, error)
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
}

// Publisher receives session:changed events.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Tokens       *TokenStore
	Backend      Backend
	Providers    *ProviderRegistry
	Bus          Publisher
	Logger       Logger
	LoginTimeout time.Duration
}

// Manager owns the session state machine and is its only writer. Every
// transition is persisted before it is published.
type Manager struct {
	tokens       *TokenStore
	backend      Backend
	providers    *ProviderRegistry
	bus          Publisher
	logger       Logger
	loginTimeout time.Duration

	mu      sync.RWMutex
	session model.Session

	// commitMu orders Logout against refresh results; logouts counts
	// completed Logout calls so a refresh can tell it was overtaken.
	commitMu sync.Mutex
	logouts  uint64

	refreshGroup singleflight.Group
	now          func() time.Time
}

// NewManager wires a Manager in the initial SigningIn/loading state.
func NewManager(opts Options) (*Manager, error) {
	if opts.Tokens == nil {
		return nil, errors.New("session manager requires a token store")
	}
	if opts.Backend == nil {
		return nil, errors.New("session manager requires a backend")
	}
	if opts.Logger == nil {
		opts.Logger = model.NopLogger{}
	}
	if opts.Providers == nil {
		opts.Providers = NewProviderRegistry()
	}
	timeout := opts.LoginTimeout
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}

	m := &Manager{
		tokens:       opts.Tokens,
		backend:      opts.Backend,
		providers:    opts.Providers,
		bus:          opts.Bus,
		logger:       opts.Logger,
		loginTimeout: timeout,
		now:          time.Now,
	}
	m.session = model.Session{
		State:            model.StateSigningIn,
		Loading:          true,
		AutoLoginEnabled: true,
		UpdatedAt:        m.now(),
	}
	return m, nil
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copySession()
}

// AccessToken returns the token the gateway should attach.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.AccessToken
}

func (m *Manager) copySession() model.Session {
	s := m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// update applies fn under the lock and publishes the resulting snapshot
// after releasing it, so subscribers may call Snapshot.
func (m *Manager) update(fn func(s *model.Session)) model.Session {
	m.mu.Lock()
	fn(&m.session)
	m.session.Authenticated = m.session.State == model.StateSignedIn ||
		m.session.State == model.StateRefreshing
	m.session.UpdatedAt = m.now()
	snap := m.copySession()
	m.mu.Unlock()

	m.logger.Debug("session state=%s authenticated=%t loading=%t",
		snap.State, snap.Authenticated, snap.Loading)
	if m.bus != nil {
		m.bus.Publish(eventbus.EventSessionChanged, snap)
	}
	return snap
}

func signedOut(s *model.Session) {
	s.State = model.StateSignedOut
	s.User = nil
	s.AccessToken = ""
	s.RefreshToken = ""
	s.Loading = false
}

// CheckAuth resolves the boot-time session from storage. It always leaves
// Loading false; unreadable storage counts as absent.
func (m *Manager) CheckAuth(ctx context.Context) model.Session {
	m.update(func(s *model.Session) { s.Loading = true })

	autoLogin := m.tokens.AutoLoginEnabled(ctx)
	if !autoLogin {
		m.logger.Info("auto-login disabled, starting signed out")
		return m.update(func(s *model.Session) {
			signedOut(s)
			s.AutoLoginEnabled = false
		})
	}

	token := m.tokens.AccessToken(ctx)
	refresh := m.tokens.RefreshToken(ctx)
	user := m.tokens.User(ctx)

	switch {
	case token != "" && user != nil:
		m.logger.Info("restored persisted session for user %s", user.ID)
		return m.update(func(s *model.Session) {
			s.State = model.StateSignedIn
			s.AccessToken = token
			s.RefreshToken = refresh
			s.User = user
			s.Loading = false
			s.AutoLoginEnabled = true
		})
	case refresh != "":
		m.logger.Info("only a refresh token is stored, attempting refresh")
		m.update(func(s *model.Session) { s.AutoLoginEnabled = true })
		ok, err := m.RefreshAuth(ctx)
		if err != nil {
			m.logger.Warn("boot refresh failed: %v", err)
		}
		if !ok {
			return m.update(signedOut)
		}
		return m.Snapshot()
	default:
		return m.update(func(s *model.Session) {
			signedOut(s)
			s.AutoLoginEnabled = true
		})
	}
}

// Login exchanges email/password credentials for a session.
func (m *Manager) Login(ctx context.Context, creds model.Credentials) error {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return platformerrors.New(platformerrors.KindAuth, "session.login", "email and password are required")
	}
	return m.signIn(ctx, "session.login", func(ctx context.Context) (model.TokenPair, *model.User, error) {
		tokens, user, err := m.backend.Login(ctx, creds)
		if err == nil && user != nil && user.Provider == "" {
			user.Provider = model.ProviderEmail
		}
		return tokens, user, err
	})
}

// SocialLogin obtains a provider token and exchanges it with the backend.
// Unsupported or unregistered providers fail before any state change.
func (m *Manager) SocialLogin(ctx context.Context, provider model.Provider) error {
	p, err := m.providers.Resolve(provider)
	if err != nil {
		return err
	}
	wire, _ := BackendProviderName(p.Name())

	return m.signIn(ctx, "session.social_login", func(ctx context.Context) (model.TokenPair, *model.User, error) {
		providerToken, err := p.AccessToken(ctx)
		if err != nil {
			var perr *ProviderError
			if errors.As(err, &perr) {
				return model.TokenPair{}, nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.TokenPair{}, nil, ctxErr
			}
			return model.TokenPair{}, nil, &ProviderError{
				Provider: p.Name(),
				Message:  "could not obtain an access token",
				Cause:    err,
			}
		}
		if providerToken == "" {
			return model.TokenPair{}, nil, &ProviderError{Provider: p.Name(), Message: "provider returned no access token"}
		}

		tokens, user, err := m.backend.SocialLogin(ctx, wire, providerToken)
		if err == nil && user != nil {
			user.Provider = p.Name()
		}
		return tokens, user, err
	})
}

func (m *Manager) signIn(
	ctx context.Context,
	op string,
	exchange func(ctx context.Context) (model.TokenPair, *model.User, error),
) error {
	m.mu.RLock()
	prev := m.session.State
	m.mu.RUnlock()

	m.update(func(s *model.Session) { s.Loading = true })

	ctx, cancel := context.WithTimeout(ctx, m.loginTimeout)
	defer cancel()

	tokens, user, err := exchange(ctx)
	if err == nil && (tokens.AccessToken == "" || tokens.RefreshToken == "" || user == nil) {
		err = platformerrors.New(platformerrors.KindHTTP, op, "malformed login response")
	}
	if err == nil {
		err = m.tokens.SaveSession(ctx, tokens, user)
		if err != nil {
			err = platformerrors.Wrap(platformerrors.KindStorage, op, "failed to persist session", err)
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = platformerrors.Reclassify(platformerrors.KindTimeout, op,
				fmt.Sprintf("login did not complete within %s", m.loginTimeout), err)
		}
		m.logger.Warn("%s failed: %v", op, err)
		m.update(func(s *model.Session) {
			s.State = prev
			s.Loading = false
		})
		return err
	}

	m.logger.Info("%s succeeded for user %s", op, user.ID)
	m.update(func(s *model.Session) {
		s.State = model.StateSignedIn
		s.AccessToken = tokens.AccessToken
		s.RefreshToken = tokens.RefreshToken
		s.User = user
		s.Loading = false
	})
	return nil
}

// RefreshAuth rotates the token pair using the stored refresh token.
// Concurrent calls share one backend request. It returns false with a nil
// error when there is no session to refresh, and false with a
// KindRefreshExhausted error once the session is gone: after a failed
// refresh, when a signed-in session has no refresh token, or when Logout
// ran while the request was in flight.
func (m *Manager) RefreshAuth(ctx context.Context) (bool, error) {
	v, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (m *Manager) refresh(ctx context.Context) (bool, error) {
	m.commitMu.Lock()
	epoch := m.logouts
	m.commitMu.Unlock()

	refreshToken := m.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		m.mu.RLock()
		refreshToken = m.session.RefreshToken
		m.mu.RUnlock()
	}
	if refreshToken == "" {
		m.mu.RLock()
		hasSession := m.session.AccessToken != ""
		m.mu.RUnlock()
		if !hasSession {
			return false, nil
		}
		m.logger.Warn("session has no refresh token, logging out")
		m.Logout(context.WithoutCancel(ctx))
		return false, platformerrors.New(platformerrors.KindRefreshExhausted, "session.refresh",
			"no refresh token for the current session")
	}

	m.mu.RLock()
	prev := m.session.State
	m.mu.RUnlock()
	if prev == model.StateSignedIn {
		m.update(func(s *model.Session) { s.State = model.StateRefreshing })
	}

	tokens, err := m.backend.Refresh(ctx, refreshToken)
	if err == nil && (tokens.AccessToken == "" || tokens.RefreshToken == "") {
		err = platformerrors.New(platformerrors.KindHTTP, "session.refresh", "malformed refresh response")
	}

	m.commitMu.Lock()
	if m.logouts != epoch {
		m.commitMu.Unlock()
		m.logger.Info("signed out during token refresh, discarding result")
		return false, platformerrors.New(platformerrors.KindRefreshExhausted, "session.refresh",
			"signed out while refreshing")
	}
	if err == nil {
		if saveErr := m.tokens.SaveTokens(ctx, tokens); saveErr != nil {
			err = platformerrors.Wrap(platformerrors.KindStorage, "session.refresh", "failed to persist tokens", saveErr)
		}
	}
	if err == nil {
		user := m.tokens.User(ctx)
		m.update(func(s *model.Session) {
			s.State = model.StateSignedIn
			s.AccessToken = tokens.AccessToken
			s.RefreshToken = tokens.RefreshToken
			if s.User == nil {
				s.User = user
			}
			s.Loading = false
		})
	}
	m.commitMu.Unlock()

	if err != nil {
		m.logger.Warn("token refresh failed, logging out: %v", err)
		m.Logout(context.WithoutCancel(ctx))
		return false, platformerrors.Reclassify(platformerrors.KindRefreshExhausted, "session.refresh",
			"session could not be refreshed", err)
	}
	m.logger.Info("access token refreshed")
	return true, nil
}

// Logout clears the session and its persisted tokens. The auto-login
// preference and onboarding flags survive. It never fails; storage errors
// are logged.
func (m *Manager) Logout(ctx context.Context) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.logouts++

	if err := m.tokens.ClearSession(ctx); err != nil {
		m.logger.Error("failed to clear persisted session: %v", err)
	}
	m.update(signedOut)
	m.logger.Info("signed out")
}

// SetAutoLogin persists the preference and mirrors it into the session.
func (m *Manager) SetAutoLogin(ctx context.Context, enabled bool) error {
	if err := m.tokens.SetAutoLogin(ctx, enabled); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session.set_auto_login", "failed to persist preference", err)
	}
	m.update(func(s *model.Session) { s.AutoLoginEnabled = enabled })
	return nil
}

// Tokens exposes the token store for flag reads by the navigation gate.
func (m *Manager) Tokens() *TokenStore {
	return m.tokens
}
