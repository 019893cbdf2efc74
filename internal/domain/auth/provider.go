package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"guardian-shell/internal/domain/auth/model"
)

// SocialProvider obtains a provider access token, usually through a native
// SDK consent flow that lives outside this process.
type SocialProvider interface {
	Name() model.Provider
	AccessToken(ctx context.Context) (string, error)
}

// ProviderError reports a provider that is unsupported, unregistered or
// returned no token. Message is shown to the user as-is.
type ProviderError struct {
	Provider model.Provider
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s login: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s login: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// supportedProviders lists providers the backend accepts on /auth/social.
var supportedProviders = map[model.Provider]string{
	model.ProviderKakao: "KAKAO",
}

// BackendProviderName maps a provider onto the backend's wire name.
func BackendProviderName(p model.Provider) (string, bool) {
	name, ok := supportedProviders[p]
	return name, ok
}

// ProviderRegistry holds the provider SDKs registered on this platform.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[model.Provider]SocialProvider
}

func NewProviderRegistry(providers ...SocialProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[model.Provider]SocialProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *ProviderRegistry) Register(p SocialProvider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Resolve returns the provider for name or a ProviderError explaining why
// it cannot be used.
func (r *ProviderRegistry) Resolve(name model.Provider) (SocialProvider, error) {
	name = model.Provider(strings.ToLower(string(name)))
	if _, ok := supportedProviders[name]; !ok {
		return nil, &ProviderError{
			Provider: name,
			Message:  "only kakao login is currently supported",
		}
	}

	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ProviderError{
			Provider: name,
			Message:  "provider SDK is not registered on this platform; check the native app key configuration",
		}
	}
	return p, nil
}

// StaticProvider returns a fixed token. It stands in for the native SDK in
// development shells and tests.
type StaticProvider struct {
	provider model.Provider
	token    string
}

func NewStaticProvider(provider model.Provider, token string) *StaticProvider {
	return &StaticProvider{provider: provider, token: token}
}

func (p *StaticProvider) Name() model.Provider {
	return p.provider
}

func (p *StaticProvider) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.token == "" {
		return "", &ProviderError{Provider: p.provider, Message: "provider returned no access token"}
	}
	return p.token, nil
}
