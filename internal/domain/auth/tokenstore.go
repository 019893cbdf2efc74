package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/auth/store"
)

// Storage keys shared with earlier app releases.
const (
	KeyAccessToken          = "auth_token"
	KeyRefreshToken         = "refresh_token"
	KeyUser                 = "auth_user"
	KeyAutoLogin            = "auto_login_enabled"
	KeyIntroSlidesShown     = "onboarding_slides_complete"
	KeyPermissionPromptDone = "onboarding_complete"
)

// TokenStore is the typed view over the secure store. Reads never fail:
// backend errors are logged and reported as absent.
type TokenStore struct {
	kv     store.Store
	logger Logger
}

func NewTokenStore(kv store.Store, logger Logger) *TokenStore {
	if logger == nil {
		logger = model.NopLogger{}
	}
	return &TokenStore{kv: kv, logger: logger}
}

func (s *TokenStore) get(ctx context.Context, key string) string {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("secure store read %s failed, treating as absent: %v", key, err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *TokenStore) AccessToken(ctx context.Context) string {
	return s.get(ctx, KeyAccessToken)
}

func (s *TokenStore) RefreshToken(ctx context.Context) string {
	return s.get(ctx, KeyRefreshToken)
}

// User decodes the persisted user; an undecodable blob reads as absent.
func (s *TokenStore) User(ctx context.Context) *model.User {
	raw := s.get(ctx, KeyUser)
	if raw == "" {
		return nil
	}
	var u model.User
	if err := sonic.UnmarshalString(raw, &u); err != nil {
		s.logger.Warn("stored user is not decodable, treating as absent: %v", err)
		return nil
	}
	return &u
}

// AutoLoginEnabled defaults to true; only the exact value "false" disables it.
func (s *TokenStore) AutoLoginEnabled(ctx context.Context) bool {
	return s.get(ctx, KeyAutoLogin) != "false"
}

func (s *TokenStore) OnboardingFlags(ctx context.Context) model.OnboardingFlags {
	return model.OnboardingFlags{
		IntroSlidesShown:      parseFlag(s.get(ctx, KeyIntroSlidesShown)),
		PermissionPromptShown: parseFlag(s.get(ctx, KeyPermissionPromptDone)),
	}
}

// parseFlag accepts the legacy "1" alongside "true".
func parseFlag(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || v == "true"
}

// SaveSession persists the token pair and user. Callers publish the new
// session only after this returns nil.
func (s *TokenStore) SaveSession(ctx context.Context, tokens model.TokenPair, user *model.User) error {
	if err := s.SaveTokens(ctx, tokens); err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	blob, err := sonic.MarshalString(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyUser, blob); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

func (s *TokenStore) SaveTokens(ctx context.Context, tokens model.TokenPair) error {
	if err := s.kv.Set(ctx, KeyAccessToken, tokens.AccessToken); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.kv.Set(ctx, KeyRefreshToken, tokens.RefreshToken); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

func (s *TokenStore) SetAutoLogin(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return s.kv.Set(ctx, KeyAutoLogin, v)
}

func (s *TokenStore) MarkIntroSlidesShown(ctx context.Context) error {
	return s.kv.Set(ctx, KeyIntroSlidesShown, "true")
}

func (s *TokenStore) MarkPermissionPromptShown(ctx context.Context) error {
	return s.kv.Set(ctx, KeyPermissionPromptDone, "true")
}

// ClearSession removes the token pair and user. Preferences and onboarding
// flags stay. Every key is attempted; the joined error is returned.
func (s *TokenStore) ClearSession(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		if err := s.kv.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// WipeAll removes every key in the namespace, onboarding flags included.
// It backs the explicit "clear all data" action only.
func (s *TokenStore) WipeAll(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	var errs []error
	for _, key := range keys {
		if err := s.kv.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Stats passes through the backend's debug information.
func (s *TokenStore) Stats(ctx context.Context) (map[string]any, error) {
	return s.kv.Stats(ctx)
}
