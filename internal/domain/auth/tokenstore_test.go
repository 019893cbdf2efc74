package auth

import (
	"context"
	"errors"
	"testing"

	"guardian-shell/internal/domain/auth/model"
	"guardian-shell/internal/domain/auth/store"
)

// failingStore returns errors for every call so degrade-to-absent paths
// can be exercised.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStore) Set(context.Context, string, string) error         { return f.err }
func (f failingStore) Remove(context.Context, string) error              { return f.err }
func (f failingStore) Keys(context.Context) ([]string, error)            { return nil, f.err }

func TestTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(store.NewMemory(store.Config{}), nil)

	user := &model.User{ID: "42", Name: "Kim", Provider: model.ProviderKakao}
	if err := ts.SaveSession(ctx, model.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, user); err != nil {
		t.Fatalf("SaveSession error: %v", err)
	}

	if got := ts.AccessToken(ctx); got != "a1" {
		t.Fatalf("AccessToken = %q", got)
	}
	if got := ts.RefreshToken(ctx); got != "r1" {
		t.Fatalf("RefreshToken = %q", got)
	}
	got := ts.User(ctx)
	if got == nil || got.ID != "42" || got.Provider != model.ProviderKakao {
		t.Fatalf("User = %+v", got)
	}
}

func TestTokenStoreAutoLoginDefault(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(store.Config{})
	ts := NewTokenStore(kv, nil)

	tests := []struct {
		stored string
		set    bool
		want   bool
	}{
		{set: false, want: true},
		{stored: "true", set: true, want: true},
		{stored: "false", set: true, want: false},
		{stored: "0", set: true, want: true},
		{stored: "garbage", set: true, want: true},
	}
	for _, tt := range tests {
		_ = kv.Remove(ctx, KeyAutoLogin)
		if tt.set {
			_ = kv.Set(ctx, KeyAutoLogin, tt.stored)
		}
		if got := ts.AutoLoginEnabled(ctx); got != tt.want {
			t.Errorf("stored=%q AutoLoginEnabled() = %v, want %v", tt.stored, got, tt.want)
		}
	}
}

func TestTokenStoreOnboardingFlagsAcceptLegacyValues(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(store.Config{})
	ts := NewTokenStore(kv, nil)

	_ = kv.Set(ctx, KeyIntroSlidesShown, "1")
	flags := ts.OnboardingFlags(ctx)
	if !flags.IntroSlidesShown || flags.PermissionPromptShown {
		t.Fatalf("unexpected flags %+v", flags)
	}

	if err := ts.MarkPermissionPromptShown(ctx); err != nil {
		t.Fatalf("MarkPermissionPromptShown error: %v", err)
	}
	if raw, _, _ := kv.Get(ctx, KeyPermissionPromptDone); raw != "true" {
		t.Fatalf("flag written as %q, want true", raw)
	}
}

func TestTokenStoreClearSessionKeepsPreferences(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(store.Config{})
	ts := NewTokenStore(kv, nil)

	_ = ts.SaveSession(ctx, model.TokenPair{AccessToken: "a", RefreshToken: "r"}, &model.User{ID: "1"})
	_ = ts.SetAutoLogin(ctx, false)
	_ = ts.MarkIntroSlidesShown(ctx)
	_ = ts.MarkPermissionPromptShown(ctx)

	if err := ts.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession error: %v", err)
	}

	if ts.AccessToken(ctx) != "" || ts.RefreshToken(ctx) != "" || ts.User(ctx) != nil {
		t.Fatal("session keys should be removed")
	}
	if ts.AutoLoginEnabled(ctx) {
		t.Fatal("auto-login preference must survive ClearSession")
	}
	flags := ts.OnboardingFlags(ctx)
	if !flags.IntroSlidesShown || !flags.PermissionPromptShown {
		t.Fatalf("onboarding flags must survive ClearSession: %+v", flags)
	}

	if err := ts.WipeAll(ctx); err != nil {
		t.Fatalf("WipeAll error: %v", err)
	}
	if f := ts.OnboardingFlags(ctx); f.IntroSlidesShown || f.PermissionPromptShown {
		t.Fatal("WipeAll should reset onboarding flags")
	}
}

func TestTokenStoreReadFailuresDegradeToAbsent(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("keychain unavailable")
	ts := NewTokenStore(failingStore{err: boom}, nil)

	if ts.AccessToken(ctx) != "" || ts.User(ctx) != nil {
		t.Fatal("failed reads should be absent")
	}
	if !ts.AutoLoginEnabled(ctx) {
		t.Fatal("failed auto-login read should fall back to enabled")
	}
	if err := ts.ClearSession(ctx); !errors.Is(err, boom) {
		t.Fatalf("ClearSession should join remove errors, got %v", err)
	}
}

func TestTokenStoreUndecodableUserIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(store.Config{})
	_ = kv.Set(ctx, KeyUser, "{not json")
	if NewTokenStore(kv, nil).User(ctx) != nil {
		t.Fatal("undecodable user should read as absent")
	}
}
