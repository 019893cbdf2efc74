package model

import "time"

// Provider names a login method. Only ProviderKakao is wired to a social SDK.
type Provider string

const (
	ProviderEmail Provider = "email"
	ProviderKakao Provider = "kakao"
)

// User is the signed-in account as persisted under auth_user.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Role     string   `json:"role,omitempty"`
	Provider Provider `json:"provider,omitempty"`
}

// State is the session lifecycle state.
type State string

const (
	StateSignedOut  State = "signed_out"
	StateSigningIn  State = "signing_in"
	StateSignedIn   State = "signed_in"
	StateRefreshing State = "refreshing"
)

// Session is a point-in-time copy of the host session.
// Authenticated holds exactly in StateSignedIn and StateRefreshing.
type Session struct {
	State            State     `json:"state"`
	User             *User     `json:"user,omitempty"`
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	Authenticated    bool      `json:"isAuthenticated"`
	Loading          bool      `json:"isLoading"`
	AutoLoginEnabled bool      `json:"autoLoginEnabled"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasToken reports whether an access token is held.
func (s Session) HasToken() bool {
	return s.AccessToken != ""
}

// Credentials are the email/password login inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is what the backend issues on login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// OnboardingFlags records which one-time prompts the user has finished.
// Both only ever move from false to true outside an explicit data wipe.
type OnboardingFlags struct {
	IntroSlidesShown      bool `json:"introSlidesShown"`
	PermissionPromptShown bool `json:"permissionPromptShown"`
}

// Logger provides the minimal logging contract required by the auth domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
