package bridge

// Tag is the envelope "type" field.
type Tag string

// Host to content.
const (
	TagAuthToken Tag = "AUTH_TOKEN"
	TagUserInfo  Tag = "USER_INFO"
	TagPushData  Tag = "PUSH_DATA"
	TagDeepLink  Tag = "DEEP_LINK"
	TagAppState  Tag = "APP_STATE"
)

// Content to host.
const (
	TagNavigate    Tag = "NAVIGATE"
	TagLogout      Tag = "LOGOUT"
	TagOpenCamera  Tag = "OPEN_CAMERA"
	TagOpenGallery Tag = "OPEN_GALLERY"
	TagShare       Tag = "SHARE"
	TagHaptic      Tag = "HAPTIC"
	TagAnalytics   Tag = "ANALYTICS"
	TagReady       Tag = "READY"
	TagNetwork     Tag = "NETWORK"
)

// Message is implemented only by the payload types in this package.
type Message interface {
	Tag() Tag
	bridgeMessage()
}

type AuthToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt is unix milliseconds.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

type PushData struct {
	Data map[string]any `json:"data"`
}

type DeepLink struct {
	URL    string            `json:"url"`
	Path   string            `json:"path"`
	Params map[string]string `json:"params,omitempty"`
}

// AppState values are active, background and inactive.
type AppState struct {
	State string `json:"state"`
}

type Navigate struct {
	Route  string         `json:"route"`
	Params map[string]any `json:"params,omitempty"`
}

type Logout struct{}

type OpenCamera struct{}

type OpenGallery struct{}

type Share struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

type Haptic struct {
	Type string `json:"type"`
}

type Analytics struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Ready struct{}

// Network is fetch/XHR telemetry forwarded by content. It is advisory only.
type Network struct {
	Phase      string `json:"phase"`
	RID        string `json:"rid,omitempty"`
	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	Status     int    `json:"status,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (AuthToken) Tag() Tag   { return TagAuthToken }
func (UserInfo) Tag() Tag    { return TagUserInfo }
func (PushData) Tag() Tag    { return TagPushData }
func (DeepLink) Tag() Tag    { return TagDeepLink }
func (AppState) Tag() Tag    { return TagAppState }
func (Navigate) Tag() Tag    { return TagNavigate }
func (Logout) Tag() Tag      { return TagLogout }
func (OpenCamera) Tag() Tag  { return TagOpenCamera }
func (OpenGallery) Tag() Tag { return TagOpenGallery }
func (Share) Tag() Tag       { return TagShare }
func (Haptic) Tag() Tag      { return TagHaptic }
func (Analytics) Tag() Tag   { return TagAnalytics }
func (Ready) Tag() Tag       { return TagReady }
func (Network) Tag() Tag     { return TagNetwork }

func (AuthToken) bridgeMessage()   {}
func (UserInfo) bridgeMessage()    {}
func (PushData) bridgeMessage()    {}
func (DeepLink) bridgeMessage()    {}
func (AppState) bridgeMessage()    {}
func (Navigate) bridgeMessage()    {}
func (Logout) bridgeMessage()      {}
func (OpenCamera) bridgeMessage()  {}
func (OpenGallery) bridgeMessage() {}
func (Share) bridgeMessage()       {}
func (Haptic) bridgeMessage()      {}
func (Analytics) bridgeMessage()   {}
func (Ready) bridgeMessage()       {}
func (Network) bridgeMessage()     {}
