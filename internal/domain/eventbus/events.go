package eventbus

import "time"

const (
	// EventSessionChanged carries a model.Session snapshot after every
	// session transition.
	EventSessionChanged = "session:changed"

	EventBridgeReady     = "bridge:ready"
	EventBridgeAnalytics = "bridge:analytics"
	EventBridgeAction    = "bridge:action"

	EventNavRedirect = "nav:redirect"
	EventNavPhase    = "nav:phase"

	EventWebViewState = "webview:state"
)

// AnalyticsEventData is a content analytics event handed to subscribers.
type AnalyticsEventData struct {
	Event      string                 `json:"event"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// ActionEventData describes a device action requested by content
// (camera, gallery, share, haptic).
type ActionEventData struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RedirectEventData records one navigation gate redirect.
type RedirectEventData struct {
	Target   string `json:"target"`
	Location string `json:"location"`
	Route    string `json:"route"`
}
