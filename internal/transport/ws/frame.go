package ws

import "errors"

var errBadFrame = errors.New("malformed frame")

// Frame kinds sent to the page.
const (
	FrameInject      = "inject"
	FrameMessage     = "message"
	FrameLoad        = "load"
	FrameReload      = "reload"
	FrameShouldStart = "should_start_result"
)

// Frame kinds sent by the page.
const (
	FrameLoadStart = "load_start"
	FrameLoadEnd   = "load_end"
	FrameLoadError = "load_error"
	FrameNavState  = "nav_state"
	FrameRequest   = "should_start"
	FrameRetry     = "retry"
)

// Frame is one JSON text message on the page socket. Data carries a bridge
// envelope as a string, the same shape content hands to postMessage.
type Frame struct {
	Kind         string `json:"kind"`
	ID           string `json:"id,omitempty"`
	Script       string `json:"script,omitempty"`
	Data         string `json:"data,omitempty"`
	URL          string `json:"url,omitempty"`
	MainFrame    bool   `json:"mainFrame,omitempty"`
	CanGoBack    bool   `json:"canGoBack,omitempty"`
	CanGoForward bool   `json:"canGoForward,omitempty"`
	Allowed      bool   `json:"allowed,omitempty"`
	Error        string `json:"error,omitempty"`
}
