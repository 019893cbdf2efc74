package bridge

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// TokenEvent is dispatched on window after the token mirror changes.
const TokenEvent = "dd-auth-token"

// ContentTokenKey is the localStorage key content reads the token from.
const ContentTokenKey = "accessToken"

func jsString(s string) string {
	out, err := sonic.MarshalString(s)
	if err != nil {
		return `""`
	}
	return out
}

// BeforeContentLoadedScript writes token into content storage before any
// content script runs. With no token it removes whatever an earlier session
// left behind.
func BeforeContentLoadedScript(token string) string {
	if token == "" {
		return ClearTokenScript()
	}
	return fmt.Sprintf(`(function() {
  try {
    localStorage.setItem(%s, %s);
    window.dispatchEvent(new Event(%s));
  } catch (e) {}
})();
true;`, jsString(ContentTokenKey), jsString(token), jsString(TokenEvent))
}

// ClearTokenScript removes the content token mirror.
func ClearTokenScript() string {
	return fmt.Sprintf(`(function() {
  try {
    localStorage.removeItem(%s);
    window.dispatchEvent(new Event(%s));
  } catch (e) {}
})();
true;`, jsString(ContentTokenKey), jsString(TokenEvent))
}

// PostMessageScript delivers an encoded envelope through window.postMessage.
func PostMessageScript(envelope []byte) string {
	return fmt.Sprintf(`(function() {
  window.postMessage(%s, '*');
})();
true;`, jsString(string(envelope)))
}
