package bridge

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	platformerrors "guardian-shell/internal/platform/errors"
)

func TestEncodeEnvelope(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	data, err := Encode(AuthToken{AccessToken: "tok", ExpiresAt: 42}, now)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	var env struct {
		Type      string         `json:"type"`
		Payload   map[string]any `json:"payload"`
		Timestamp int64          `json:"timestamp"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if env.Type != "AUTH_TOKEN" || env.Timestamp != now.UnixMilli() {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Payload["accessToken"] != "tok" {
		t.Fatalf("unexpected payload %+v", env.Payload)
	}
	if _, ok := env.Payload["refreshToken"]; ok {
		t.Fatal("empty refresh token should be omitted")
	}
}

func TestDecodeContentMessages(t *testing.T) {
	tests := []struct {
		raw   string
		check func(t *testing.T, msg Message)
	}{
		{
			`{"type":"NAVIGATE","payload":{"route":"/settings","params":{"tab":2}},"timestamp":1}`,
			func(t *testing.T, msg Message) {
				nav, ok := msg.(Navigate)
				if !ok || nav.Route != "/settings" || nav.Params["tab"] == nil {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
		{
			`{"type":"LOGOUT","payload":null,"timestamp":1}`,
			func(t *testing.T, msg Message) {
				if _, ok := msg.(Logout); !ok {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
		{
			`{"type":"SHARE","payload":{"message":"hi","url":"https://dongdong.io"},"timestamp":1}`,
			func(t *testing.T, msg Message) {
				share, ok := msg.(Share)
				if !ok || share.Message != "hi" || share.URL != "https://dongdong.io" {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
		{
			`{"type":"HAPTIC","payload":{"type":"success"},"timestamp":1}`,
			func(t *testing.T, msg Message) {
				if h, ok := msg.(Haptic); !ok || h.Type != "success" {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
		{
			`{"type":"ANALYTICS","payload":{"event":"tab_view","properties":{"tab":"home"}},"timestamp":1}`,
			func(t *testing.T, msg Message) {
				a, ok := msg.(Analytics)
				if !ok || a.Event != "tab_view" || a.Properties["tab"] != "home" {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
		{
			`{"type":"READY","payload":{},"timestamp":1}`,
			func(t *testing.T, msg Message) {
				if _, ok := msg.(Ready); !ok {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
		{
			`{"type":"NETWORK","payload":{"phase":"end","rid":"r-1","status":200},"timestamp":1}`,
			func(t *testing.T, msg Message) {
				n, ok := msg.(Network)
				if !ok || n.RID != "r-1" || n.Status != 200 {
					t.Fatalf("unexpected %#v", msg)
				}
			},
		},
	}

	for _, tt := range tests {
		msg, _, err := Decode([]byte(tt.raw))
		if err != nil {
			t.Fatalf("Decode(%s) error: %v", tt.raw, err)
		}
		tt.check(t, msg)
	}
}

func TestDecodeTimestamp(t *testing.T) {
	_, ts, err := Decode([]byte(`{"type":"READY","payload":{},"timestamp":1700000000000}`))
	if err != nil {
		t.Fatal(err)
	}
	if ts.UnixMilli() != 1_700_000_000_000 {
		t.Fatalf("unexpected timestamp %v", ts)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `hello`, "not a JSON object"},
		{"array", `[1,2]`, "not a JSON object"},
		{"missing type", `{"payload":{},"timestamp":1}`, `missing "type"`},
		{"missing payload", `{"type":"READY","timestamp":1}`, `missing "payload"`},
		{"missing timestamp", `{"type":"READY","payload":{}}`, `missing "timestamp"`},
		{"unknown type", `{"type":"SELF_DESTRUCT","payload":{},"timestamp":1}`, "unknown message type"},
		{"host tag from content", `{"type":"AUTH_TOKEN","payload":{"accessToken":"x"},"timestamp":1}`, "unknown message type"},
		{"numeric type", `{"type":7,"payload":{},"timestamp":1}`, "non-empty string"},
		{"bad payload", `{"type":"NAVIGATE","payload":"oops","timestamp":1}`, "invalid NAVIGATE payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !platformerrors.IsKind(err, platformerrors.KindMessageParse) {
				t.Fatalf("expected message_parse, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestScripts(t *testing.T) {
	if BeforeContentLoadedScript("") != ClearTokenScript() {
		t.Fatal("no token should clear a leftover content token")
	}
	script := BeforeContentLoadedScript(`to"ken`)
	for _, want := range []string{`localStorage.setItem("accessToken", "to\"ken")`, `new Event("dd-auth-token")`} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %s:\n%s", want, script)
		}
	}

	if !strings.Contains(ClearTokenScript(), `localStorage.removeItem("accessToken")`) {
		t.Fatal("clear script must remove the token")
	}

	post := PostMessageScript([]byte(`{"type":"APP_STATE"}`))
	if !strings.Contains(post, `window.postMessage("{\"type\":\"APP_STATE\"}", '*')`) {
		t.Fatalf("unexpected post script:\n%s", post)
	}
}
