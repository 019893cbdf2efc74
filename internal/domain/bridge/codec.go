package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	platformerrors "guardian-shell/internal/platform/errors"
)

// Envelope is the wire form shared by both directions.
type Envelope struct {
	Type      Tag   `json:"type"`
	Payload   any   `json:"payload"`
	Timestamp int64 `json:"timestamp"`
}

// Encode wraps msg in an envelope stamped with now in unix milliseconds.
func Encode(msg Message, now time.Time) ([]byte, error) {
	data, err := sonic.Marshal(Envelope{
		Type:      msg.Tag(),
		Payload:   msg,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindMessageParse, "bridge.encode",
			fmt.Sprintf("encode %s", msg.Tag()), err)
	}
	return data, nil
}

// inbound lists the tags content may send, each with a decoder.
var inbound = map[Tag]func(json.RawMessage) (Message, error){
	TagNavigate:    decodeInto[Navigate],
	TagLogout:      func(json.RawMessage) (Message, error) { return Logout{}, nil },
	TagOpenCamera:  func(json.RawMessage) (Message, error) { return OpenCamera{}, nil },
	TagOpenGallery: func(json.RawMessage) (Message, error) { return OpenGallery{}, nil },
	TagShare:       decodeInto[Share],
	TagHaptic:      decodeInto[Haptic],
	TagAnalytics:   decodeInto[Analytics],
	TagReady:       func(json.RawMessage) (Message, error) { return Ready{}, nil },
	TagNetwork:     decodeInto[Network],
}

func decodeInto[T Message](raw json.RawMessage) (Message, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses one content message. The envelope must carry type, payload
// and timestamp, and type must be a content-to-host tag; anything else is a
// KindMessageParse error.
func Decode(raw []byte) (Message, time.Time, error) {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		return nil, time.Time{}, parseError("envelope is not a JSON object", err)
	}
	for _, name := range []string{"type", "payload", "timestamp"} {
		if _, ok := fields[name]; !ok {
			return nil, time.Time{}, parseError(fmt.Sprintf("envelope is missing %q", name), nil)
		}
	}

	var tag Tag
	if err := sonic.Unmarshal(fields["type"], &tag); err != nil || tag == "" {
		return nil, time.Time{}, parseError("envelope type must be a non-empty string", err)
	}
	decode, ok := inbound[tag]
	if !ok {
		return nil, time.Time{}, parseError(fmt.Sprintf("unknown message type %q", tag), nil)
	}

	var ts time.Time
	var ms float64
	if err := sonic.Unmarshal(fields["timestamp"], &ms); err == nil && ms > 0 {
		ts = time.UnixMilli(int64(ms))
	}

	msg, err := decode(fields["payload"])
	if err != nil {
		return nil, ts, parseError(fmt.Sprintf("invalid %s payload", tag), err)
	}
	return msg, ts, nil
}

func parseError(msg string, cause error) error {
	if cause == nil {
		return platformerrors.New(platformerrors.KindMessageParse, "bridge.decode", msg)
	}
	return platformerrors.Wrap(platformerrors.KindMessageParse, "bridge.decode", msg, cause)
}
