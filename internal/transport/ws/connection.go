package ws

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Connection wraps a gorilla websocket connection to one content page. It
// is both the bridge surface and the webview controller for that page.
type Connection struct {
	id         string
	socket     *websocket.Conn
	mu         sync.Mutex
	closed     atomic.Bool
	lastActive atomic.Int64
}

// NewConnection creates a tracked websocket connection.
func NewConnection(id string, socket *websocket.Conn) *Connection {
	conn := &Connection{
		id:     id,
		socket: socket,
	}
	conn.touch()
	return conn
}

// WriteFrame encodes f and sends it as one text message.
func (c *Connection) WriteFrame(f Frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Kind, err)
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// WriteMessage sends a message to the client.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, c.id)
	}

	_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.socket.WriteMessage(messageType, data); err != nil {
		return err
	}

	c.touch()
	return nil
}

// ReadFrame blocks for the next frame from the page.
func (c *Connection) ReadFrame() (Frame, error) {
	var f Frame
	_, payload, err := c.socket.ReadMessage()
	if err != nil {
		return f, err
	}
	c.touch()
	if err := sonic.Unmarshal(payload, &f); err != nil {
		return f, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return f, nil
}

// InjectJavaScript asks the page to evaluate script.
func (c *Connection) InjectJavaScript(script string) error {
	return c.WriteFrame(Frame{Kind: FrameInject, Script: script})
}

// PostMessage delivers a bridge envelope to the page.
func (c *Connection) PostMessage(envelope []byte) error {
	return c.WriteFrame(Frame{Kind: FrameMessage, Data: string(envelope)})
}

// Load tells the page to navigate to url, running script first.
func (c *Connection) Load(url, script string) error {
	return c.WriteFrame(Frame{Kind: FrameLoad, URL: url, Script: script})
}

// Reload reloads the current document, running script first.
func (c *Connection) Reload(script string) error {
	return c.WriteFrame(Frame{Kind: FrameReload, Script: script})
}

// Close terminates the underlying websocket connection.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// GetID returns the session identifier.
func (c *Connection) GetID() string {
	return c.id
}

// LastActive is when the page last sent or received a frame.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}
