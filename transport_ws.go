package stepwire

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport wraps a WebSocket connection as a transport. Frames travel
// as text messages in the same wire format as the SSE stream, so the same
// decoder serves both.
type wsTransport struct {
	ws     *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newWSTransport(ws *websocket.Conn) *wsTransport {
	return &wsTransport{
		ws:   ws,
		send: make(chan []byte, 64),
	}
}

func (t *wsTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	select {
	case t.send <- frame:
		return nil
	default:
		return nil // Drop frame if buffer full
	}
}

// Close stops accepting frames. The write pump drains queued frames, sends
// a close frame, and closes the socket.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.send)
	}
	return nil
}

// readPump reads incoming messages and trips the signal on a cancel
// request. It returns when the client disconnects.
func (t *wsTransport) readPump(sig *Signal, decode func(data []byte) (incomingMessage, bool)) {
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, ok := decode(data)
		if !ok {
			continue
		}
		if msg.Type == incomingCancel {
			sig.Set()
		}
	}
}

// writePump writes queued frames to the WebSocket, then closes it.
func (t *wsTransport) writePump() {
	defer t.ws.Close()

	for frame := range t.send {
		if err := t.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	_ = t.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)
}
