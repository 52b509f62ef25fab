package stepwire

import (
	"context"
	"errors"
	"io"
)

// CloseReason tells the handler why the event stream ended.
type CloseReason int

const (
	// CloseEndOfStream means the server closed the stream normally.
	CloseEndOfStream CloseReason = iota
	// CloseLocalAbort means this client deliberately aborted the
	// connection. Never surfaced as an error.
	CloseLocalAbort
	// CloseTransportError means the connection failed.
	CloseTransportError
)

func (r CloseReason) String() string {
	switch r {
	case CloseEndOfStream:
		return "end of stream"
	case CloseLocalAbort:
		return "locally aborted"
	case CloseTransportError:
		return "transport error"
	}
	return "unknown"
}

// StreamHandler receives decoded events and the final close notification.
// Events arrive in wire order, one at a time, on the receiver's goroutine.
type StreamHandler interface {
	HandleEvent(ev Event)
	HandleClose(reason CloseReason, err error)
}

// HandlerFuncs adapts plain functions to a StreamHandler. Nil fields are
// ignored.
type HandlerFuncs struct {
	OnEvent func(ev Event)
	OnClose func(reason CloseReason, err error)
}

func (h HandlerFuncs) HandleEvent(ev Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (h HandlerFuncs) HandleClose(reason CloseReason, err error) {
	if h.OnClose != nil {
		h.OnClose(reason, err)
	}
}

// Receiver reassembles frames from a raw byte stream and dispatches decoded
// events to a handler. It keeps the unconsumed remainder between reads, so
// frames split at arbitrary chunk boundaries decode identically to frames
// arriving whole.
type Receiver struct {
	handler StreamHandler
	buf     []byte
}

// NewReceiver creates a receiver dispatching to the given handler.
func NewReceiver(handler StreamHandler) *Receiver {
	return &Receiver{handler: handler}
}

// Feed appends one chunk and dispatches every complete frame it now holds.
// Malformed frames are consumed silently.
func (r *Receiver) Feed(chunk []byte) {
	r.buf = append(r.buf, chunk...)
	for {
		ev, n := DecodeFrame(r.buf)
		if n == 0 {
			return
		}
		r.buf = r.buf[n:]
		if ev != nil {
			r.handler.HandleEvent(*ev)
		}
	}
}

// Run reads chunks from rd until the stream ends, then dispatches exactly
// one close notification. A read failure while ctx is cancelled is
// reported as a local abort rather than a transport error, so the caller
// can tell its own cancellation apart from a genuine failure.
func (r *Receiver) Run(ctx context.Context, rd io.Reader) {
	chunk := make([]byte, 512)
	for {
		n, err := rd.Read(chunk)
		if n > 0 {
			r.Feed(chunk[:n])
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, io.EOF):
			r.handler.HandleClose(CloseEndOfStream, nil)
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			r.handler.HandleClose(CloseLocalAbort, nil)
		default:
			r.handler.HandleClose(CloseTransportError, newTransportError("read", err))
		}
		return
	}
}
