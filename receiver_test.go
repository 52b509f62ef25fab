package stepwire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// recordingHandler collects dispatched events and the close notification.
type recordingHandler struct {
	events []Event
	closed bool
	reason CloseReason
	err    error
}

func (h *recordingHandler) HandleEvent(ev Event) {
	if h.closed {
		panic("event dispatched after close")
	}
	h.events = append(h.events, ev)
}

func (h *recordingHandler) HandleClose(reason CloseReason, err error) {
	h.closed = true
	h.reason = reason
	h.err = err
}

func encodeAll(t *testing.T, events ...Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		buf.Write(mustEncode(t, ev))
	}
	return buf.Bytes()
}

func TestReceiverPreservesWireOrder(t *testing.T) {
	wire := encodeAll(t,
		Event{Type: EventProgress, Step: 1, TotalSteps: 3},
		Event{Type: EventProgress, Step: 2, TotalSteps: 3},
		Event{Type: EventProgress, Step: 3, TotalSteps: 3},
		Event{Type: EventComplete},
	)

	h := &recordingHandler{}
	NewReceiver(h).Run(context.Background(), strings.NewReader(string(wire)))

	if len(h.events) != 4 {
		t.Fatalf("got %d events, want 4", len(h.events))
	}
	for i, ev := range h.events[:3] {
		if ev.Step != i+1 {
			t.Errorf("event %d: step %d, want %d", i, ev.Step, i+1)
		}
	}
	if !h.closed || h.reason != CloseEndOfStream {
		t.Errorf("close reason %v, want end of stream", h.reason)
	}
}

func TestReceiverTwoFramesSplitEverywhere(t *testing.T) {
	wire := encodeAll(t,
		Event{Type: EventProgress, Step: 1, TotalSteps: 2, Message: "step 1 of 2"},
		Event{Type: EventProgress, Step: 2, TotalSteps: 2, Message: "step 2 of 2"},
	)

	for split := 0; split <= len(wire); split++ {
		h := &recordingHandler{}
		rec := NewReceiver(h)
		rec.Feed(wire[:split])
		rec.Feed(wire[split:])

		if len(h.events) != 2 {
			t.Fatalf("split at %d: got %d events, want 2", split, len(h.events))
		}
		if h.events[0].Step != 1 || h.events[1].Step != 2 {
			t.Errorf("split at %d: steps %d,%d, want 1,2", split, h.events[0].Step, h.events[1].Step)
		}
	}
}

// errReader yields its payload then fails with err.
type errReader struct {
	r   io.Reader
	err error
}

func (e *errReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, e.err
	}
	return n, err
}

func TestReceiverTransportError(t *testing.T) {
	wire := encodeAll(t, Event{Type: EventProgress, Step: 1, TotalSteps: 10})
	cause := errors.New("connection reset")

	h := &recordingHandler{}
	NewReceiver(h).Run(context.Background(), &errReader{r: bytes.NewReader(wire), err: cause})

	if len(h.events) != 1 {
		t.Fatalf("got %d events, want 1", len(h.events))
	}
	if h.reason != CloseTransportError {
		t.Fatalf("close reason %v, want transport error", h.reason)
	}
	var te *TransportError
	if !errors.As(h.err, &te) {
		t.Errorf("close err %T, want *TransportError", h.err)
	}
	if !errors.Is(h.err, cause) {
		t.Errorf("close err %v does not wrap the cause", h.err)
	}
}

func TestReceiverLocalAbort(t *testing.T) {
	// A cancelled context turns the read failure into a local abort, not
	// a transport error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &recordingHandler{}
	NewReceiver(h).Run(ctx, &errReader{r: strings.NewReader(""), err: errors.New("request canceled")})

	if h.reason != CloseLocalAbort {
		t.Errorf("close reason %v, want local abort", h.reason)
	}
	if h.err != nil {
		t.Errorf("local abort carried error %v, want nil", h.err)
	}
}

func TestReceiverContextCanceledError(t *testing.T) {
	// Some transports surface context.Canceled directly even when the
	// receiver's own context looks alive.
	h := &recordingHandler{}
	NewReceiver(h).Run(context.Background(), &errReader{r: strings.NewReader(""), err: context.Canceled})

	if h.reason != CloseLocalAbort {
		t.Errorf("close reason %v, want local abort", h.reason)
	}
}
