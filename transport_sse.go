package stepwire

import (
	"fmt"
	"net/http"
	"sync"
)

// sseTransport wraps an http.ResponseWriter for SSE output.
type sseTransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
	done    chan struct{} // closed when the SSE stream ends
}

func newSSETransport(w http.ResponseWriter, flusher http.Flusher) *sseTransport {
	return &sseTransport{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
}

// Send writes an encoded frame and flushes eagerly so the client observes
// low-latency incremental progress.
func (t *sseTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

// sendComment sends an SSE comment (used for keep-alive). Comment frames
// are skipped by the decoder and never surface as events.
func (t *sseTransport) sendComment(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	fmt.Fprintf(t.w, ": %s\n\n", text)
	t.flusher.Flush()
}
