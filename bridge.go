package stepwire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"
)

// OutcomeKind classifies the terminal result of one task run. Every task
// ends in exactly one of these.
type OutcomeKind int

const (
	// OutcomeCompleted means all steps ran and the server sent complete.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeServerCancelled means the server acknowledged cancellation
	// and reported the step it stopped at.
	OutcomeServerCancelled
	// OutcomeLocallyAborted means this client aborted the connection
	// before any terminal event arrived.
	OutcomeLocallyAborted
	// OutcomeTransportError means the connection failed or ended without
	// a terminal event.
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeServerCancelled:
		return "cancelled by server"
	case OutcomeLocallyAborted:
		return "locally aborted"
	case OutcomeTransportError:
		return "transport error"
	}
	return "unknown"
}

// Outcome is the terminal result of one task run.
type Outcome struct {
	Kind OutcomeKind
	// Step is the step the server stopped at, for OutcomeServerCancelled.
	Step int
	// Err is the underlying failure, for OutcomeTransportError.
	Err error
}

// TaskHandle represents one in-flight task owned by a bridge.
type TaskHandle struct {
	taskID     string
	abort      context.CancelFunc
	cancelSent atomic.Bool
	done       chan struct{}
	outcome    Outcome
}

// TaskID returns the server-assigned task ID.
func (h *TaskHandle) TaskID() string { return h.taskID }

// Done returns a channel closed when the task reaches a terminal state.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Outcome returns the terminal result. Valid only after Done is closed.
func (h *TaskHandle) Outcome() Outcome { return h.outcome }

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithHTTPClient sets a custom HTTP client for streaming and cancellation.
func WithHTTPClient(client *http.Client) BridgeOption {
	return func(b *Bridge) {
		b.httpClient = client
	}
}

// WithBridgeLogger sets the bridge's logger.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithCancelTimeout bounds how long Cancel waits for the cancel request
// before falling back to aborting the connection.
func WithCancelTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.cancelTimeout = d
	}
}

// Bridge starts tasks against a stepwire server and propagates
// cancellation into the in-flight connection. At most one task is active
// per bridge; Begin while one is running is rejected with
// ErrAlreadyRunning rather than superseding it.
type Bridge struct {
	baseURL       string
	httpClient    *http.Client
	logger        *slog.Logger
	cancelTimeout time.Duration

	mu     sync.Mutex
	active *TaskHandle
}

// NewBridge creates a bridge for the given server base URL.
func NewBridge(baseURL string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // No timeout for streaming connections
		},
		logger:        slog.Default(),
		cancelTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Begin establishes a new connection, starts the named task, and returns a
// live handle. Events and the close notification are dispatched to handler
// from a background goroutine, in wire order. The handle is cleared
// automatically when the task reaches any terminal state.
func (b *Bridge) Begin(ctx context.Context, task string, handler StreamHandler) (*TaskHandle, error) {
	reqCtx, abort := context.WithCancel(ctx)
	handle := &TaskHandle{
		abort: abort,
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.active != nil {
		b.mu.Unlock()
		abort()
		return nil, ErrAlreadyRunning
	}
	b.active = handle
	b.mu.Unlock()

	fail := func(err error) (*TaskHandle, error) {
		b.clear(handle)
		abort()
		return nil, err
	}

	url := b.baseURL + "/stream"
	if task != "" {
		url += "?task=" + task
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fail(newTransportError("request", err))
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fail(newTransportError("connect", err))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return fail(newTransportError("connect",
			fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))))
	}

	handle.taskID = resp.Header.Get(TaskIDHeader)
	go b.consume(reqCtx, resp.Body, handle, handler)
	return handle, nil
}

// consume drives the receiver until the stream ends, then records the
// outcome and clears the handle.
func (b *Bridge) consume(ctx context.Context, body io.ReadCloser, handle *TaskHandle, handler StreamHandler) {
	defer body.Close()

	bh := &bridgeHandler{next: handler}
	NewReceiver(bh).Run(ctx, body)

	handle.outcome = bh.outcome()
	b.clear(handle)
	close(handle.done)
	b.logger.Debug("task ended", "id", handle.taskID, "outcome", handle.outcome.Kind.String())
}

// Cancel requests cancellation of the active task. Idempotent: with no
// active task, or called twice, it has no further effect.
//
// The out-of-band cancel endpoint is tried first so the server can
// acknowledge over the still-open stream with a cancelled event. If that
// request fails, the connection is aborted instead, which surfaces to the
// handler as a local abort.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	handle := b.active
	b.mu.Unlock()
	if handle == nil || !handle.cancelSent.CompareAndSwap(false, true) {
		return
	}

	if err := b.postCancel(handle.taskID); err != nil {
		b.logger.Warn("cancel request failed, aborting connection", "id", handle.taskID, "err", err)
		handle.abort()
	}
}

func (b *Bridge) postCancel(taskID string) error {
	payload, err := json.Marshal(cancelRequestBody{TaskID: taskID})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cancelTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/cancel", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// Active reports whether a task is currently in flight.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != nil
}

func (b *Bridge) clear(handle *TaskHandle) {
	b.mu.Lock()
	if b.active == handle {
		b.active = nil
	}
	b.mu.Unlock()
}

// bridgeHandler forwards events to the caller's handler while recording
// the terminal outcome.
type bridgeHandler struct {
	next     StreamHandler
	terminal *Event
	reason   CloseReason
	err      error
}

func (h *bridgeHandler) HandleEvent(ev Event) {
	if ev.Terminal() && h.terminal == nil {
		term := ev
		h.terminal = &term
	}
	h.next.HandleEvent(ev)
}

func (h *bridgeHandler) HandleClose(reason CloseReason, err error) {
	h.reason = reason
	h.err = err
	h.next.HandleClose(reason, err)
}

func (h *bridgeHandler) outcome() Outcome {
	if h.terminal != nil {
		if h.terminal.Type == EventCancelled {
			return Outcome{Kind: OutcomeServerCancelled, Step: h.terminal.Step}
		}
		return Outcome{Kind: OutcomeCompleted}
	}
	switch h.reason {
	case CloseLocalAbort:
		return Outcome{Kind: OutcomeLocallyAborted}
	case CloseTransportError:
		return Outcome{Kind: OutcomeTransportError, Err: h.err}
	default:
		// Stream ended with no terminal event: an abrupt end, handled by
		// the generic transport-failure path.
		return Outcome{Kind: OutcomeTransportError, Err: newTransportError("stream ended without terminal event", nil)}
	}
}
