package stepwire

import (
	"context"
	"fmt"
	"sync"

	"github.com/stepwire/stepwire/tasklog"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTaskName sets the server-side task definition the client starts.
// Defaults to the server's default task.
func WithTaskName(name string) ClientOption {
	return func(c *Client) {
		c.taskName = name
	}
}

// WithOnEntry registers a callback invoked for every appended log entry,
// from the receiver's goroutine, in dispatch order. Intended for the UI
// layer.
func WithOnEntry(fn func(tasklog.Entry)) ClientOption {
	return func(c *Client) {
		c.onEntry = fn
	}
}

// WithBridge replaces the client's bridge. Mainly for tests.
func WithBridge(b *Bridge) ClientOption {
	return func(c *Client) {
		c.bridge = b
	}
}

// Client is the user-facing operation surface: start a task, cancel it,
// and read or clear the append-only log. It owns a Bridge and a
// tasklog.Log and translates stream events into log entries.
type Client struct {
	bridge   *Bridge
	log      *tasklog.Log
	taskName string
	onEntry  func(tasklog.Entry)

	mu     sync.Mutex
	handle *TaskHandle
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		bridge: NewBridge(baseURL),
		log:    tasklog.NewLog(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartTask begins a new task run. It fails with ErrAlreadyRunning while
// one is active; a rejected start leaves the active run untouched.
func (c *Client) StartTask(ctx context.Context) error {
	run := &taskRun{c: c}
	handle, err := c.bridge.Begin(ctx, c.taskName, HandlerFuncs{
		OnEvent: run.event,
		OnClose: run.close,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	return nil
}

// CancelTask requests cancellation of the active task. No-op if none is
// active; idempotent otherwise.
func (c *Client) CancelTask() {
	c.bridge.Cancel()
}

// ClearLog empties the log. It fails with ErrTaskActive while a task is in
// flight, so a stale progress view is never observable.
func (c *Client) ClearLog() error {
	if c.bridge.Active() {
		return ErrTaskActive
	}
	c.log.Clear()
	return nil
}

// Log returns the client's task log.
func (c *Client) Log() *tasklog.Log {
	return c.log
}

// Active reports whether a task is currently in flight.
func (c *Client) Active() bool {
	return c.bridge.Active()
}

// Wait blocks until the current task reaches a terminal state and returns
// its outcome. Valid after a successful StartTask.
func (c *Client) Wait() Outcome {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle == nil {
		return Outcome{}
	}
	<-handle.Done()
	return handle.Outcome()
}

// taskRun holds per-run dispatch state. The receiver dispatches events and
// the close for one run from a single goroutine, so no locking is needed.
type taskRun struct {
	c           *Client
	sawTerminal bool
}

func (r *taskRun) event(ev Event) {
	if ev.Terminal() {
		r.sawTerminal = true
	}
	c := r.c
	var entry tasklog.Entry
	switch ev.Type {
	case EventProgress:
		entry = c.log.Append(string(ev.Type), ev.Step, ev.TotalSteps,
			fmt.Sprintf("Step %d/%d: %s", ev.Step, ev.TotalSteps, ev.Message))
	case EventComplete:
		entry = c.log.Append(string(ev.Type), 0, 0, "Task completed")
	case EventCancelled:
		entry = c.log.Append(string(ev.Type), ev.Step, ev.TotalSteps,
			fmt.Sprintf("Server stopped at step %d", ev.Step))
	default:
		return
	}
	c.notify(entry)
}

func (r *taskRun) close(reason CloseReason, err error) {
	c := r.c
	switch reason {
	case CloseLocalAbort:
		c.notify(c.log.Append("info", 0, 0, "Cancelled by user"))
	case CloseTransportError:
		c.notify(c.log.Append("error", 0, 0, fmt.Sprintf("Connection error: %v", err)))
	case CloseEndOfStream:
		// A stream that ends without a terminal event is an abrupt end
		// (server fault), reported through the generic failure path.
		if !r.sawTerminal {
			c.notify(c.log.Append("error", 0, 0, "Connection error: stream ended unexpectedly"))
		}
	}
}

func (c *Client) notify(entry tasklog.Entry) {
	if c.onEntry != nil {
		c.onEntry(entry)
	}
}
