package stepwire

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultTaskName is the definition used when a stream request names none.
const DefaultTaskName = "default"

// TaskIDHeader carries the server-assigned task ID on the stream response,
// so the client can correlate an out-of-band cancel request.
const TaskIDHeader = "X-Task-Id"

// ServerOptions configures the server behavior.
type ServerOptions struct {
	// Logger receives structured request and event logs. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// Interceptor, when set, observes every outbound event.
	Interceptor EventInterceptor
	// CheckOrigin, when set, gates WebSocket upgrades by request origin.
	// Defaults to allowing all origins.
	CheckOrigin func(r *http.Request) bool
}

// Server serves cancellable step tasks over SSE and WebSocket.
//
// Routes (relative to the mount point):
//
//	GET  /stream?task=<name>  start a task, stream events until terminal
//	GET  /ws?task=<name>      the same stream over a WebSocket connection
//	POST /cancel              {"taskId": "..."}  request cancellation
//
// Each stream request runs one task; the task's state lives only for the
// duration of the connection. Nothing is shared between tasks except the
// definition table.
type Server struct {
	defs     map[string]Definition
	sessions map[string]*session
	mu       sync.RWMutex
	logger   *slog.Logger
	intc     EventInterceptor
	upgrader websocket.Upgrader
}

// session is the ephemeral per-connection task state: an ID and the
// cancellation signal. It is registered while the task runs and removed
// when the stream closes.
type session struct {
	id     string
	signal *Signal
}

// NewServer creates a server with no registered tasks.
func NewServer(opts ...ServerOptions) *Server {
	s := &Server{
		defs:     make(map[string]Definition),
		sessions: make(map[string]*session),
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins by default
			},
		},
	}
	if len(opts) > 0 {
		if opts[0].Logger != nil {
			s.logger = opts[0].Logger
		}
		s.intc = opts[0].Interceptor
		if opts[0].CheckOrigin != nil {
			s.upgrader.CheckOrigin = opts[0].CheckOrigin
		}
	}
	return s
}

// RegisterTask registers a task definition under the given name,
// replacing any previous definition with that name.
func (s *Server) RegisterTask(name string, def Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[name] = def.normalized()
}

// SetCheckOrigin sets the origin check function for the WebSocket upgrader.
// It is not synchronized with in-flight upgrades: call it before the server
// starts accepting connections, or set ServerOptions.CheckOrigin instead.
func (s *Server) SetCheckOrigin(f func(r *http.Request) bool) {
	s.upgrader.CheckOrigin = f
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && (r.URL.Path == "/stream" || r.URL.Path == "" || r.URL.Path == "/"):
		s.handleStream(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/ws":
		s.handleWS(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/cancel":
		s.handleCancel(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) lookupTask(r *http.Request) (string, Definition, bool) {
	name := r.URL.Query().Get("task")
	if name == "" {
		name = DefaultTaskName
	}
	s.mu.RLock()
	def, ok := s.defs[name]
	s.mu.RUnlock()
	return name, def, ok
}

func (s *Server) registerSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) unregisterSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	name, def, ok := s.lookupTask(r)
	if !ok {
		http.Error(w, ErrUnknownTask.Error()+": "+name, http.StatusNotFound)
		return
	}

	taskID := uuid.NewString()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(TaskIDHeader, taskID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess := &session{id: taskID, signal: NewSignal()}
	s.registerSession(sess)
	defer s.unregisterSession(taskID)

	s.logger.Info("task started", "task", name, "id", taskID, "steps", def.TotalSteps)

	sseT := newSSETransport(w, flusher)
	sseT.sendComment("stream open")

	tx := NewTransmitter(sseT, taskID, s.intc)
	if err := NewExecutor(def).Run(r.Context(), sess.signal, tx.Send); err != nil {
		// Executor fault or peer disconnect: close the stream without a
		// terminal event.
		tx.Abort()
		s.logger.Warn("task aborted", "task", name, "id", taskID, "err", err)
		return
	}
	s.logger.Info("task finished", "task", name, "id", taskID, "cancelled", sess.signal.Fired())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name, def, ok := s.lookupTask(r)
	if !ok {
		http.Error(w, ErrUnknownTask.Error()+": "+name, http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	taskID := uuid.NewString()
	sess := &session{id: taskID, signal: NewSignal()}
	s.registerSession(sess)
	defer s.unregisterSession(taskID)

	s.logger.Info("task started", "task", name, "id", taskID, "transport", "ws")

	wsT := newWSTransport(ws)
	go wsT.writePump()

	// The request context does not observe disconnects once the
	// connection is hijacked for WebSocket; the read pump exiting is the
	// disconnect signal.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		wsT.readPump(sess.signal, decodeIncoming)
		cancel()
	}()

	tx := NewTransmitter(wsT, taskID, s.intc)
	if err := NewExecutor(def).Run(ctx, sess.signal, tx.Send); err != nil {
		tx.Abort()
		s.logger.Warn("task aborted", "task", name, "id", taskID, "err", err)
		return
	}
	s.logger.Info("task finished", "task", name, "id", taskID, "cancelled", sess.signal.Fired())
}

func decodeIncoming(data []byte) (incomingMessage, bool) {
	var msg incomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return incomingMessage{}, false
	}
	return msg, true
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequestBody
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	sess, ok := s.sessions[req.TaskID]
	s.mu.RUnlock()

	// Cancellation is idempotent: a task that already finished (or never
	// existed) is not an error for the caller.
	if ok {
		sess.signal.Set()
		s.logger.Info("cancel requested", "id", req.TaskID)
	}
	w.WriteHeader(http.StatusOK)
}

// ActiveTasks returns the number of tasks currently streaming.
func (s *Server) ActiveTasks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
