package stepwire

// transport is the internal interface for server-side stream output.
// Both the SSE and WebSocket transports implement it. Send takes a fully
// encoded frame.
type transport interface {
	// Send writes one frame to the client. Must be safe for concurrent use.
	Send(frame []byte) error
	// Close closes the transport. Frames already accepted are delivered.
	Close() error
}
