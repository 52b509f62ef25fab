package stepwire

// Transmitter frames executor events and writes them to a transport in
// emission order, closing the transport after a terminal event.
type Transmitter struct {
	tr          transport
	taskID      string
	interceptor EventInterceptor
	done        bool
	failed      bool
}

// NewTransmitter creates a transmitter writing to tr.
func NewTransmitter(tr transport, taskID string, interceptor EventInterceptor) *Transmitter {
	return &Transmitter{tr: tr, taskID: taskID, interceptor: interceptor}
}

// Send frames and writes one event. After a terminal event, or after a
// write failure, further sends are silently ignored: a write error means
// the peer disconnected and is not a reportable condition. Send is called
// from the executor's goroutine only.
func (t *Transmitter) Send(ev Event) {
	if t.done || t.failed {
		return
	}
	if t.interceptor != nil {
		t.interceptor(t.taskID, ev)
	}
	frame, err := EncodeFrame(ev)
	if err != nil {
		// Never put a corrupt frame on the wire.
		return
	}
	if err := t.tr.Send(frame); err != nil {
		t.failed = true
		return
	}
	if ev.Terminal() {
		t.done = true
		t.tr.Close()
	}
}

// Abort closes the transport without a terminal event. Used when the
// executor faults; the client observes an abrupt stream end.
func (t *Transmitter) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.tr.Close()
}
