package stepwire

import (
	"sync"
	"sync/atomic"
)

// Signal is the one-shot cancellation latch shared between the inbound
// cancel path and the step executor. It transitions false to true at most
// once and never resets. One writer, any number of readers.
type Signal struct {
	fired atomic.Bool
	once  sync.Once
	done  chan struct{}
}

// NewSignal returns an unfired signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set trips the signal. Calling it again has no further effect.
func (s *Signal) Set() {
	s.once.Do(func() {
		s.fired.Store(true)
		close(s.done)
	})
}

// Fired reports whether the signal has been set.
func (s *Signal) Fired() bool {
	return s.fired.Load()
}

// Done returns a channel that is closed when the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
