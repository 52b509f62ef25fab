package stepwire

import (
	"context"
	"fmt"
	"time"
)

// Default task shape when a Definition leaves fields unset.
const (
	DefaultTotalSteps   = 10
	DefaultStepDuration = time.Second
)

// Definition describes one runnable task kind.
type Definition struct {
	// TotalSteps is the fixed number of work steps. Defaults to 10.
	TotalSteps int
	// StepDuration is the simulated duration of one step. Defaults to 1s.
	StepDuration time.Duration
	// Describe renders the progress message for a completed step.
	// Optional; a generic "step i of n" message is used when nil.
	Describe func(step, total int) string
	// Work, when set, runs after each step's wait. An error aborts the
	// run with no wire event; the transport surfaces the abrupt end.
	Work func(ctx context.Context, step int) error
}

func (d Definition) normalized() Definition {
	if d.TotalSteps <= 0 {
		d.TotalSteps = DefaultTotalSteps
	}
	if d.StepDuration <= 0 {
		d.StepDuration = DefaultStepDuration
	}
	return d
}

func (d Definition) describe(step int) string {
	if d.Describe != nil {
		return d.Describe(step, d.TotalSteps)
	}
	return fmt.Sprintf("step %d of %d", step, d.TotalSteps)
}

// EmitFunc receives each event produced by a run, in emission order.
type EmitFunc func(Event)

// Executor drives a task through its steps, cooperating with the
// cancellation signal at every step boundary.
type Executor struct {
	def Definition
	now func() time.Time
}

// NewExecutor creates an executor for the given definition, applying
// defaults to unset fields.
func NewExecutor(def Definition) *Executor {
	return &Executor{def: def.normalized(), now: time.Now}
}

// Run executes the task from step 1 to a terminal outcome.
//
// The signal is checked before each step, and the per-step wait itself is
// interrupted when the signal fires, so the run stops within one step
// duration of cancellation becoming visible. A fired signal yields exactly
// one cancelled event carrying the step that did not run; completion yields
// exactly one complete event after the last step. Nothing is emitted after
// either.
//
// Context cancellation means the peer is gone: the run stops with ctx.Err()
// and emits nothing. A Work error likewise aborts without an event.
func (e *Executor) Run(ctx context.Context, sig *Signal, emit EmitFunc) error {
	total := e.def.TotalSteps
	for step := 1; step <= total; step++ {
		if sig.Fired() {
			emit(e.cancelledEvent(step))
			return nil
		}

		timer := time.NewTimer(e.def.StepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-sig.Done():
			timer.Stop()
			emit(e.cancelledEvent(step))
			return nil
		case <-timer.C:
		}

		if e.def.Work != nil {
			if err := e.def.Work(ctx, step); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
		}

		emit(Event{
			Type:       EventProgress,
			Step:       step,
			TotalSteps: total,
			Message:    e.def.describe(step),
			Timestamp:  e.now(),
		})
	}

	emit(Event{
		Type:      EventComplete,
		Message:   fmt.Sprintf("all %d steps completed", total),
		Timestamp: e.now(),
	})
	return nil
}

func (e *Executor) cancelledEvent(step int) Event {
	return Event{
		Type:       EventCancelled,
		Step:       step,
		TotalSteps: e.def.TotalSteps,
		Timestamp:  e.now(),
	}
}
