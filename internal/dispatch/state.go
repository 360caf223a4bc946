package dispatch

import (
	"fmt"
	"time"
)

// State is a step of query processing.
type State int

const (
	StateIdle State = iota
	StateBuildPrompt
	StateDecisionRequested
	StateRepairRequested
	StateDecisionParsed
	StateDecisionFallback
	StateInvoking
	StateInvokeOK
	StateInvokeFailed
	StateSynthesizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuildPrompt:
		return "build-prompt"
	case StateDecisionRequested:
		return "decision-requested"
	case StateRepairRequested:
		return "repair-requested"
	case StateDecisionParsed:
		return "decision-parsed"
	case StateDecisionFallback:
		return "decision-fallback"
	case StateInvoking:
		return "invoking"
	case StateInvokeOK:
		return "invoke-ok"
	case StateInvokeFailed:
		return "invoke-failed"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event reports a transition.
type Event struct {
	State   State
	Detail  string
	Err     error
	Elapsed time.Duration
}

// Observer receives transitions in order. It runs on the dispatching
// goroutine and must not block.
type Observer func(Event)

// Reporter buffers events on a channel for a consumer on another goroutine.
type Reporter struct {
	ch chan Event
}

// NewReporter creates a Reporter holding up to size pending events.
func NewReporter(size int) *Reporter {
	return &Reporter{ch: make(chan Event, size)}
}

// Emit queues ev, dropping it when the buffer is full. It has the
// Observer signature.
func (r *Reporter) Emit(ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// Subscribe returns the event channel.
func (r *Reporter) Subscribe() <-chan Event {
	return r.ch
}

// Close ends the subscription.
func (r *Reporter) Close() {
	close(r.ch)
}

// FormatEvent renders ev as a status line.
func FormatEvent(ev Event) string {
	switch ev.State {
	case StateDecisionFallback:
		return fmt.Sprintf("  ○ %s (answering without tools)", ev.State)
	case StateInvokeOK:
		return fmt.Sprintf("  ✓ %s %s (%s)", ev.State, ev.Detail, ev.Elapsed.Round(time.Millisecond))
	case StateInvokeFailed:
		return fmt.Sprintf("  ✗ %s %s: %v", ev.State, ev.Detail, ev.Err)
	case StateDone:
		return fmt.Sprintf("  ✓ %s (%s)", ev.State, ev.Elapsed.Round(time.Millisecond))
	default:
		if ev.Detail != "" {
			return fmt.Sprintf("  ● %s %s", ev.State, ev.Detail)
		}
		return fmt.Sprintf("  ● %s", ev.State)
	}
}
