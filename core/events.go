// core/events.go
package core

// The lifecycle event stream publishes one record per execution-request
// pipeline stage, in a fixed order: queued → started → (progress*) →
// completed|error. Publication is a Go channel.

// EventKind discriminates the lifecycle event record shapes on the
// gateway's output stream.
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventError     EventKind = "error"
)

// LifecycleEvent is one discriminated record on the event stream. Only
// the fields relevant to Kind are populated; the rest are zero.
type LifecycleEvent struct {
	Kind      EventKind
	RequestID string
	CID       CID

	Position      int    // queued
	ExecutorNode  string // started
	Progress      int    // progress, 0..100
	Message       string // progress

	Success   bool   // completed
	Duration  int64  // completed, milliseconds
	GasUsed   uint64 // completed

	Error     string    // error
	ErrorType ErrorType // error
}

// EventPublisher fans out lifecycle events for one in-flight request to a
// buffered channel. A gateway creates one per Submit call; the channel is
// closed once the terminal event (completed or error) has been sent.
type EventPublisher struct {
	ch     chan LifecycleEvent
	closed bool
}

// NewEventPublisher returns a publisher with a small buffer so a slow
// subscriber never blocks the pipeline stage emitting an event — the
// buffer is sized for this gateway's fixed per-request sequence (queued,
// started, a handful of progress events, one terminal event).
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{ch: make(chan LifecycleEvent, 8)}
}

// Events returns the read-only channel subscribers consume.
func (p *EventPublisher) Events() <-chan LifecycleEvent { return p.ch }

// Publish sends ev on the channel. It is a no-op after Close.
func (p *EventPublisher) Publish(ev LifecycleEvent) {
	if p.closed {
		return
	}
	p.ch <- ev
}

// Close closes the event channel. Callers must call it exactly once,
// after the terminal event (completed or error) has been published.
func (p *EventPublisher) Close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}
