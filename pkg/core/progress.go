package core

import "log/slog"

// EventType names the kind of progress event: an agent's started,
// evidence_ready and terminal events, plus the three coordinator-level
// milestones (§4.8).
type EventType string

const (
	EventAgentStarted       EventType = "started"
	EventAgentEvidenceReady EventType = "evidence_ready"
	EventAgentCompleted     EventType = "completed"
	EventAgentFailed        EventType = "failed"
	EventAgentCancelled     EventType = "cancelled"
	EventStageStarted       EventType = "stage_started"
	EventStageCompleted     EventType = "stage_completed"
	EventSessionCompleted   EventType = "session_completed"
)

// Event is one progress emission. Not every field applies to every Type:
// AgentID/Record are set for agent-scoped events, Stage for stage-scoped
// ones, Aggregate only on EventSessionCompleted.
type Event struct {
	Type      EventType
	SessionID string
	AgentID   string
	Stage     int
	Record    *AgentRecord
	Aggregate *SessionAggregate
}

// SessionAggregate is the terminal, client-facing summary of one session.
type SessionAggregate struct {
	Status  TerminalStatus
	Records map[string]AgentRecord
}

// TerminalStatus is the session-wide outcome computed per §4.6.
type TerminalStatus string

const (
	TerminalSuccess   TerminalStatus = "success"
	TerminalPartial   TerminalStatus = "partial"
	TerminalError     TerminalStatus = "error"
	TerminalCancelled TerminalStatus = "cancelled"
)

// ProgressSink receives events from a running session. Emit must be
// non-blocking or bounded (§5): a slow sink must never stall the scheduler.
type ProgressSink interface {
	Emit(Event)
}

// BoundedSink is a channel-backed ProgressSink that drops the oldest
// non-terminal event when its buffer is full, and never drops a terminal
// one. It is the in-process default; an HTTP handler drains Events() and
// forwards each as a newline-delimited JSON line.
type BoundedSink struct {
	events chan Event
}

// NewBoundedSink builds a sink with the given buffer size.
func NewBoundedSink(capacity int) *BoundedSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &BoundedSink{events: make(chan Event, capacity)}
}

func isTerminalEvent(e Event) bool {
	switch e.Type {
	case EventAgentCompleted, EventAgentFailed, EventAgentCancelled, EventSessionCompleted:
		return true
	default:
		return false
	}
}

// Emit enqueues e, dropping the oldest buffered non-terminal event to make
// room if the buffer is full and e itself is not required to block.
func (s *BoundedSink) Emit(e Event) {
	select {
	case s.events <- e:
		return
	default:
	}

	if isTerminalEvent(e) {
		// Never silently drop a terminal event: make room by evicting one
		// buffered event, preferring the oldest non-terminal one. If every
		// buffered event happens to be terminal, evict the oldest anyway —
		// the sink's job is to never block the scheduler.
		select {
		case old := <-s.events:
			if isTerminalEvent(old) {
				slog.Warn("progress sink evicting a terminal event under backpressure", "type", old.Type)
			}
		default:
		}
		select {
		case s.events <- e:
		default:
			slog.Warn("progress sink dropped event after eviction attempt", "type", e.Type)
		}
		return
	}

	select {
	case old := <-s.events:
		slog.Debug("progress sink dropped oldest buffered event under backpressure", "dropped_type", old.Type)
	default:
	}
	select {
	case s.events <- e:
	default:
	}
}

// Events returns the channel consumers drain. Closed by Close.
func (s *BoundedSink) Events() <-chan Event {
	return s.events
}

// Close signals no further events will be emitted.
func (s *BoundedSink) Close() {
	close(s.events)
}
