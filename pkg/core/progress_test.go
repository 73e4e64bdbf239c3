package core

import "testing"

func TestBoundedSink_NeverDropsTerminalEvent(t *testing.T) {
	sink := NewBoundedSink(2)
	sink.Emit(Event{Type: EventAgentStarted, AgentID: "a"})
	sink.Emit(Event{Type: EventAgentStarted, AgentID: "b"})
	sink.Emit(Event{Type: EventAgentCompleted, AgentID: "c"})

	var sawTerminal bool
	for i := 0; i < 2; i++ {
		e := <-sink.Events()
		if e.Type == EventAgentCompleted {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Fatal("expected the terminal event to survive buffer pressure")
	}
}

func TestBoundedSink_DeliversUnderCapacity(t *testing.T) {
	sink := NewBoundedSink(4)
	sink.Emit(Event{Type: EventStageStarted, Stage: 1})
	sink.Emit(Event{Type: EventStageCompleted, Stage: 1})

	first := <-sink.Events()
	second := <-sink.Events()
	if first.Type != EventStageStarted || second.Type != EventStageCompleted {
		t.Fatalf("expected in-order delivery, got %v then %v", first.Type, second.Type)
	}
}
