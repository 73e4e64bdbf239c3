package core

import "testing"

func TestAgentRecord_TransitionSetsStatus(t *testing.T) {
	r := &AgentRecord{AgentID: "quote", Status: StatusIdle}
	r.Transition(StatusFetchingEvidence, nil)
	if r.StatusLocked() != StatusFetchingEvidence {
		t.Fatalf("expected StatusFetchingEvidence, got %v", r.StatusLocked())
	}
}

func TestAgentRecord_TransitionRunsMutate(t *testing.T) {
	r := &AgentRecord{AgentID: "quote", Status: StatusIdle}
	r.Transition(StatusSuccess, func(r *AgentRecord) {
		r.OutputText = "bullish"
	})
	snap := r.Snapshot()
	if snap.OutputText != "bullish" || snap.Status != StatusSuccess {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestAgentRecord_ReentryAfterTerminalPanics(t *testing.T) {
	r := &AgentRecord{AgentID: "quote", Status: StatusIdle}
	r.Transition(StatusSuccess, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on re-entry after terminal status")
		}
	}()
	r.Transition(StatusError, nil)
}

func TestAgentStatus_Terminal(t *testing.T) {
	terminal := []AgentStatus{StatusSuccess, StatusError, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %v to be terminal", s)
		}
	}
	nonTerminal := []AgentStatus{StatusIdle, StatusFetchingEvidence, StatusAssembling, StatusAwaitingBudget, StatusCallingLLM, StatusTimeout, StatusRefused}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %v to be non-terminal", s)
		}
	}
}
