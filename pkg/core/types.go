// Package core holds the domain types shared across the orchestration
// pipeline: the session's view of a stock, the evidence gathered for an
// agent, and the per-agent record a session owns exclusively.
package core

import (
	"sync"
	"time"
)

// StockContext is the immutable per-session snapshot of the symbol under
// analysis. Extra is an opaque bag the PromptBuilder formats verbatim,
// letting new evidence providers attach fields without a schema change here.
type StockContext struct {
	Symbol string
	Name   string
	Quote  Quote
	Extra  map[string]string
}

// Quote preserves source formatting by keeping every field a string rather
// than normalising to a numeric type the caller would have to re-format.
type Quote struct {
	Price  string
	Open   string
	High   string
	Low    string
	Change string
}

// EvidenceSource is one labelled, counted reference-data result.
type EvidenceSource struct {
	Label   string
	Count   int
	Sample  string
	Note    string
	Payload any
}

// EvidenceBundle is the ordered, read-only result of collecting evidence for
// one agent. Order matches the spec's evidenceBindings order regardless of
// which provider answered first.
type EvidenceBundle struct {
	Sources []EvidenceSource
}

// AgentStatus is one node in the AgentRunner state machine (§4.5).
type AgentStatus string

const (
	StatusIdle             AgentStatus = "idle"
	StatusFetchingEvidence AgentStatus = "fetching_evidence"
	StatusAssembling       AgentStatus = "assembling"
	StatusAwaitingBudget   AgentStatus = "awaiting_budget"
	StatusCallingLLM       AgentStatus = "calling_llm"
	StatusSuccess          AgentStatus = "success"
	StatusTimeout          AgentStatus = "timeout"
	StatusRefused          AgentStatus = "refused"
	StatusError            AgentStatus = "error"
	StatusCancelled        AgentStatus = "cancelled"
)

// Terminal reports whether status ends the agent's state machine.
func (s AgentStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrorKind is the observable, user-visible taxonomy from §7. It is distinct
// from llm.ErrorKind: this one also covers session- and config-level
// failures that never reach the LLM dispatch path.
type ErrorKind string

const (
	ErrNoStockData        ErrorKind = "NoStockData"
	ErrAuthMissing        ErrorKind = "AuthMissing"
	ErrTimeout            ErrorKind = "Timeout"
	ErrProviderRefused    ErrorKind = "ProviderRefused"
	ErrTokenLimitExceeded ErrorKind = "TokenLimitExceeded"
	ErrCancelled          ErrorKind = "Cancelled"
	ErrConfigWriteError   ErrorKind = "ConfigWriteError"
	ErrInvariantViolation ErrorKind = "InvariantViolation"
)

// AgentRecord is mutated by exactly one AgentRunner; every field access goes
// through its mutex so the coordinator's reads after the owning runner's
// terminal write are properly synchronised (§5's "memory-ordered store").
type AgentRecord struct {
	mu sync.RWMutex

	AgentID        string
	Status         AgentStatus
	Attempt        int
	StartedAt      time.Time
	EndedAt        time.Time
	PromptChars    int
	OutputText     string
	ErrorKind      ErrorKind
	ErrorMessage   string
	ProviderCode   string
	EvidenceBundle EvidenceBundle
}

// Transition moves the record to status, running mutate (if non-nil) under
// the same lock so callers can update related fields atomically with the
// status change. Re-entry after a terminal status is a programming error:
// Transition panics rather than silently corrupting a published record.
func (r *AgentRecord) Transition(status AgentStatus, mutate func(*AgentRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status.Terminal() {
		panic("core: AgentRecord re-entered after terminal status " + string(r.Status))
	}
	r.Status = status
	if mutate != nil {
		mutate(r)
	}
}

// Update mutates fields without changing Status, for bookkeeping (e.g.
// recording PromptChars) that happens inside a state rather than between
// two states. Forbidden once the record is terminal, for the same reason
// Transition forbids re-entry.
func (r *AgentRecord) Update(mutate func(*AgentRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status.Terminal() {
		panic("core: AgentRecord updated after terminal status " + string(r.Status))
	}
	mutate(r)
}

// Snapshot returns a value copy of the record, safe to read without racing
// the owning runner's in-flight Transition.
func (r *AgentRecord) Snapshot() AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return AgentRecord{
		AgentID:        r.AgentID,
		Status:         r.Status,
		Attempt:        r.Attempt,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		PromptChars:    r.PromptChars,
		OutputText:     r.OutputText,
		ErrorKind:      r.ErrorKind,
		ErrorMessage:   r.ErrorMessage,
		ProviderCode:   r.ProviderCode,
		EvidenceBundle: r.EvidenceBundle,
	}
}

// StatusLocked returns the current status under a read lock, for callers
// that only need the status.
func (r *AgentRecord) StatusLocked() AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Elapsed returns the wall time spent on the agent once it has ended.
func (r *AgentRecord) Elapsed() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
