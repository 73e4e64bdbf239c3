package core

import (
	"sync"
	"time"
)

// Session owns one analysis run: its stock context, the enabled spec
// snapshot it was started with, and the AgentRecords its runners populate.
// Records has exactly one writer per key (the runner for that agentId); the
// coordinator only reads a record after the owning runner has published its
// terminal status, synchronised by the embedded mutex.
type Session struct {
	ID           string
	StockContext StockContext
	CreatedAt    time.Time
	EndedAt      time.Time
	Terminal     TerminalStatus

	mu      sync.RWMutex
	records map[string]*AgentRecord
}

// NewSession creates a session with one empty AgentRecord per agent id in
// agentIDs, all starting StatusIdle.
func NewSession(id string, stock StockContext, agentIDs []string) *Session {
	records := make(map[string]*AgentRecord, len(agentIDs))
	for _, id := range agentIDs {
		records[id] = &AgentRecord{AgentID: id, Status: StatusIdle}
	}
	return &Session{ID: id, StockContext: stock, CreatedAt: timeNow(), records: records}
}

// timeNow exists so tests can be deterministic if ever needed; production
// code always calls the real clock.
var timeNow = time.Now

// Record returns the record handle for agentID. The returned pointer is
// owned by that agent's runner; other callers must treat it as read-only
// unless they hold the mutex via Snapshot.
func (s *Session) Record(agentID string) (*AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[agentID]
	return r, ok
}

// DependencyOutputs resolves priorOutputs for one agent's declared
// dependencies, snapshotted at that agent's assembling transition (§5). A
// dependency that never ran this session (disabled by override or profile)
// is omitted entirely rather than reported as unavailable — there is no
// record to read. A dependency that ran and succeeded contributes its final
// text; one that ran and did not succeed contributes an empty string, which
// PromptBuilder renders as an explicit "(upstream unavailable)" marker
// (§4.5's failure-propagation rule).
func (s *Session) DependencyOutputs(dependencies []string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, id := range dependencies {
		r, ok := s.records[id]
		if !ok {
			continue
		}
		snap := r.Snapshot()
		if snap.Status == StatusSuccess {
			out[id] = snap.OutputText
		} else {
			out[id] = ""
		}
	}
	return out
}

// Snapshot returns a shallow copy of every record for client-facing
// aggregation; safe to call concurrently with in-flight runners.
func (s *Session) Snapshot() map[string]AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]AgentRecord, len(s.records))
	for id, r := range s.records {
		out[id] = r.Snapshot()
	}
	return out
}

// End marks the session ended with the given terminal status.
func (s *Session) End(status TerminalStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndedAt = timeNow()
	s.Terminal = status
}
