// Package config loads and serves the analyst-agent catalogue: which
// agents exist, which stage and LLM provider each is bound to, and which
// ones are currently enabled.
//
// The engine is config-first: the catalogue is a JSON document on disk and
// the runtime builds AgentRunners from it. A second, smaller JSON document
// tracks the mutable part of that configuration (the selected profile and
// any per-agent overrides) so it can be read back and edited independently
// of the (effectively read-only) catalogue.
package config

import "fmt"

// Priority expresses how an agent's failure affects the session's terminal
// status (§4.6 of the scheduler contract).
type Priority string

const (
	PriorityCore      Priority = "core"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityCore, PriorityImportant, PriorityOptional:
		return true
	default:
		return false
	}
}

// ProviderBinding names the LLM provider, model, and generation parameters
// bound to a single agent.
type ProviderBinding struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// EvidenceBinding names one reference-data fetcher an agent consults before
// its LLM call, along with the label used when the result is rendered into
// the prompt and an optional transformer applied to the raw payload.
type EvidenceBinding struct {
	ProviderKey   string `json:"provider_key"`
	Label         string `json:"label"`
	TransformerID string `json:"transformer_id,omitempty"`
}

// AgentSpec is the immutable, load-time description of one analyst agent.
// Instances are owned exclusively by the Registry; callers receive
// read-only references.
type AgentSpec struct {
	ID               string            `json:"id"`
	Role             string            `json:"role"`
	Stage            int               `json:"stage"`
	ProviderBinding  ProviderBinding   `json:"provider_binding"`
	SystemPrompt     string            `json:"system_prompt"`
	Priority         Priority          `json:"priority"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	EvidenceBindings []EvidenceBinding `json:"evidence_bindings,omitempty"`
	Enabled          bool              `json:"enabled"`
}

// Document is the top-level catalogue schema loaded from disk (§4.1).
type Document struct {
	Agents       []AgentSpec                `json:"agents"`
	Profiles     map[string]map[string]bool `json:"profiles"`
	ProviderKeys map[string]string          `json:"provider_keys"`
}

// State is the small, frequently-rewritten document tracking the active
// profile and any sparse per-agent overrides on top of it (§6).
type State struct {
	SelectedProfile string                     `json:"selectedProfile"`
	Overrides       map[string]bool            `json:"overrides"`
	Profiles        map[string]map[string]bool `json:"profiles"`
}

func (s *State) ensureMaps() {
	if s.Overrides == nil {
		s.Overrides = make(map[string]bool)
	}
	if s.Profiles == nil {
		s.Profiles = make(map[string]map[string]bool)
	}
}

// ConfigWriteError wraps a failure to persist the state document. The prior
// on-disk state is left intact.
type ConfigWriteError struct {
	Path string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("config: failed to write %s: %v", e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error { return e.Err }

// InvariantViolation is returned when a requested change would break a
// load-time or runtime invariant (e.g. disabling a core agent).
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "config: invariant violation: " + e.Reason
}
