package config

import (
	"log/slog"
	"sync"
)

// Registry owns the AgentSpec catalogue and the mutable overrides/profile
// state layered on top of it. It is read-mostly: reads never block behind
// other reads, and writes (profile saves) are serialised by an internal
// lock (§5).
type Registry struct {
	docPath   string
	statePath string

	mu    sync.RWMutex
	doc   *Document
	state *State
}

// NewRegistry loads the catalogue at docPath and the overrides/profile
// state at statePath (created lazily on first save if absent).
func NewRegistry(docPath, statePath string) (*Registry, error) {
	doc, err := LoadDocument(docPath)
	if err != nil {
		return nil, err
	}
	state, err := LoadState(statePath)
	if err != nil {
		return nil, err
	}

	r := &Registry{docPath: docPath, statePath: statePath, doc: doc, state: state}
	if err := r.enforceCoreEnabled(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the catalogue document from disk, replacing the current
// one on success. The mutable state is untouched.
func (r *Registry) Reload() error {
	doc, err := LoadDocument(r.docPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
	return nil
}

// List returns every loaded AgentSpec, in catalogue order.
func (r *Registry) List() []AgentSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentSpec, len(r.doc.Agents))
	copy(out, r.doc.Agents)
	return out
}

// Get returns one spec by id.
func (r *Registry) Get(id string) (AgentSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.doc.Agents {
		if s.ID == id {
			return s, true
		}
	}
	return AgentSpec{}, false
}

// CredentialHandle returns the environment variable name bound to provider,
// or "" if none is configured.
func (r *Registry) CredentialHandle(provider string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.ProviderKeys[provider]
}

// EnabledFor resolves the enabled set for the currently selected profile,
// sparsely patched by overrides (nil to apply no additional patch). core
// agents are always included regardless of profile or override content.
func (r *Registry) EnabledFor(overrides map[string]bool) []AgentSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := r.resolveEnabledLocked(overrides)

	out := make([]AgentSpec, 0, len(r.doc.Agents))
	for _, s := range r.doc.Agents {
		s.Enabled = enabled[s.ID]
		out = append(out, s)
	}
	return out
}

// resolveEnabledLocked merges, in priority order: the catalogue's own
// Enabled flags, the selected profile, the persisted sparse overrides, and
// finally the caller-supplied overrides patch. core agents always win.
func (r *Registry) resolveEnabledLocked(requestOverrides map[string]bool) map[string]bool {
	enabled := make(map[string]bool, len(r.doc.Agents))
	for _, s := range r.doc.Agents {
		enabled[s.ID] = s.Enabled
	}

	if profile, ok := r.doc.Profiles[r.state.SelectedProfile]; ok {
		for id, v := range profile {
			enabled[id] = v
		}
	}
	if profile, ok := r.state.Profiles[r.state.SelectedProfile]; ok {
		for id, v := range profile {
			enabled[id] = v
		}
	}
	for id, v := range r.state.Overrides {
		enabled[id] = v
	}
	for id, v := range requestOverrides {
		enabled[id] = v
	}

	for _, s := range r.doc.Agents {
		if s.Priority == PriorityCore {
			enabled[s.ID] = true
		}
	}
	return enabled
}

// ApplyProfile switches the selected profile and persists the change.
func (r *Registry) ApplyProfile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doc.Profiles[name]; !ok {
		if _, ok := r.state.Profiles[name]; !ok {
			return &InvariantViolation{Reason: "unknown profile " + name}
		}
	}

	prev := r.state.SelectedProfile
	r.state.SelectedProfile = name
	if err := saveState(r.statePath, r.state); err != nil {
		r.state.SelectedProfile = prev
		return err
	}
	return nil
}

// SaveOverrides merges patch into the persisted overrides and writes the
// state document atomically. core agents can never be disabled this way;
// an attempt is rejected wholesale with InvariantViolation and the prior
// state is left intact.
func (r *Registry) SaveOverrides(patch map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, v := range patch {
		if !v {
			if spec, ok := r.findLocked(id); ok && spec.Priority == PriorityCore {
				return &InvariantViolation{Reason: "agent " + id + " is core and cannot be disabled"}
			}
		}
	}

	prev := make(map[string]bool, len(r.state.Overrides))
	for k, v := range r.state.Overrides {
		prev[k] = v
	}
	for id, v := range patch {
		r.state.Overrides[id] = v
	}

	if err := saveState(r.statePath, r.state); err != nil {
		r.state.Overrides = prev
		return err
	}
	return nil
}

// SaveProfile defines or replaces a named, user-editable profile and
// persists it.
func (r *Registry) SaveProfile(name string, enabled map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, v := range enabled {
		if !v {
			if spec, ok := r.findLocked(id); ok && spec.Priority == PriorityCore {
				return &InvariantViolation{Reason: "agent " + id + " is core and cannot be disabled"}
			}
		}
	}

	prev, had := r.state.Profiles[name]
	r.state.Profiles[name] = enabled
	if err := saveState(r.statePath, r.state); err != nil {
		if had {
			r.state.Profiles[name] = prev
		} else {
			delete(r.state.Profiles, name)
		}
		return err
	}
	return nil
}

// StateSnapshot returns a copy of the mutable state for the config/agents
// read endpoint, satisfying the read-your-write invariant (§8.6): it is
// always derived from the in-memory state set by the most recent
// successful SaveOverrides/ApplyProfile/SaveProfile call.
func (r *Registry) StateSnapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := State{SelectedProfile: r.state.SelectedProfile}
	out.ensureMaps()
	for k, v := range r.state.Overrides {
		out.Overrides[k] = v
	}
	for k, v := range r.state.Profiles {
		p := make(map[string]bool, len(v))
		for id, e := range v {
			p[id] = e
		}
		out.Profiles[k] = p
	}
	return out
}

func (r *Registry) findLocked(id string) (AgentSpec, bool) {
	for _, s := range r.doc.Agents {
		if s.ID == id {
			return s, true
		}
	}
	return AgentSpec{}, false
}

// enforceCoreEnabled rejects a catalogue where a core agent starts out
// disabled with no override able to fix that (§4.1): core is unconditional.
func (r *Registry) enforceCoreEnabled() error {
	for _, s := range r.doc.Agents {
		if s.Priority == PriorityCore && !s.Enabled {
			slog.Warn("config: core agent loaded as disabled; treating as a configuration error", "agent", s.ID)
			return &InvariantViolation{Reason: "core agent " + s.ID + " is disabled in the catalogue"}
		}
	}
	return nil
}
