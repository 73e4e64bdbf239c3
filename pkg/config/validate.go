package config

import "fmt"

// knownProviders is the set of provider identifiers the llm package can
// dispatch to. Kept here (rather than importing pkg/llm) to avoid a cycle;
// pkg/llm registers providers under these same names.
var knownProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
}

// Validate rejects cycles in dependencies, unknown provider bindings,
// negative temperatures, and out-of-range stages (§4.1).
func Validate(specs []AgentSpec) error {
	byID := make(map[string]AgentSpec, len(specs))
	for _, s := range specs {
		if _, dup := byID[s.ID]; dup {
			return fmt.Errorf("config: duplicate agent id %q", s.ID)
		}
		byID[s.ID] = s
	}

	for _, s := range specs {
		if s.ID == "" {
			return fmt.Errorf("config: agent with empty id")
		}
		if s.Stage < 1 || s.Stage > 4 {
			return fmt.Errorf("config: agent %q: stage %d not in {1,2,3,4}", s.ID, s.Stage)
		}
		if !s.Priority.valid() {
			return fmt.Errorf("config: agent %q: invalid priority %q", s.ID, s.Priority)
		}
		if s.ProviderBinding.Temperature < 0 {
			return fmt.Errorf("config: agent %q: negative temperature %v", s.ID, s.ProviderBinding.Temperature)
		}
		if !knownProviders[s.ProviderBinding.Provider] {
			return fmt.Errorf("config: agent %q: unknown provider binding %q", s.ID, s.ProviderBinding.Provider)
		}
		for _, dep := range s.Dependencies {
			depSpec, ok := byID[dep]
			if !ok {
				return fmt.Errorf("config: agent %q: unresolvable dependency %q", s.ID, dep)
			}
			if depSpec.Stage >= s.Stage {
				return fmt.Errorf("config: agent %q: dependency %q is not in an earlier stage (stage %d >= %d)", s.ID, dep, depSpec.Stage, s.Stage)
			}
		}
	}

	if cyc := findCycle(byID); cyc != "" {
		return fmt.Errorf("config: dependency cycle detected: %s", cyc)
	}

	return nil
}

// findCycle walks the dependency graph with the classic three-colour DFS and
// returns a human-readable description of the first cycle found, or "" if
// the graph is acyclic. Validate already rejects any dependency that is not
// in an earlier stage, and no cycle can exist under that ordering, so in
// practice this finds nothing; the check stays independent of that
// assumption.
func findCycle(byID map[string]AgentSpec) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))
	var path []string

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range byID[id].Dependencies {
			switch color[dep] {
			case gray:
				return cyclePath(append(path, dep))
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return ""
	}

	for id := range byID {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

func cyclePath(path []string) string {
	out := ""
	for i, id := range path {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}
