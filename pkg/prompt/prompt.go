// Package prompt assembles the system and user prompt text an AgentRunner
// sends to the LLM, following the fixed, documented section order from
// §4.3 so that identical inputs always produce byte-identical prompts.
package prompt

import (
	"fmt"
	"strings"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
)

const priorOutputSeparator = "\n---\n"

const taskDirective = "Produce your analysis for the above context. Respond in plain prose, no markdown headers."

// UpstreamLabel maps an upstream agent id to its display role, so the
// prior-outputs block can prefix each entry with something readable instead
// of the raw id.
type UpstreamLabel func(agentID string) string

// Request bundles everything Build needs for one agent invocation.
type Request struct {
	SystemPrompt        string
	Quote               core.Quote
	Symbol              string
	StockName           string
	Evidence            core.EvidenceBundle
	PriorOutputs        map[string]string // upstream agent id -> final text
	UpstreamOrder       []string          // deterministic iteration order for PriorOutputs
	OperatorInstruction string
	RoleOf              UpstreamLabel
}

// Assembled is the built prompt plus the character count PromptBuilder
// records on the AgentRecord (§4.3 step 3).
type Assembled struct {
	SystemPrompt string
	UserPrompt   string
	CharCount    int
}

// Build assembles the prompt deterministically. No truncation happens here;
// token-budget enforcement is solely the LLMClient's responsibility (§4.4).
func Build(req Request) Assembled {
	var sections []string

	if quote := quoteBlock(req.Symbol, req.StockName, req.Quote); quote != "" {
		sections = append(sections, quote)
	}
	if ev := evidenceBlock(req.Evidence); ev != "" {
		sections = append(sections, ev)
	}
	if prior := priorOutputsBlock(req); prior != "" {
		sections = append(sections, prior)
	}
	if strings.TrimSpace(req.OperatorInstruction) != "" {
		sections = append(sections, "Operator instruction: "+req.OperatorInstruction)
	}
	sections = append(sections, taskDirective)

	userPrompt := strings.Join(sections, "\n\n")
	return Assembled{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   userPrompt,
		CharCount:    len(userPrompt),
	}
}

func quoteBlock(symbol, name string, q core.Quote) string {
	if symbol == "" && name == "" && q == (core.Quote{}) {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Quote for %s (%s):\n", symbol, name)
	fmt.Fprintf(&b, "  price=%s open=%s high=%s low=%s change=%s", q.Price, q.Open, q.High, q.Low, q.Change)
	return b.String()
}

func evidenceBlock(bundle core.EvidenceBundle) string {
	if len(bundle.Sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Evidence:\n")
	for i, s := range bundle.Sources {
		if i > 0 {
			b.WriteString("\n")
		}
		if s.Note != "" {
			fmt.Fprintf(&b, "  - %s: %s", s.Label, s.Note)
		} else {
			fmt.Fprintf(&b, "  - %s: %d", s.Label, s.Count)
		}
	}
	return b.String()
}

func priorOutputsBlock(req Request) string {
	if len(req.PriorOutputs) == 0 {
		return ""
	}
	var entries []string
	for _, id := range req.UpstreamOrder {
		text, ok := req.PriorOutputs[id]
		if !ok {
			continue
		}
		label := id
		if req.RoleOf != nil {
			if r := req.RoleOf(id); r != "" {
				label = r
			}
		}
		if text == "" {
			entries = append(entries, fmt.Sprintf("%s: (upstream unavailable)", label))
			continue
		}
		entries = append(entries, fmt.Sprintf("%s: %s", label, text))
	}
	if len(entries) == 0 {
		return ""
	}
	return "Prior analysis:\n" + strings.Join(entries, priorOutputSeparator)
}
