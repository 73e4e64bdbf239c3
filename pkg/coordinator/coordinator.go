// Package coordinator implements SessionCoordinator and the process-wide
// Engine it is factored out of (§4.8, §9): the engine owns the long-lived
// collaborators (registry, governor, LLM client, evidence providers) as
// explicitly constructed services, never ambient singletons, and builds one
// Coordinator per incoming analyze request.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/config"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/evidence"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/governor"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/llm"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/runner"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/scheduler"
)

const quoteSnapshotDeadline = 5 * time.Second

// QuoteProvider resolves the one quote snapshot a session needs before any
// agent runs. It is distinct from evidence.Provider: the quote snapshot
// seeds StockContext itself rather than one agent's evidence bundle.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, symbol string) (core.StockContext, error)
}

// Engine owns every long-lived collaborator the core depends on. Sessions
// are factored out of it: call NewCoordinator per request rather than
// threading a singleton through handlers.
type Engine struct {
	Registry      *config.Registry
	Governor      *governor.Governor
	LLM           llm.Client
	Credentials   *llm.Credentials
	Evidence      *evidence.Collector
	Quote         QuoteProvider
	Scheduler     *scheduler.Scheduler
	AgentDeadline time.Duration
}

// NewEngine wires a Runner and Scheduler over the given collaborators.
func NewEngine(registry *config.Registry, gov *governor.Governor, llmClient llm.Client, creds *llm.Credentials, ev *evidence.Collector, quote QuoteProvider, agentDeadline time.Duration) *Engine {
	r := runner.New(runner.Deps{
		LLM:           llmClient,
		Evidence:      ev,
		Governor:      gov,
		Credentials:   creds,
		AgentDeadline: agentDeadline,
	})
	return &Engine{
		Registry:      registry,
		Governor:      gov,
		LLM:           llmClient,
		Credentials:   creds,
		Evidence:      ev,
		Quote:         quote,
		Scheduler:     scheduler.New(r),
		AgentDeadline: agentDeadline,
	}
}

// NewCoordinator builds a Coordinator for one request against this engine.
func (e *Engine) NewCoordinator() *Coordinator {
	return &Coordinator{engine: e}
}

// Request is the decoded form of a POST analyze body (§6).
type Request struct {
	Symbol               string
	EnabledOverrides     map[string]bool
	OperatorInstructions map[string]string
	Stages               []int
}

// ValidationError reports a request referencing an agent id the registry
// does not know about.
type ValidationError struct {
	AgentID string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("coordinator: unknown agent id %q in request overrides", e.AgentID)
}

// Coordinator drives one analysis session end to end.
type Coordinator struct {
	engine *Engine
}

// Run builds the session's enabled spec set and StockContext, then drives
// the StageScheduler, publishing every event to sink. It returns the
// terminal aggregate; an unknown override or a NoStockData failure returns
// before any agent runs and emits a session_completed{status:error} event
// with zero records.
func (c *Coordinator) Run(ctx context.Context, sessionID string, req Request, sink core.ProgressSink) (core.SessionAggregate, error) {
	if err := c.validateOverrides(req.EnabledOverrides); err != nil {
		aggregate := core.SessionAggregate{Status: core.TerminalError, Records: map[string]core.AgentRecord{}}
		sink.Emit(core.Event{Type: core.EventSessionCompleted, SessionID: sessionID, Aggregate: &aggregate})
		return aggregate, err
	}

	specs := onlyEnabled(c.engine.Registry.EnabledFor(req.EnabledOverrides))
	specs = filterStages(specs, req.Stages)

	quoteCtx, cancel := context.WithTimeout(ctx, quoteSnapshotDeadline)
	stock, err := c.engine.Quote.FetchQuote(quoteCtx, req.Symbol)
	cancel()
	if err != nil {
		aggregate := core.SessionAggregate{Status: core.TerminalError, Records: map[string]core.AgentRecord{}}
		sink.Emit(core.Event{Type: core.EventSessionCompleted, SessionID: sessionID, Aggregate: &aggregate})
		return aggregate, fmt.Errorf("%w: %v", errNoStockData, err)
	}

	agentIDs := make([]string, len(specs))
	for i, s := range specs {
		agentIDs[i] = s.ID
	}
	session := core.NewSession(sessionID, stock, agentIDs)

	instructions := scheduler.Instructions(req.OperatorInstructions)
	aggregate := c.engine.Scheduler.Run(ctx, session, specs, sink, instructions)
	return aggregate, nil
}

var errNoStockData = fmt.Errorf("coordinator: %s", core.ErrNoStockData)

func (c *Coordinator) validateOverrides(overrides map[string]bool) error {
	for id := range overrides {
		if _, ok := c.engine.Registry.Get(id); !ok {
			return &ValidationError{AgentID: id}
		}
	}
	return nil
}

func onlyEnabled(specs []config.AgentSpec) []config.AgentSpec {
	out := make([]config.AgentSpec, 0, len(specs))
	for _, s := range specs {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func filterStages(specs []config.AgentSpec, stages []int) []config.AgentSpec {
	if len(stages) == 0 {
		return specs
	}
	allowed := make(map[int]bool, len(stages))
	for _, s := range stages {
		allowed[s] = true
	}
	out := make([]config.AgentSpec, 0, len(specs))
	for _, spec := range specs {
		if allowed[spec.Stage] {
			out = append(out, spec)
		}
	}
	return out
}
