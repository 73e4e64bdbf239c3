// Package runner implements AgentRunner: the state machine that drives one
// agent from evidence collection through to a terminal AgentRecord (§4.5).
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/config"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/evidence"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/governor"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/llm"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/prompt"
)

const defaultAgentDeadline = 180 * time.Second

// Deps are the collaborators a Runner needs, constructed once per Engine and
// shared by every agent invocation.
type Deps struct {
	LLM           llm.Client
	Evidence      *evidence.Collector
	Governor      *governor.Governor
	Credentials   *llm.Credentials
	AgentDeadline time.Duration
}

// Runner runs one agent end-to-end. It holds no per-invocation state itself
// — Run is safe to call concurrently for distinct agents sharing one Runner.
type Runner struct {
	deps Deps
}

// New builds a Runner over deps, defaulting AgentDeadline to 180s.
func New(deps Deps) *Runner {
	if deps.AgentDeadline <= 0 {
		deps.AgentDeadline = defaultAgentDeadline
	}
	return &Runner{deps: deps}
}

// RoleLookup resolves an agent id to its display role, for the prior-outputs
// block's upstream labels.
type RoleLookup func(agentID string) string

// Run drives spec's agent to completion against session, publishing
// started/evidence_ready/terminal events on sink. It writes exactly one
// terminal status to the agent's record; ctx cancellation is cooperative and
// surfaces as StatusCancelled rather than StatusError.
func (r *Runner) Run(ctx context.Context, session *core.Session, spec config.AgentSpec, sink core.ProgressSink, operatorInstruction string, roleOf RoleLookup) {
	record, ok := session.Record(spec.ID)
	if !ok {
		slog.Error("runner: no record allocated for agent", "agent", spec.ID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.deps.AgentDeadline)
	defer cancel()

	record.Transition(core.StatusFetchingEvidence, func(rec *core.AgentRecord) {
		rec.StartedAt = time.Now()
	})
	sink.Emit(core.Event{Type: core.EventAgentStarted, SessionID: session.ID, AgentID: spec.ID, Record: snapshotPtr(record)})

	bundle := r.deps.Evidence.Collect(ctx, spec.ID, session.StockContext.Symbol, bindingsFromSpec(spec))

	record.Transition(core.StatusAssembling, func(rec *core.AgentRecord) {
		rec.EvidenceBundle = bundle
	})
	sink.Emit(core.Event{Type: core.EventAgentEvidenceReady, SessionID: session.ID, AgentID: spec.ID, Record: snapshotPtr(record)})

	priorOutputs := session.DependencyOutputs(spec.Dependencies)
	assembled := prompt.Build(prompt.Request{
		SystemPrompt:        spec.SystemPrompt,
		Symbol:              session.StockContext.Symbol,
		StockName:           session.StockContext.Name,
		Quote:               session.StockContext.Quote,
		Evidence:            bundle,
		PriorOutputs:        priorOutputs,
		UpstreamOrder:       spec.Dependencies,
		OperatorInstruction: operatorInstruction,
		RoleOf:              prompt.UpstreamLabel(roleOf),
	})
	record.Update(func(rec *core.AgentRecord) {
		rec.PromptChars = assembled.CharCount
	})

	apiKey, keyErr := r.deps.Credentials.APIKey(spec.ProviderBinding.Provider)
	if keyErr != nil {
		r.terminate(session, record, sink, spec.ID, core.StatusError, core.ErrAuthMissing, keyErr.Error(), "")
		return
	}

	record.Transition(core.StatusAwaitingBudget, nil)
	token, err := r.deps.Governor.Acquire(ctx, spec.ProviderBinding.Provider)
	if err != nil {
		r.terminate(session, record, sink, spec.ID, core.StatusCancelled, core.ErrCancelled, "cancelled while awaiting concurrency budget", "")
		return
	}

	// bindingCap is 0 here: individual per-binding ceilings are not tracked
	// separately from the requested value (§9), so every agent clamps
	// against the single process-wide default.
	maxTokens := llm.ClampMaxOutputTokens(spec.ProviderBinding.MaxOutputTokens, 0)

	result, callErr := r.callWithRetry(ctx, record, llm.Request{
		Provider:        spec.ProviderBinding.Provider,
		Model:           spec.ProviderBinding.Model,
		SystemPrompt:    assembled.SystemPrompt,
		UserPrompt:      assembled.UserPrompt,
		Temperature:     spec.ProviderBinding.Temperature,
		MaxOutputTokens: maxTokens,
		APIKey:          apiKey,
	})
	token.Release()

	if callErr != nil {
		r.terminateFromError(session, record, sink, spec.ID, callErr, ctx)
		return
	}

	record.Transition(core.StatusSuccess, func(rec *core.AgentRecord) {
		rec.OutputText = result.Text
		rec.ProviderCode = result.ProviderCode
		rec.EndedAt = time.Now()
	})
	sink.Emit(core.Event{Type: core.EventAgentCompleted, SessionID: session.ID, AgentID: spec.ID, Record: snapshotPtr(record)})
}

// callWithRetry makes the LLM call, re-attempting once more on Timeout if
// the agent's remaining budget allows (§4.5) — a retry layered on top of,
// and independent from, LLMClient's own internal retry count (§4.4).
func (r *Runner) callWithRetry(ctx context.Context, record *core.AgentRecord, req llm.Request) (*llm.Result, error) {
	record.Transition(core.StatusCallingLLM, func(rec *core.AgentRecord) {
		rec.Attempt = 1
	})
	result, err := r.deps.LLM.Call(ctx, req)
	if err == nil {
		return result, nil
	}

	var callErr *llm.CallError
	if !errors.As(err, &callErr) || callErr.Kind != llm.KindTimeout {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}

	record.Update(func(rec *core.AgentRecord) {
		rec.Attempt = 2
	})
	return r.deps.LLM.Call(ctx, req)
}

func (r *Runner) terminateFromError(session *core.Session, record *core.AgentRecord, sink core.ProgressSink, agentID string, err error, ctx context.Context) {
	if ctx.Err() != nil {
		r.terminate(session, record, sink, agentID, core.StatusCancelled, core.ErrCancelled, ctx.Err().Error(), "")
		return
	}

	// Every path here lands on the single terminal StatusError: §4.5's
	// timeout/refused boxes are transitional (a retry already happened in
	// callWithRetry, or was deliberately skipped), not stored states.
	var callErr *llm.CallError
	kind := core.ErrProviderRefused
	message := err.Error()
	providerCode := ""
	if errors.As(err, &callErr) {
		message = callErr.Message
		providerCode = callErr.ProviderCode
		switch callErr.Kind {
		case llm.KindTimeout:
			kind = core.ErrTimeout
		case llm.KindAuthMissing:
			kind = core.ErrAuthMissing
		case llm.KindTokenLimitExceeded:
			kind = core.ErrTokenLimitExceeded
		case llm.KindProviderRefused:
			kind = core.ErrProviderRefused
		case llm.KindTransport:
			kind = core.ErrProviderRefused
		}
	}
	r.terminate(session, record, sink, agentID, core.StatusError, kind, message, providerCode)
}

func (r *Runner) terminate(session *core.Session, record *core.AgentRecord, sink core.ProgressSink, agentID string, status core.AgentStatus, kind core.ErrorKind, message, providerCode string) {
	terminal := status
	if !status.Terminal() {
		terminal = core.StatusError
	}
	record.Transition(terminal, func(rec *core.AgentRecord) {
		rec.ErrorKind = kind
		rec.ErrorMessage = message
		rec.ProviderCode = providerCode
		rec.EndedAt = time.Now()
	})

	eventType := core.EventAgentFailed
	if terminal == core.StatusCancelled {
		eventType = core.EventAgentCancelled
	}
	sink.Emit(core.Event{Type: eventType, SessionID: session.ID, AgentID: agentID, Record: snapshotPtr(record)})
}

func bindingsFromSpec(spec config.AgentSpec) []evidence.Binding {
	bindings := make([]evidence.Binding, len(spec.EvidenceBindings))
	for i, b := range spec.EvidenceBindings {
		bindings[i] = evidence.Binding{ProviderKey: b.ProviderKey, Label: b.Label}
	}
	return bindings
}

func snapshotPtr(r *core.AgentRecord) *core.AgentRecord {
	snap := r.Snapshot()
	return &snap
}
