// Package scheduler implements StageScheduler: it orders agents into their
// four fixed stages and runs each stage's agents in bounded-parallel
// batches, blocking stage N+1 until every agent in stage N has reached a
// terminal state (§4.6).
package scheduler

import (
	"context"
	"sync"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/config"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/runner"
)

const stageCount = 4

// defaultBatchSizes is B_stage (§4.6): bounding stage 3 to 2 is the primary
// remedy for provider stalls observed when 6+ parallel long prompts hit the
// same API key.
var defaultBatchSizes = map[int]int{1: 4, 2: 2, 3: 2, 4: 1}

// Scheduler drives one session's agents stage by stage.
type Scheduler struct {
	runner     *runner.Runner
	batchSizes map[int]int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBatchSizes overrides the default B_stage table; only stages present in
// sizes are overridden.
func WithBatchSizes(sizes map[int]int) Option {
	return func(s *Scheduler) {
		for stage, n := range sizes {
			s.batchSizes[stage] = n
		}
	}
}

// New builds a Scheduler that dispatches agents through r.
func New(r *runner.Runner, opts ...Option) *Scheduler {
	s := &Scheduler{runner: r, batchSizes: make(map[int]int, stageCount)}
	for stage, n := range defaultBatchSizes {
		s.batchSizes[stage] = n
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Instructions carries the per-agent operator instructions accompanying a
// request (§6's `operatorInstructions` field), keyed by agent id.
type Instructions map[string]string

// Run executes every stage in order against session, using specs as the
// already-resolved enabled set. It returns the terminal aggregate once
// stage 4 (or cancellation) ends the session.
func (s *Scheduler) Run(ctx context.Context, session *core.Session, specs []config.AgentSpec, sink core.ProgressSink, instructions Instructions) core.SessionAggregate {
	roleByID := make(map[string]string, len(specs))
	for _, spec := range specs {
		roleByID[spec.ID] = spec.Role
	}
	roleOf := func(id string) string { return roleByID[id] }

	byStage := partitionByStage(specs)

	for stage := 1; stage <= stageCount; stage++ {
		agents := byStage[stage]
		if len(agents) == 0 {
			continue
		}

		sink.Emit(core.Event{Type: core.EventStageStarted, SessionID: session.ID, Stage: stage})
		s.runStage(ctx, session, agents, sink, instructions, roleOf)
		sink.Emit(core.Event{Type: core.EventStageCompleted, SessionID: session.ID, Stage: stage})

		if ctx.Err() != nil {
			break
		}
	}

	aggregate := aggregateStatus(session, specs, ctx.Err() != nil)
	session.End(aggregate.Status)
	sink.Emit(core.Event{Type: core.EventSessionCompleted, SessionID: session.ID, Aggregate: &aggregate})
	return aggregate
}

// runStage divides agents into batches of the stage's B_stage, running each
// batch concurrently and waiting for every agent in it to terminate before
// starting the next (§4.6 step c). Tie-break within a batch is spec list
// order, already preserved by partitionByStage.
func (s *Scheduler) runStage(ctx context.Context, session *core.Session, agents []config.AgentSpec, sink core.ProgressSink, instructions Instructions, roleOf runner.RoleLookup) {
	if len(agents) == 0 {
		return
	}
	stage := agents[0].Stage
	batchSize := s.batchSizes[stage]
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(agents); start += batchSize {
		end := start + batchSize
		if end > len(agents) {
			end = len(agents)
		}
		s.runBatch(ctx, session, agents[start:end], sink, instructions, roleOf)
	}
}

func (s *Scheduler) runBatch(ctx context.Context, session *core.Session, batch []config.AgentSpec, sink core.ProgressSink, instructions Instructions, roleOf runner.RoleLookup) {
	var wg sync.WaitGroup
	for _, spec := range batch {
		spec := spec
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runner.Run(ctx, session, spec, sink, instructions[spec.ID], roleOf)
		}()
	}
	wg.Wait()
}

// partitionByStage groups specs by stage, preserving the input spec-list
// order within each stage — the tie-break §4.6 calls for within a batch.
func partitionByStage(specs []config.AgentSpec) map[int][]config.AgentSpec {
	byStage := make(map[int][]config.AgentSpec, stageCount)
	for _, spec := range specs {
		byStage[spec.Stage] = append(byStage[spec.Stage], spec)
	}
	return byStage
}

// aggregateStatus computes the session-wide terminal status per §4.6 step 3.
func aggregateStatus(session *core.Session, specs []config.AgentSpec, cancelled bool) core.SessionAggregate {
	records := session.Snapshot()
	if cancelled {
		return core.SessionAggregate{Status: core.TerminalCancelled, Records: records}
	}

	allCoreSucceeded := true
	anyNonCoreFailed := false
	for _, spec := range specs {
		rec, ok := records[spec.ID]
		if !ok {
			continue
		}
		switch spec.Priority {
		case config.PriorityCore:
			if rec.Status != core.StatusSuccess {
				allCoreSucceeded = false
			}
		default:
			if rec.Status != core.StatusSuccess {
				anyNonCoreFailed = true
			}
		}
	}

	status := core.TerminalError
	switch {
	case allCoreSucceeded && !anyNonCoreFailed:
		status = core.TerminalSuccess
	case allCoreSucceeded:
		status = core.TerminalPartial
	}
	return core.SessionAggregate{Status: status, Records: records}
}
