package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/config"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/evidence"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/governor"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/llm"
)

type fakeLLM struct {
	result  *llm.Result
	err     error
	calls   int
	errOnce bool
	delay   time.Duration
	lastReq llm.Request
}

func (f *fakeLLM) Call(ctx context.Context, req llm.Request) (*llm.Result, error) {
	f.calls++
	f.lastReq = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &llm.CallError{Kind: llm.KindTimeout, Message: "ctx done"}
		}
	}
	if f.errOnce && f.calls == 1 {
		return nil, f.err
	}
	if f.err != nil && !f.errOnce {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCredentialSource map[string]string

func (f fakeCredentialSource) CredentialHandle(provider string) string { return f[provider] }

func newDeps(t *testing.T, llmClient llm.Client) Deps {
	t.Helper()
	t.Setenv("FAKE_KEY", "sk-test")
	creds := llm.LoadCredentials(fakeCredentialSource{"anthropic": "FAKE_KEY"}, []string{"anthropic"})
	return Deps{
		LLM:         llmClient,
		Evidence:    evidence.New(map[string]evidence.Provider{}),
		Governor:    governor.New(governor.Config{GlobalCapacity: 2}),
		Credentials: creds,
	}
}

func baseSpec() config.AgentSpec {
	return config.AgentSpec{
		ID:              "quote",
		Role:            "Quote Analyst",
		Stage:           1,
		Priority:        config.PriorityCore,
		SystemPrompt:    "You are a quote analyst.",
		ProviderBinding: config.ProviderBinding{Provider: "anthropic", Model: "claude-sonnet-4-20250514", MaxOutputTokens: 2048},
		Enabled:         true,
	}
}

func newSession(agentIDs ...string) *core.Session {
	return core.NewSession("sess-1", core.StockContext{Symbol: "600519"}, agentIDs)
}

type collectingSink struct {
	events []core.Event
}

func (s *collectingSink) Emit(e core.Event) { s.events = append(s.events, e) }

func TestRunner_SuccessPath(t *testing.T) {
	deps := newDeps(t, &fakeLLM{result: &llm.Result{Text: "bullish"}})
	r := New(deps)
	sess := newSession("quote")
	sink := &collectingSink{}

	r.Run(context.Background(), sess, baseSpec(), sink, "", nil)

	rec, _ := sess.Record("quote")
	snap := rec.Snapshot()
	if snap.Status != core.StatusSuccess {
		t.Fatalf("expected StatusSuccess, got %v (kind=%v msg=%v)", snap.Status, snap.ErrorKind, snap.ErrorMessage)
	}
	if snap.OutputText != "bullish" {
		t.Fatalf("expected output text to be recorded, got %q", snap.OutputText)
	}

	var sawCompleted bool
	for _, e := range sink.events {
		if e.Type == core.EventAgentCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Fatal("expected a completed event")
	}
}

func TestRunner_RetriesOnceOnTimeoutThenSucceeds(t *testing.T) {
	fake := &fakeLLM{err: &llm.CallError{Kind: llm.KindTimeout, Message: "timed out"}, errOnce: true, result: &llm.Result{Text: "ok"}}
	deps := newDeps(t, fake)
	r := New(deps)
	sess := newSession("quote")
	sink := &collectingSink{}

	r.Run(context.Background(), sess, baseSpec(), sink, "", nil)

	rec, _ := sess.Record("quote")
	snap := rec.Snapshot()
	if snap.Status != core.StatusSuccess {
		t.Fatalf("expected retry to succeed, got %v", snap.Status)
	}
	if fake.calls != 2 {
		t.Fatalf("expected exactly 2 calls (1 retry), got %d", fake.calls)
	}
}

func TestRunner_ProviderRefusedDoesNotRetry(t *testing.T) {
	fake := &fakeLLM{err: &llm.CallError{Kind: llm.KindProviderRefused, Message: "refused"}}
	deps := newDeps(t, fake)
	r := New(deps)
	sess := newSession("quote")
	sink := &collectingSink{}

	r.Run(context.Background(), sess, baseSpec(), sink, "", nil)

	rec, _ := sess.Record("quote")
	snap := rec.Snapshot()
	if snap.Status != core.StatusError || snap.ErrorKind != core.ErrProviderRefused {
		t.Fatalf("expected terminal error with ProviderRefused, got status=%v kind=%v", snap.Status, snap.ErrorKind)
	}
	if fake.calls != 1 {
		t.Fatalf("expected exactly 1 call (no retry on refusal), got %d", fake.calls)
	}
}

func TestRunner_MissingCredentialFailsFastWithoutGovernorToken(t *testing.T) {
	deps := newDeps(t, &fakeLLM{result: &llm.Result{Text: "unused"}})
	deps.Credentials = llm.LoadCredentials(fakeCredentialSource{}, nil) // no keys resolved
	r := New(deps)
	sess := newSession("quote")
	sink := &collectingSink{}

	r.Run(context.Background(), sess, baseSpec(), sink, "", nil)

	rec, _ := sess.Record("quote")
	snap := rec.Snapshot()
	if snap.Status != core.StatusError || snap.ErrorKind != core.ErrAuthMissing {
		t.Fatalf("expected AuthMissing terminal error, got status=%v kind=%v", snap.Status, snap.ErrorKind)
	}
}

func TestRunner_DependencyOutputFedIntoPrompt(t *testing.T) {
	fake := &fakeLLM{result: &llm.Result{Text: "integrated"}}
	deps := newDeps(t, fake)
	r := New(deps)

	sess := newSession("quote", "integrator")
	quoteRec, _ := sess.Record("quote")
	quoteRec.Transition(core.StatusSuccess, func(rec *core.AgentRecord) {
		rec.OutputText = "price is up"
	})

	spec := baseSpec()
	spec.ID = "integrator"
	spec.Dependencies = []string{"quote"}
	spec.Priority = config.PriorityImportant

	sink := &collectingSink{}
	r.Run(context.Background(), sess, spec, sink, "", func(id string) string {
		if id == "quote" {
			return "Quote Analyst"
		}
		return id
	})

	rec, _ := sess.Record("integrator")
	if rec.Snapshot().Status != core.StatusSuccess {
		t.Fatalf("expected success, got %v", rec.Snapshot().Status)
	}
	if !strings.Contains(fake.lastReq.UserPrompt, "Quote Analyst: price is up") {
		t.Fatalf("expected upstream output in prompt, got:\n%s", fake.lastReq.UserPrompt)
	}
}
