// Package evidence gathers reference-data hints for an agent before its LLM
// call. It never blocks that call on a failed or slow provider (§4.2):
// a timed-out or erroring source degrades to an "unavailable" entry.
package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
)

// Provider fetches one named source of reference data for a symbol. It is
// the sole seam between this engine and market-data fetchers, the symbol
// catalogue, and anything else that is out of core scope (§1).
type Provider interface {
	Fetch(ctx context.Context, symbol string) (core.EvidenceSource, error)
}

// Binding names one provider lookup within an agent's evidenceBindings list,
// carrying the label the bundle should report regardless of what the
// provider itself calls its data.
type Binding struct {
	ProviderKey string
	Label       string
}

const defaultProviderDeadline = 10 * time.Second

// Collector invokes providers by key, enforcing one deadline per call and
// the at-most-one-concurrent-invocation-per-(agentId,providerKey) guarantee
// from §4.2.
type Collector struct {
	providers map[string]Provider
	deadline  time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds a Collector over the given provider registry, keyed by the
// same providerKey strings used in AgentSpec.EvidenceBindings.
func New(providers map[string]Provider) *Collector {
	return &Collector{
		providers: providers,
		deadline:  defaultProviderDeadline,
		inFlight:  make(map[string]struct{}),
	}
}

// WithDeadline overrides the per-provider deadline; used by tests exercising
// the timeout-degrades-to-unavailable path without a 10s wait.
func (c *Collector) WithDeadline(d time.Duration) *Collector {
	c.deadline = d
	return c
}

// Collect runs every binding in parallel and returns a bundle in binding
// order, regardless of completion order. A binding whose provider is
// unregistered, errors, or exceeds the deadline yields a zero-count
// "unavailable" entry rather than failing the agent.
func (c *Collector) Collect(ctx context.Context, agentID, symbol string, bindings []Binding) core.EvidenceBundle {
	sources := make([]core.EvidenceSource, len(bindings))
	var g errgroup.Group

	for i, b := range bindings {
		i, b := i, b
		g.Go(func() error {
			sources[i] = c.fetchOne(ctx, agentID, symbol, b)
			return nil
		})
	}
	_ = g.Wait()

	return core.EvidenceBundle{Sources: sources}
}

func (c *Collector) fetchOne(ctx context.Context, agentID, symbol string, b Binding) core.EvidenceSource {
	key := agentID + "\x00" + b.ProviderKey
	if !c.lock(key) {
		// Another call for this (agentId, providerKey) pair is already in
		// flight; this should not happen for a well-formed spec (one
		// binding per provider per agent), but guard against duplicate
		// bindings rather than double-fetching.
		return core.EvidenceSource{Label: b.Label, Note: "duplicate binding skipped"}
	}
	defer c.unlock(key)

	provider, ok := c.providers[b.ProviderKey]
	if !ok {
		return core.EvidenceSource{Label: b.Label, Note: "unavailable"}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	source, err := provider.Fetch(callCtx, symbol)
	if err != nil {
		slog.Warn("evidence provider call failed", "agent", agentID, "provider", b.ProviderKey, "error", err)
		return core.EvidenceSource{Label: b.Label, Note: "unavailable"}
	}
	source.Label = b.Label
	return source
}

func (c *Collector) lock(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[key]; busy {
		return false
	}
	c.inFlight[key] = struct{}{}
	return true
}

func (c *Collector) unlock(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}

// ErrUnregisteredProvider describes a spec referencing a providerKey with no
// registered implementation. Nothing in this package returns it: Collect
// records such a binding as an "unavailable" source instead.
type ErrUnregisteredProvider struct {
	ProviderKey string
}

func (e *ErrUnregisteredProvider) Error() string {
	return fmt.Sprintf("evidence: no provider registered for key %q", e.ProviderKey)
}
