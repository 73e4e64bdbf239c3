// Package governor bounds how many LLM calls run concurrently against a
// single process: one global pool plus one pool per provider, so a single
// provider key cannot starve concurrency meant for others (§4.7).
package governor

import (
	"context"
	"sync"
)

// Governor is a two-level semaphore. A token must be acquired from both the
// global pool and the named provider's pool before a call proceeds; both are
// channel-based.
type Governor struct {
	global chan struct{}

	mu          sync.Mutex
	perProvider map[string]chan struct{}
	providerCap int
}

// Config sizes the two pools. GlobalCapacity is the process-wide ceiling on
// concurrent LLM calls; ProviderCapacity sizes each per-provider pool lazily
// created on first use. A ProviderCapacity of 0 defaults to GlobalCapacity.
type Config struct {
	GlobalCapacity   int
	ProviderCapacity int
}

// New builds a Governor from cfg, defaulting both pools to 2 when unset —
// the single-key-deployment default from §4.7.
func New(cfg Config) *Governor {
	global := cfg.GlobalCapacity
	if global <= 0 {
		global = 2
	}
	providerCap := cfg.ProviderCapacity
	if providerCap <= 0 {
		providerCap = global
	}
	return &Governor{
		global:      make(chan struct{}, global),
		perProvider: make(map[string]chan struct{}),
		providerCap: providerCap,
	}
}

// Capacity returns the global pool size: at most Capacity agents are ever in
// calling_llm simultaneously (invariant 2, §8).
func (g *Governor) Capacity() int {
	return cap(g.global)
}

// Token represents one acquired slot, bound to exactly one LLMClient.call.
// Release must be called exactly once, on every exit path.
type Token struct {
	global   chan struct{}
	provider chan struct{}
}

// Release returns the token to both pools. Safe to call at most once;
// calling it twice would double-release and corrupt the semaphore, so
// callers must guard with sync.Once or an exit-path boolean if there is any
// risk of a double call.
func (t *Token) Release() {
	<-t.global
	<-t.provider
}

// Acquire blocks until both the global and the named provider's pool have a
// free slot, or ctx is cancelled. Acquisition order (global first, then
// provider) is fixed to avoid lock-order inversion across concurrent
// acquisitions for different providers.
func (g *Governor) Acquire(ctx context.Context, provider string) (*Token, error) {
	select {
	case g.global <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	providerPool := g.providerPool(provider)
	select {
	case providerPool <- struct{}{}:
		return &Token{global: g.global, provider: providerPool}, nil
	case <-ctx.Done():
		<-g.global
		return nil, ctx.Err()
	}
}

func (g *Governor) providerPool(provider string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	pool, ok := g.perProvider[provider]
	if !ok {
		pool = make(chan struct{}, g.providerCap)
		g.perProvider[provider] = pool
	}
	return pool
}
