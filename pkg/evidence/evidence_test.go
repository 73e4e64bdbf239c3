package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
)

type fakeProvider struct {
	source core.EvidenceSource
	err    error
	delay  time.Duration
}

func (f fakeProvider) Fetch(ctx context.Context, symbol string) (core.EvidenceSource, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return core.EvidenceSource{}, ctx.Err()
		}
	}
	if f.err != nil {
		return core.EvidenceSource{}, f.err
	}
	return f.source, nil
}

func TestCollector_HealthyProvidersPreserveOrder(t *testing.T) {
	c := New(map[string]Provider{
		"news":  fakeProvider{source: core.EvidenceSource{Count: 5}},
		"quote": fakeProvider{source: core.EvidenceSource{Count: 1}},
	})

	bundle := c.Collect(context.Background(), "agent-1", "600519", []Binding{
		{ProviderKey: "quote", Label: "Quote"},
		{ProviderKey: "news", Label: "News"},
	})

	if len(bundle.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(bundle.Sources))
	}
	if bundle.Sources[0].Label != "Quote" || bundle.Sources[1].Label != "News" {
		t.Fatalf("expected binding order preserved, got %+v", bundle.Sources)
	}
}

func TestCollector_TimeoutDegradesToUnavailable(t *testing.T) {
	c := New(map[string]Provider{
		"fund-flow": fakeProvider{delay: 50 * time.Millisecond},
	}).WithDeadline(5 * time.Millisecond)

	bundle := c.Collect(context.Background(), "funds", "600547", []Binding{
		{ProviderKey: "fund-flow", Label: "fund-flow"},
	})

	if bundle.Sources[0].Count != 0 || bundle.Sources[0].Note != "unavailable" {
		t.Fatalf("expected unavailable fallback, got %+v", bundle.Sources[0])
	}
}

func TestCollector_ProviderErrorDegradesToUnavailable(t *testing.T) {
	c := New(map[string]Provider{
		"sector": fakeProvider{err: errors.New("boom")},
	})

	bundle := c.Collect(context.Background(), "agent-1", "600519", []Binding{
		{ProviderKey: "sector", Label: "sector"},
	})

	if bundle.Sources[0].Note != "unavailable" {
		t.Fatalf("expected unavailable fallback, got %+v", bundle.Sources[0])
	}
}

func TestCollector_UnregisteredProviderDegradesToUnavailable(t *testing.T) {
	c := New(map[string]Provider{})
	bundle := c.Collect(context.Background(), "agent-1", "600519", []Binding{
		{ProviderKey: "macro", Label: "macro"},
	})
	if bundle.Sources[0].Note != "unavailable" {
		t.Fatalf("expected unavailable fallback, got %+v", bundle.Sources[0])
	}
}
