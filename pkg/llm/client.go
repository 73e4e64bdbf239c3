package llm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/icysaintdx/InvestMind-Pro-sub005/internal/httpclient"
)

// caller is the per-provider single-attempt transport. client wraps it with
// the retrying httpclient.Client and the token-limit policy shared by every
// provider.
type caller interface {
	call(ctx context.Context, req Request) (*Result, error)
}

// client is the default Client implementation, dispatching by Request.Provider
// to a concrete caller. One client is shared across agents; callers supply a
// fresh APIKey per request, never stored on the client itself.
type client struct {
	callers map[string]caller
}

// NewClient builds a client wired to the anthropic and openai providers,
// sharing one retrying HTTP transport (§4.4: 2 additional attempts, 1s/4s
// backoff, 10s connect timeout, 120s per HTTP request) across both.
func NewClient(httpConfig httpclient.Config) Client {
	transport := httpclient.New(&http.Client{
		Timeout:   120 * time.Second,
		Transport: &http.Transport{DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext},
	}, httpConfig)
	return &client{
		callers: map[string]caller{
			"anthropic": newAnthropicCaller(transport),
			"openai":    newOpenAICaller(transport),
		},
	}
}

func (c *client) Call(ctx context.Context, req Request) (*Result, error) {
	if req.APIKey == "" {
		return nil, &CallError{Kind: KindAuthMissing, Message: fmt.Sprintf("no credential bound for provider %q", req.Provider)}
	}
	call, ok := c.callers[req.Provider]
	if !ok {
		return nil, &CallError{Kind: KindProviderRefused, Message: fmt.Sprintf("unknown provider %q", req.Provider)}
	}
	req.MaxOutputTokens = ClampMaxOutputTokens(req.MaxOutputTokens, 0)

	return call.call(ctx, req)
}
