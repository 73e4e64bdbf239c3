// Package marketdata provides generic HTTP-backed implementations of the
// coordinator.QuoteProvider and evidence.Provider contracts: one small JSON
// GET client per reference-data source, configured by base URL rather than
// hand-rolled per vendor. Concrete deployments point each fetcher at an
// internal aggregation service or a market-data vendor's REST API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/icysaintdx/InvestMind-Pro-sub005/internal/httpclient"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
)

// quoteResponse is the wire shape returned by a quote endpoint.
type quoteResponse struct {
	Name   string `json:"name"`
	Price  string `json:"price"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Change string `json:"change"`
}

// QuoteFetcher resolves a symbol's current quote snapshot over HTTP. It
// implements coordinator.QuoteProvider.
type QuoteFetcher struct {
	baseURL string
	http    *httpclient.Client
}

// NewQuoteFetcher builds a QuoteFetcher against baseURL, e.g.
// "https://marketdata.internal/v1/quote".
func NewQuoteFetcher(baseURL string, client *httpclient.Client) *QuoteFetcher {
	return &QuoteFetcher{baseURL: baseURL, http: client}
}

// FetchQuote satisfies coordinator.QuoteProvider.
func (f *QuoteFetcher) FetchQuote(ctx context.Context, symbol string) (core.StockContext, error) {
	var resp quoteResponse
	if err := getJSON(ctx, f.http, f.baseURL, symbol, &resp); err != nil {
		return core.StockContext{}, fmt.Errorf("marketdata: fetch quote for %s: %w", symbol, err)
	}
	return core.StockContext{
		Symbol: symbol,
		Name:   resp.Name,
		Quote: core.Quote{
			Price:  resp.Price,
			Open:   resp.Open,
			High:   resp.High,
			Low:    resp.Low,
			Change: resp.Change,
		},
	}, nil
}

// sourceResponse is the wire shape shared by the news/fund-flow/sector/macro
// endpoints: a count of matching records, one representative sample, and
// optionally the raw payload for a transformer to post-process.
type sourceResponse struct {
	Count   int             `json:"count"`
	Sample  string          `json:"sample"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HTTPEvidenceProvider fetches one named reference-data source for a symbol
// over HTTP. It implements evidence.Provider; the Collector supplies the
// per-call deadline, so this type carries none of its own.
type HTTPEvidenceProvider struct {
	baseURL string
	http    *httpclient.Client
}

// NewHTTPEvidenceProvider builds a provider against baseURL.
func NewHTTPEvidenceProvider(baseURL string, client *httpclient.Client) *HTTPEvidenceProvider {
	return &HTTPEvidenceProvider{baseURL: baseURL, http: client}
}

// Fetch satisfies evidence.Provider.
func (p *HTTPEvidenceProvider) Fetch(ctx context.Context, symbol string) (core.EvidenceSource, error) {
	var resp sourceResponse
	if err := getJSON(ctx, p.http, p.baseURL, symbol, &resp); err != nil {
		return core.EvidenceSource{}, err
	}
	var payload any
	if len(resp.Payload) > 0 {
		payload = resp.Payload
	}
	return core.EvidenceSource{Count: resp.Count, Sample: resp.Sample, Payload: payload}, nil
}

func getJSON(ctx context.Context, client *httpclient.Client, baseURL, symbol string, out any) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("marketdata: invalid base URL %q: %w", baseURL, err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("marketdata: build request: %w", err)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("marketdata: decode response: %w", err)
	}
	return nil
}
