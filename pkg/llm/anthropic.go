package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/icysaintdx/InvestMind-Pro-sub005/internal/httpclient"
)

const anthropicDefaultHost = "https://api.anthropic.com"

// anthropicCaller makes one Messages API call per invocation. It never
// retries on its own; the httpclient.Client passed in owns that.
type anthropicCaller struct {
	host string
	http *httpclient.Client
}

func newAnthropicCaller(http *httpclient.Client) *anthropicCaller {
	return &anthropicCaller{host: anthropicDefaultHost, http: http}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *anthropicCaller) call(ctx context.Context, req Request) (*Result, error) {
	body := anthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "encoding request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, translateHTTPError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "reading response body", Err: err}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "decoding response", Err: err}
	}
	if parsed.Error != nil {
		return nil, &CallError{
			Kind:         classifyAnthropicError(parsed.Error.Type),
			ProviderCode: parsed.Error.Type,
			Message:      parsed.Error.Message,
		}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Result{
		Text: text,
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

func classifyAnthropicError(errType string) ErrorKind {
	switch errType {
	case "authentication_error", "permission_error":
		return KindAuthMissing
	case "rate_limit_error", "overloaded_error":
		return KindProviderRefused
	case "invalid_request_error":
		return KindTokenLimitExceeded
	default:
		return KindProviderRefused
	}
}

func translateHTTPError(err error) *CallError {
	var httpErr *httpclient.Error
	if asHTTPClientError(err, &httpErr) {
		switch httpErr.Kind {
		case httpclient.KindTimeout:
			return &CallError{Kind: KindTimeout, Message: "request timed out", Err: err}
		case httpclient.KindRefused:
			if httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden {
				return &CallError{Kind: KindAuthMissing, ProviderCode: fmt.Sprintf("%d", httpErr.StatusCode), Message: httpErr.Body, Err: err}
			}
			return &CallError{Kind: KindProviderRefused, ProviderCode: fmt.Sprintf("%d", httpErr.StatusCode), Message: httpErr.Body, Err: err}
		default:
			return &CallError{Kind: KindTransport, Message: "transport failure", Err: err}
		}
	}
	return &CallError{Kind: KindTransport, Message: "transport failure", Err: err}
}

func asHTTPClientError(err error, target **httpclient.Error) bool {
	for err != nil {
		if e, ok := err.(*httpclient.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
