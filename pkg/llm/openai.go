package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/icysaintdx/InvestMind-Pro-sub005/internal/httpclient"
)

const openAIDefaultHost = "https://api.openai.com/v1"

// openAICaller makes one chat completion call per invocation.
type openAICaller struct {
	host string
	http *httpclient.Client
}

func newOpenAICaller(http *httpclient.Client) *openAICaller {
	return &openAICaller{host: openAIDefaultHost, http: http}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAICaller) call(ctx context.Context, req Request) (*Result, error) {
	messages := []openAIMessage{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]openAIMessage{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	body := openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "encoding request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, translateHTTPError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "reading response body", Err: err}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &CallError{Kind: KindTransport, Message: "decoding response", Err: err}
	}
	if parsed.Error != nil {
		return nil, &CallError{
			Kind:         classifyOpenAIError(parsed.Error.Code, parsed.Error.Type),
			ProviderCode: parsed.Error.Code,
			Message:      parsed.Error.Message,
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &CallError{Kind: KindProviderRefused, Message: "no choices returned"}
	}

	return &Result{
		Text: parsed.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

func classifyOpenAIError(code, errType string) ErrorKind {
	switch code {
	case "invalid_api_key", "account_deactivated":
		return KindAuthMissing
	case "context_length_exceeded":
		return KindTokenLimitExceeded
	case "rate_limit_exceeded", "insufficient_quota":
		return KindProviderRefused
	}
	if errType == "authentication_error" {
		return KindAuthMissing
	}
	return KindProviderRefused
}
