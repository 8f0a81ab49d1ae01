// Package anthropic implements llm.Completer on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"issue-scout/internal/llm"
	"issue-scout/internal/shared/telemetry"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 2048
)

// Client implements llm.Completer using the Anthropic SDK.
type Client struct {
	client anthropic.Client
	model  string
}

// NewClient constructs a client. Extra options are appended after the API key; the SDK's
// own retries are disabled so llm.WithRetry stays the single retry policy.
func NewClient(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Anthropic")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Client{
		client: anthropic.NewClient(all...),
		model:  model,
	}, nil
}

// Complete sends the prompt as a single user turn and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, prompt llm.Prompt) (llm.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   defaultMaxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if strings.TrimSpace(prompt.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return llm.Completion{}, &llm.StatusError{Provider: providerName, Status: apiErr.StatusCode, Message: apiErr.Error()}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.Completion{}, fmt.Errorf("anthropic request timeout: %w", err)
		}
		return llm.Completion{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return llm.Completion{}, fmt.Errorf("anthropic response empty content")
	}

	usage := llm.TokenUsage{
		Provider:     providerName,
		Model:        c.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	telemetry.Info("llm.response", map[string]any{
		"provider":      providerName,
		"model":         c.model,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"stop_reason":   string(resp.StopReason),
	})
	return llm.Completion{Text: content, Usage: usage}, nil
}

var _ llm.Completer = (*Client)(nil)
