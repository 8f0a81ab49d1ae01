package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"issue-scout/internal/llm"
	"issue-scout/internal/shared/telemetry"
)

const providerName = "openai"

var apiURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Completer using OpenAI Chat Completions in JSON mode.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt and returns the JSON content of the first choice.
func (c *Client) Complete(ctx context.Context, prompt llm.Prompt) (llm.Completion, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(prompt.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.User})

	temp := float32(0)
	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: responseFormat{
			Type: "json_object",
		},
	}
	if !isGPT5(c.model) {
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Completion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return llm.Completion{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return llm.Completion{}, fmt.Errorf("openai request timeout: %w", err)
		}
		return llm.Completion{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Completion{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return llm.Completion{}, &llm.StatusError{Provider: providerName, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return llm.Completion{}, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return llm.Completion{}, &llm.StatusError{
			Provider: providerName,
			Status:   resp.StatusCode,
			Message:  fmt.Sprintf("%s (%s)", parsed.Error.Message, parsed.Error.Type),
		}
	}
	if resp.StatusCode >= 400 {
		return llm.Completion{}, &llm.StatusError{Provider: providerName, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if len(parsed.Choices) == 0 {
		return llm.Completion{}, fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return llm.Completion{}, fmt.Errorf("openai response empty content")
	}

	usage := llm.TokenUsage{Provider: providerName, Model: c.model}
	if parsed.Usage != nil {
		usage.InputTokens = parsed.Usage.PromptTokens
		usage.OutputTokens = parsed.Usage.CompletionTokens
	}
	telemetry.Info("llm.response", map[string]any{
		"provider":      providerName,
		"model":         c.model,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
	})
	return llm.Completion{Text: content, Usage: usage}, nil
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Completer = (*Client)(nil)
