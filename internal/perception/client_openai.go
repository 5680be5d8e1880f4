package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ontoforge/internal/logging"
	"ontoforge/internal/types"
)

// OpenAIClient implements LLMClient for the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 10 * time.Minute,
	}
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom config.
func NewOpenAIClientWithConfig(config OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// CompleteWithSystem sends a single prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.Converse(ctx, systemPrompt, []types.Message{
		{Role: types.RoleUser, Content: userPrompt},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Converse sends a full conversation with tool definitions and returns the
// model's next turn.
func (c *OpenAIClient) Converse(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[OpenAI] Converse: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	if c.apiKey == "" {
		logging.APIError("[OpenAI] Converse: API key not configured")
		return nil, fmt.Errorf("API key not configured")
	}

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	openaiTools := make([]OpenAITool, len(tools))
	for i, t := range tools {
		openaiTools[i] = OpenAITool{
			Type: "function",
			Function: OpenAIFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(systemPrompt, messages),
		MaxTokens:   8192,
		Temperature: 0.1,
		Tools:       openaiTools,
	}

	// Retry loop for rate limits and transient errors
	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			logging.APIError("[OpenAI] Converse: API returned status %d", resp.StatusCode)
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var openaiResp OpenAIResponse
		if err := json.Unmarshal(body, &openaiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		if openaiResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", openaiResp.Error.Message)
		}

		if len(openaiResp.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		choice := openaiResp.Choices[0]
		result := &types.LLMToolResponse{
			Text:       strings.TrimSpace(choice.Message.Content),
			StopReason: choice.FinishReason,
			Usage: types.UsageMetadata{
				InputTokens:  openaiResp.Usage.PromptTokens,
				OutputTokens: openaiResp.Usage.CompletionTokens,
				TotalTokens:  openaiResp.Usage.TotalTokens,
			},
		}

		for _, call := range choice.Message.ToolCalls {
			input := map[string]interface{}{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
					return nil, fmt.Errorf("tool call %s has malformed arguments: %w", call.Function.Name, err)
				}
			}
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    call.ID,
				Name:  call.Function.Name,
				Input: input,
			})
		}

		logging.API("[OpenAI] Converse: completed in %v text_len=%d tool_calls=%d stop_reason=%s",
			time.Since(startTime), len(result.Text), len(result.ToolCalls), result.StopReason)
		return result, nil
	}

	logging.APIError("[OpenAI] Converse: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// toOpenAIMessages flattens transcript messages into the chat completions
// shape: tool calls ride on the assistant message, tool results become one
// role "tool" message each.
func toOpenAIMessages(systemPrompt string, messages []types.Message) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(messages)+1)
	out = append(out, OpenAIMessage{Role: "system", Content: systemPrompt})

	for _, msg := range messages {
		switch {
		case len(msg.ToolCalls) > 0:
			calls := make([]OpenAIToolCall, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Input)
				calls[i] = OpenAIToolCall{
					ID:   call.ID,
					Type: "function",
					Function: OpenAIFunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				}
			}
			out = append(out, OpenAIMessage{Role: msg.Role, Content: msg.Content, ToolCalls: calls})

		case len(msg.ToolResults) > 0:
			for _, res := range msg.ToolResults {
				out = append(out, OpenAIMessage{
					Role:       "tool",
					Content:    res.Content,
					ToolCallID: res.ToolCallID,
				})
			}

		default:
			out = append(out, OpenAIMessage{Role: msg.Role, Content: msg.Content})
		}
	}
	return out
}

// SetModel changes the model used for completions.
func (c *OpenAIClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	return c.model
}
