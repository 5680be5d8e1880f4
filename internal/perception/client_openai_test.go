package perception

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ontoforge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestClient(url string) *OpenAIClient {
	cfg := DefaultOpenAIConfig("test-key")
	cfg.BaseURL = url
	return NewOpenAIClientWithConfig(cfg)
}

func openAITextResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"message":       map[string]interface{}{"role": "assistant", "content": text},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestOpenAIConverseMapsToolCalls(t *testing.T) {
	var gotReq OpenAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]interface{}{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]interface{}{
									"name":      "add_individual",
									"arguments": `{"name":"Yellow","classes":["Color"]}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]interface{}{"prompt_tokens": 200, "completion_tokens": 40, "total_tokens": 240},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newOpenAITestClient(server.URL)

	messages := []types.Message{
		{Role: types.RoleUser, Content: "Add the individual Yellow."},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{ID: "call_0", Name: "get_individuals", Input: map[string]interface{}{}},
		}},
		{Role: types.RoleUser, ToolResults: []types.ToolResult{
			{ToolCallID: "call_0", Content: "[]"},
		}},
	}
	tools := []types.ToolDefinition{
		{Name: "add_individual", Description: "Add an individual", InputSchema: map[string]interface{}{"type": "object"}},
	}

	resp, err := client.Converse(context.Background(), "system prompt", messages, tools)
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "add_individual", resp.ToolCalls[0].Name)
	assert.Equal(t, "Yellow", resp.ToolCalls[0].Input["name"])
	assert.Equal(t, 240, resp.Usage.TotalTokens)

	// System prompt first, then the transcript; tool results flatten into
	// role "tool" messages.
	require.Len(t, gotReq.Messages, 4)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "system prompt", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)

	assistant := gotReq.Messages[2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "get_individuals", assistant.ToolCalls[0].Function.Name)

	toolMsg := gotReq.Messages[3]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_0", toolMsg.ToolCallID)
	assert.Equal(t, "[]", toolMsg.Content)

	require.Len(t, gotReq.Tools, 1)
	assert.Equal(t, "function", gotReq.Tools[0].Type)
	assert.Equal(t, "add_individual", gotReq.Tools[0].Function.Name)
}

func TestOpenAICompleteWithSystem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openAITextResponse("hello back"))
	}))
	defer server.Close()

	client := newOpenAITestClient(server.URL)
	text, err := client.CompleteWithSystem(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", text)
}

func TestOpenAIRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openAITextResponse("recovered"))
	}))
	defer server.Close()

	client := newOpenAITestClient(server.URL)
	text, err := client.CompleteWithSystem(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIMalformedToolArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"role": "assistant",
						"tool_calls": []map[string]interface{}{
							{
								"id":       "call_1",
								"type":     "function",
								"function": map[string]interface{}{"name": "add_class", "arguments": "{not json"},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	}))
	defer server.Close()

	client := newOpenAITestClient(server.URL)
	_, err := client.Converse(context.Background(), "", []types.Message{{Role: types.RoleUser, Content: "x"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed arguments")
}

func TestOpenAIEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := newOpenAITestClient(server.URL)
	_, err := client.CompleteWithSystem(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completion returned")
}
