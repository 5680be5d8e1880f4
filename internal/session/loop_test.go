package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ontoforge/internal/index"
	"ontoforge/internal/tools"
	"ontoforge/internal/tools/ontology"
	"ontoforge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedStep is one model turn: either a response or a transport error.
type scriptedStep struct {
	resp *types.LLMToolResponse
	err  error
}

// scriptedClient replays a fixed sequence of model turns and records the
// conversations it was sent.
type scriptedClient struct {
	steps []scriptedStep
	calls int
	seen  [][]types.Message
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	resp, err := c.Converse(ctx, system, []types.Message{{Role: types.RoleUser, Content: user}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *scriptedClient) Converse(ctx context.Context, system string, messages []types.Message, defs []types.ToolDefinition) (*types.LLMToolResponse, error) {
	copied := make([]types.Message, len(messages))
	copy(copied, messages)
	c.seen = append(c.seen, copied)

	if c.calls >= len(c.steps) {
		return nil, fmt.Errorf("scripted client exhausted after %d calls", c.calls)
	}
	step := c.steps[c.calls]
	c.calls++
	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}

func textTurn(text string) scriptedStep {
	return scriptedStep{resp: &types.LLMToolResponse{Text: text, StopReason: "end_turn"}}
}

func toolTurn(calls ...types.ToolCall) scriptedStep {
	return scriptedStep{resp: &types.LLMToolResponse{StopReason: "tool_use", ToolCalls: calls}}
}

func buildRegistry(t *testing.T) (*tools.Registry, *index.Index) {
	t.Helper()
	reg := tools.NewRegistry()
	idx := index.New()
	require.NoError(t, ontology.RegisterBuildTools(reg, idx))
	return reg, idx
}

func loopConfig(maxTurns int) Config {
	return Config{
		Phase:            PhaseBuild,
		MaxTurns:         maxTurns,
		TransportRetries: 1,
		RetryBackoff:     time.Millisecond,
	}
}

func TestRunToolCallsThenDone(t *testing.T) {
	reg, idx := buildRegistry(t)
	client := &scriptedClient{steps: []scriptedStep{
		toolTurn(
			types.ToolCall{ID: "t1", Name: "add_class", Input: map[string]any{"name": "Color"}},
			types.ToolCall{ID: "t2", Name: "add_individual", Input: map[string]any{
				"name":    "Yellow",
				"classes": []interface{}{"Color"},
			}},
		),
		textTurn("Registered the color ontology."),
	}}

	loop := New(client, reg, loopConfig(10))
	outcome, err := loop.Run(context.Background(), "system", "build it")
	require.NoError(t, err)

	assert.Equal(t, StateDone, loop.State())
	assert.Equal(t, "Registered the color ontology.", outcome.Text)
	assert.Equal(t, 2, outcome.Turns)
	assert.Equal(t, 2, outcome.ToolCalls)
	assert.Equal(t, 2, idx.Len())

	// Second model call sees the assistant turn and the tool results.
	require.Len(t, client.seen, 2)
	second := client.seen[1]
	require.Len(t, second, 3)
	assert.Len(t, second[1].ToolCalls, 2)
	require.Len(t, second[2].ToolResults, 2)
	assert.Equal(t, "t1", second[2].ToolResults[0].ToolCallID)
	assert.False(t, second[2].ToolResults[0].IsError)
}

func TestRunMalformedToolCallFedBack(t *testing.T) {
	reg, idx := buildRegistry(t)
	client := &scriptedClient{steps: []scriptedStep{
		toolTurn(types.ToolCall{ID: "t1", Name: "add_class", Input: map[string]any{}}),
		toolTurn(types.ToolCall{ID: "t2", Name: "no_such_tool", Input: map[string]any{}}),
		textTurn("giving up on that tool"),
	}}

	loop := New(client, reg, loopConfig(10))
	outcome, err := loop.Run(context.Background(), "system", "build it")
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Turns)
	assert.Equal(t, 0, idx.Len())

	// Both failures came back as error tool results, not escalations.
	secondCall := client.seen[1]
	results := secondCall[len(secondCall)-1].ToolResults
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "missing required argument")

	thirdCall := client.seen[2]
	results = thirdCall[len(thirdCall)-1].ToolResults
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "tool not found")
}

func TestRunConvergenceError(t *testing.T) {
	reg, _ := buildRegistry(t)
	client := &scriptedClient{steps: []scriptedStep{
		toolTurn(types.ToolCall{ID: "t1", Name: "get_classes", Input: map[string]any{}}),
		toolTurn(types.ToolCall{ID: "t2", Name: "get_classes", Input: map[string]any{}}),
		toolTurn(types.ToolCall{ID: "t3", Name: "get_classes", Input: map[string]any{}}),
	}}

	loop := New(client, reg, loopConfig(2))
	outcome, err := loop.Run(context.Background(), "system", "build it")
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, PhaseBuild, runErr.Phase)
	assert.Equal(t, KindConvergence, runErr.Kind)
	assert.Equal(t, StateFailed, loop.State())
	assert.Equal(t, 2, outcome.Turns)
}

func TestRunTransportErrorRetriedThenEscalated(t *testing.T) {
	reg, _ := buildRegistry(t)
	transportDown := fmt.Errorf("connection refused")
	client := &scriptedClient{steps: []scriptedStep{
		{err: transportDown},
		{err: transportDown},
	}}

	loop := New(client, reg, loopConfig(10))
	_, err := loop.Run(context.Background(), "system", "build it")
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, KindTransport, runErr.Kind)
	assert.ErrorIs(t, err, transportDown)
	// One attempt plus one retry.
	assert.Equal(t, 2, client.calls)
}

func TestRunTransportErrorRecovered(t *testing.T) {
	reg, _ := buildRegistry(t)
	client := &scriptedClient{steps: []scriptedStep{
		{err: fmt.Errorf("gateway timeout")},
		textTurn("recovered fine"),
	}}

	loop := New(client, reg, loopConfig(10))
	outcome, err := loop.Run(context.Background(), "system", "build it")
	require.NoError(t, err)
	assert.Equal(t, "recovered fine", outcome.Text)
	// The retry happened inside turn one.
	assert.Equal(t, 1, outcome.Turns)
}

func TestRunImmediateTextIsDone(t *testing.T) {
	reg, _ := buildRegistry(t)
	client := &scriptedClient{steps: []scriptedStep{textTurn("nothing to register")}}

	loop := New(client, reg, loopConfig(1))
	outcome, err := loop.Run(context.Background(), "system", "build it")
	require.NoError(t, err)
	assert.Equal(t, "nothing to register", outcome.Text)
	assert.Equal(t, 1, outcome.Turns)
	assert.Equal(t, 0, outcome.ToolCalls)
}

func TestRunContextCancellation(t *testing.T) {
	reg, _ := buildRegistry(t)
	client := &scriptedClient{steps: []scriptedStep{
		{err: fmt.Errorf("slow failure")},
		{err: fmt.Errorf("slow failure")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := New(client, reg, Config{Phase: PhaseBuild, MaxTurns: 5, TransportRetries: 3, RetryBackoff: time.Hour})
	_, err := loop.Run(ctx, "system", "build it")
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, KindTransport, runErr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionIDsAreUnique(t *testing.T) {
	reg, _ := buildRegistry(t)
	a := New(&scriptedClient{}, reg, loopConfig(1))
	b := New(&scriptedClient{}, reg, loopConfig(1))
	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.NotEmpty(t, a.SessionID())
}
