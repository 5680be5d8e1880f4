// Package session runs the agent loop: a bounded conversation between the
// model and one tool catalog, executed strictly sequentially.
package session

import (
	"context"
	"fmt"
	"time"

	"ontoforge/internal/logging"
	"ontoforge/internal/tools"
	"ontoforge/internal/types"

	"github.com/google/uuid"
)

// State is the loop's execution state.
type State string

const (
	StateAwaitingModel State = "AWAITING_MODEL"
	StateExecutingTool State = "EXECUTING_TOOL"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Config bounds one loop run.
type Config struct {
	Phase            Phase
	MaxTurns         int
	TransportRetries int
	RetryBackoff     time.Duration
}

// Loop drives one conversation against one tool catalog. A turn is one
// model response; tool execution between turns is sequential and its
// results are fed back as the next user message.
type Loop struct {
	client    types.LLMClient
	registry  *tools.Registry
	cfg       Config
	sessionID string
	state     State
}

// Outcome is the result of a completed run.
type Outcome struct {
	Text      string
	Turns     int
	ToolCalls int
	Messages  []types.Message
	Usage     types.UsageMetadata
}

// New creates a loop over the given client and catalog.
func New(client types.LLMClient, registry *tools.Registry, cfg Config) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 1
	}
	return &Loop{
		client:    client,
		registry:  registry,
		cfg:       cfg,
		sessionID: uuid.NewString(),
		state:     StateAwaitingModel,
	}
}

// SessionID returns the run's unique identifier.
func (l *Loop) SessionID() string {
	return l.sessionID
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return l.state
}

// Run executes the loop until the model stops calling tools, the turn
// bound is exhausted, or transport gives out. Recoverable failures
// (malformed tool calls, query errors) are fed back into the conversation
// as error tool results; only convergence and transport failures escalate.
func (l *Loop) Run(ctx context.Context, systemPrompt, userPrompt string) (*Outcome, error) {
	start := time.Now()
	audit := logging.AuditWithSession(l.sessionID)
	audit.SessionStart(l.sessionID)
	logging.Session("[%s] run start phase=%s max_turns=%d", l.sessionID, l.cfg.Phase, l.cfg.MaxTurns)

	defs := l.registry.Definitions()
	messages := []types.Message{{Role: types.RoleUser, Content: userPrompt}}
	outcome := &Outcome{}

	for turn := 1; turn <= l.cfg.MaxTurns; turn++ {
		turnStart := time.Now()
		audit.TurnStart(l.sessionID, turn)
		outcome.Turns = turn

		l.state = StateAwaitingModel
		resp, err := l.converse(ctx, systemPrompt, messages, defs)
		if err != nil {
			l.state = StateFailed
			audit.TurnEnd(l.sessionID, turn, time.Since(turnStart).Milliseconds(), false)
			audit.SessionEnd(l.sessionID, turn, time.Since(start).Milliseconds())
			logging.SessionError("[%s] transport failure on turn %d: %v", l.sessionID, turn, err)
			outcome.Messages = messages
			return outcome, NewRunError(l.cfg.Phase, KindTransport, err)
		}

		outcome.Usage.InputTokens += resp.Usage.InputTokens
		outcome.Usage.OutputTokens += resp.Usage.OutputTokens
		outcome.Usage.TotalTokens += resp.Usage.TotalTokens

		if !resp.HasToolCalls() {
			l.state = StateDone
			outcome.Text = resp.Text
			messages = append(messages, types.Message{Role: types.RoleAssistant, Content: resp.Text})
			outcome.Messages = messages
			audit.TurnEnd(l.sessionID, turn, time.Since(turnStart).Milliseconds(), true)
			audit.SessionEnd(l.sessionID, turn, time.Since(start).Milliseconds())
			logging.Session("[%s] done after %d turns, %d tool calls", l.sessionID, turn, outcome.ToolCalls)
			return outcome, nil
		}

		messages = append(messages, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		l.state = StateExecutingTool
		results := make([]types.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, l.executeCall(ctx, audit, call))
		}
		messages = append(messages, types.Message{Role: types.RoleUser, ToolResults: results})
		outcome.ToolCalls += len(resp.ToolCalls)

		audit.TurnEnd(l.sessionID, turn, time.Since(turnStart).Milliseconds(), true)
	}

	l.state = StateFailed
	outcome.Messages = messages
	audit.SessionEnd(l.sessionID, outcome.Turns, time.Since(start).Milliseconds())
	logging.SessionWarn("[%s] turn bound exhausted after %d turns", l.sessionID, l.cfg.MaxTurns)
	return outcome, NewRunError(l.cfg.Phase, KindConvergence,
		fmt.Errorf("model did not converge within %d turns", l.cfg.MaxTurns))
}

// converse calls the model, retrying transport failures with a fixed
// backoff. Retries do not consume turns; a request that stays down through
// every retry escalates.
func (l *Loop) converse(ctx context.Context, systemPrompt string, messages []types.Message, defs []types.ToolDefinition) (*types.LLMToolResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.TransportRetries; attempt++ {
		if attempt > 0 {
			logging.SessionWarn("[%s] retrying model call (attempt %d/%d): %v",
				l.sessionID, attempt, l.cfg.TransportRetries, lastErr)
			select {
			case <-time.After(l.cfg.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := l.client.Converse(ctx, systemPrompt, messages, defs)
		if err != nil {
			lastErr = err
			logging.Audit().LLMCall("", 0, time.Since(start).Milliseconds(), false, err.Error())
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		logging.Audit().LLMCall("", resp.Usage.TotalTokens, time.Since(start).Milliseconds(), true, "")
		return resp, nil
	}
	return nil, lastErr
}

// executeCall dispatches one tool call. Failures become error results fed
// back to the model instead of terminating the run.
func (l *Loop) executeCall(ctx context.Context, audit *logging.AuditLogger, call types.ToolCall) types.ToolResult {
	res, err := l.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		audit.ToolExec(call.Name, "execute", durationOf(res), false, err.Error())
		logging.SessionDebug("[%s] tool %s failed: %v", l.sessionID, call.Name, err)
		return types.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: %v", err),
			IsError:    true,
		}
	}
	audit.ToolExec(call.Name, "execute", durationOf(res), true, "")
	return types.ToolResult{
		ToolCallID: call.ID,
		Content:    res.Result,
	}
}

func durationOf(res *tools.ToolResult) int64 {
	if res == nil {
		return 0
	}
	return res.DurationMs
}
