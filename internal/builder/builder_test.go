package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ontoforge/internal/config"
	"ontoforge/internal/session"
	"ontoforge/internal/store"
	"ontoforge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves scripted Converse turns to the build loops and
// scripted CompleteWithSystem responses to the compile pass.
type fakeClient struct {
	turns       []*types.LLMToolResponse
	turnIdx     int
	completions []string
	complIdx    int
}

func (c *fakeClient) Converse(ctx context.Context, system string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if c.turnIdx >= len(c.turns) {
		return nil, fmt.Errorf("fake client out of turns after %d", c.turnIdx)
	}
	resp := c.turns[c.turnIdx]
	c.turnIdx++
	return resp, nil
}

func (c *fakeClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if c.complIdx >= len(c.completions) {
		return "", fmt.Errorf("fake client out of completions after %d", c.complIdx)
	}
	out := c.completions[c.complIdx]
	c.complIdx++
	return out, nil
}

const compiledFacts = `class("Color").
property("name").
individual("Yellow").
instance_of("Yellow", "Color").
value_of("Yellow", "name", "yellow").`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Store.OutcomesDir = filepath.Join(dir, "outcomes")
	cfg.Store.DatabasePath = filepath.Join(dir, "archive.db")
	cfg.Session.BuildMaxTurns = 5
	cfg.Session.TransportRetries = 0
	cfg.Session.RetryBackoff = "1ms"
	return cfg
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func colorBuildTurns() []*types.LLMToolResponse {
	return []*types.LLMToolResponse{
		{StopReason: "tool_use", ToolCalls: []types.ToolCall{
			{ID: "t1", Name: "add_class", Input: map[string]any{"name": "Color"}},
			{ID: "t2", Name: "add_property", Input: map[string]any{"name": "name"}},
			{ID: "t3", Name: "add_individual", Input: map[string]any{
				"name":       "Yellow",
				"classes":    []interface{}{"Color"},
				"properties": []interface{}{[]interface{}{"name", "yellow"}},
			}},
		}},
		{Text: "Registered one class, one property, one individual.", StopReason: "end_turn"},
	}
}

func TestBuildEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	archive, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	defer archive.Close()

	client := &fakeClient{turns: colorBuildTurns(), completions: []string{compiledFacts}}
	b := New(client, cfg, archive)

	src := writeSource(t, "colors.txt", "Yellow is a color named yellow.")
	res, err := b.Build(context.Background(), []string{src})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Index.Len())
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 3, res.ToolCalls)
	assert.Len(t, res.Facts, 5)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Summaries, 1)
	assert.Contains(t, res.Summaries[0], "Registered")

	// Artifacts on disk.
	entities, err := os.ReadFile(filepath.Join(res.OutcomeDir, EntitiesFile))
	require.NoError(t, err)
	assert.Contains(t, string(entities), `"Yellow"`)
	ontologyText, err := os.ReadFile(filepath.Join(res.OutcomeDir, OntologyFile))
	require.NoError(t, err)
	assert.Contains(t, string(ontologyText), `instance_of("Yellow", "Color")`)

	// Run and snapshot archived.
	rec, err := archive.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "build", rec.Phase)
	assert.Equal(t, "done", rec.Outcome)
	assert.Equal(t, 3, rec.ToolCalls)

	snap, err := archive.GetSnapshot(res.RunID)
	require.NoError(t, err)
	assert.Contains(t, snap.OntologyText, `class("Color")`)
}

func TestBuildJSONSourceUsesTaxonomyPrompt(t *testing.T) {
	cfg := testConfig(t)
	client := &fakeClient{turns: colorBuildTurns(), completions: []string{compiledFacts}}
	b := New(client, cfg, nil)

	src := writeSource(t, "tree.json", `{"category": "Colors", "items": ["Yellow"]}`)
	res, err := b.Build(context.Background(), []string{src})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Index.Len())
}

func TestBuildConvergenceFailureArchived(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.BuildMaxTurns = 1
	archive, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	defer archive.Close()

	// The model keeps calling tools and never stops.
	client := &fakeClient{turns: []*types.LLMToolResponse{
		{StopReason: "tool_use", ToolCalls: []types.ToolCall{
			{ID: "t1", Name: "get_classes", Input: map[string]any{}},
		}},
	}}
	b := New(client, cfg, archive)

	src := writeSource(t, "colors.txt", "some text")
	_, err = b.Build(context.Background(), []string{src})
	require.Error(t, err)

	var runErr *session.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, session.KindConvergence, runErr.Kind)

	runs, listErr := archive.ListRuns(0)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Outcome)
	assert.Contains(t, runs[0].Error, "did not converge")
}

func TestBuildNoSources(t *testing.T) {
	cfg := testConfig(t)
	b := New(&fakeClient{}, cfg, nil)
	_, err := b.Build(context.Background(), nil)
	require.Error(t, err)
}

func TestLoadSource(t *testing.T) {
	t.Run("raw text", func(t *testing.T) {
		path := writeSource(t, "notes.txt", "plain prose")
		src, err := LoadSource(path)
		require.NoError(t, err)
		assert.False(t, src.IsJSON)
		assert.Equal(t, "plain prose", src.Content)
	})

	t.Run("valid json is re-rendered", func(t *testing.T) {
		path := writeSource(t, "tree.json", `{"b":1,  "a":2}`)
		src, err := LoadSource(path)
		require.NoError(t, err)
		assert.True(t, src.IsJSON)
		assert.Contains(t, src.Content, "\n")
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		path := writeSource(t, "bad.json", `{"a":`)
		_, err := LoadSource(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSource(filepath.Join(t.TempDir(), "absent.txt"))
		require.Error(t, err)
	})
}
