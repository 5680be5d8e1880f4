package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ontoforge/internal/builder"
	"ontoforge/internal/config"
	"ontoforge/internal/index"
	"ontoforge/internal/store"
	"ontoforge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryingClient answers every question by running one query_ontology
// call and echoing its payload.
type queryingClient struct {
	query string
}

func (c *queryingClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("not used")
}

func (c *queryingClient) Converse(ctx context.Context, system string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	last := messages[len(messages)-1]
	if len(last.ToolResults) > 0 {
		return &types.LLMToolResponse{
			Text:       "Result: " + last.ToolResults[0].Content,
			StopReason: "end_turn",
		}, nil
	}
	return &types.LLMToolResponse{
		StopReason: "tool_use",
		ToolCalls: []types.ToolCall{
			{ID: "q1", Name: "query_ontology", Input: map[string]any{"query": c.query}},
		},
	}, nil
}

const artifactFacts = `class("Color").
property("name").
individual("Yellow").
instance_of("Yellow", "Color").
value_of("Yellow", "name", "yellow").`

func writeOutcome(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))

	idx := index.New()
	_, err := idx.AddClass("Color", nil, nil)
	require.NoError(t, err)
	_, err = idx.AddProperty("name", nil)
	require.NoError(t, err)
	_, err = idx.AddIndividual("Yellow", []string{"Color"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Save(filepath.Join(dir, builder.EntitiesFile)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, builder.OntologyFile), []byte(artifactFacts), 0644))
	return dir
}

func retrievalConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.DatabasePath = filepath.Join(t.TempDir(), "archive.db")
	cfg.Session.RetrievalMaxTurns = 5
	cfg.Session.TransportRetries = 0
	cfg.Session.RetryBackoff = "1ms"
	return cfg
}

func TestLoadArtifacts(t *testing.T) {
	dir := writeOutcome(t, filepath.Join(t.TempDir(), "20260504T120000Z"))

	art, err := LoadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, art.Index.Len())
	assert.Len(t, art.Facts, 5)
}

func TestLoadArtifactsMissingIndex(t *testing.T) {
	_, err := LoadArtifacts(t.TempDir())
	require.Error(t, err)
}

func TestLatestOutcome(t *testing.T) {
	outcomes := t.TempDir()
	writeOutcome(t, filepath.Join(outcomes, "20260504T120000Z"))
	writeOutcome(t, filepath.Join(outcomes, "20260601T090000Z"))

	latest, err := LatestOutcome(outcomes)
	require.NoError(t, err)
	assert.Equal(t, "20260601T090000Z", filepath.Base(latest))
}

func TestLatestOutcomeEmpty(t *testing.T) {
	_, err := LatestOutcome(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run a build first")
}

func TestAskAnswersViaQueryTool(t *testing.T) {
	dir := writeOutcome(t, filepath.Join(t.TempDir(), "20260504T120000Z"))
	cfg := retrievalConfig(t)
	archive, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	defer archive.Close()

	r := New(&queryingClient{query: `instance_of(X, "Color")`}, cfg, archive)
	require.NoError(t, r.Load(dir))

	ans, err := r.Ask(context.Background(), "What colors exist?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Yellow")
	assert.Equal(t, 2, ans.Turns)
	assert.Equal(t, 1, ans.ToolCalls)

	r.Finish(nil)

	answers, err := archive.Answers(r.RunID())
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "What colors exist?", answers[0].Question)

	rec, err := archive.GetRun(r.RunID())
	require.NoError(t, err)
	assert.Equal(t, "retrieval", rec.Phase)
	assert.Equal(t, "done", rec.Outcome)
}

func TestAskQueryErrorFedBack(t *testing.T) {
	dir := writeOutcome(t, filepath.Join(t.TempDir(), "20260504T120000Z"))
	cfg := retrievalConfig(t)

	r := New(&queryingClient{query: `sibling_of(X, Y)`}, cfg, nil)
	require.NoError(t, r.Load(dir))

	ans, err := r.Ask(context.Background(), "Any siblings?")
	require.NoError(t, err)
	// The failing query came back as an error payload, not a run failure.
	assert.Contains(t, ans.Text, "execution error")
}

func TestAskWithoutLoad(t *testing.T) {
	cfg := retrievalConfig(t)
	r := New(&queryingClient{}, cfg, nil)
	_, err := r.Ask(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no outcome loaded")
}

func TestLoadSwapsOutcome(t *testing.T) {
	cfg := retrievalConfig(t)
	first := writeOutcome(t, filepath.Join(t.TempDir(), "20260504T120000Z"))

	second := filepath.Join(t.TempDir(), "20260601T090000Z")
	require.NoError(t, os.MkdirAll(second, 0755))
	idx := index.New()
	_, err := idx.AddClass("Shape", nil, nil)
	require.NoError(t, err)
	_, err = idx.AddIndividual("Square", []string{"Shape"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Save(filepath.Join(second, builder.EntitiesFile)))
	facts := `class("Shape").` + "\n" + `individual("Square").` + "\n" + `instance_of("Square", "Shape").`
	require.NoError(t, os.WriteFile(filepath.Join(second, builder.OntologyFile), []byte(facts), 0644))

	r := New(&queryingClient{query: `instance_of(X, "Shape")`}, cfg, nil)
	require.NoError(t, r.Load(first))
	require.NoError(t, r.Load(second))
	assert.Equal(t, second, r.Dir())

	ans, err := r.Ask(context.Background(), "What shapes exist?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Square")
}
