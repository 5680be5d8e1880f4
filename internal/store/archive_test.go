package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func buildRun(id string, started time.Time) RunRecord {
	return RunRecord{
		ID:           id,
		Phase:        "build",
		Model:        "claude-sonnet-4-5",
		Outcome:      "done",
		Turns:        12,
		ToolCalls:    31,
		InputTokens:  4200,
		OutputTokens: 900,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
	}
}

func TestRecordAndGetRun(t *testing.T) {
	a := openTestArchive(t)
	started := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.RecordRun(buildRun("run-1", started)))

	rec, err := a.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "build", rec.Phase)
	assert.Equal(t, "done", rec.Outcome)
	assert.Equal(t, 12, rec.Turns)
	assert.Equal(t, 31, rec.ToolCalls)
	assert.True(t, started.Equal(rec.StartedAt))
}

func TestRecordRunRequiresID(t *testing.T) {
	a := openTestArchive(t)
	err := a.RecordRun(RunRecord{Phase: "build"})
	require.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	a := openTestArchive(t)
	_, err := a.GetRun("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListRunsNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.RecordRun(buildRun("run-old", base)))
	require.NoError(t, a.RecordRun(buildRun("run-new", base.Add(time.Hour))))

	runs, err := a.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-old", runs[1].ID)

	limited, err := a.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-new", limited[0].ID)
}

func TestSnapshotRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	require.NoError(t, a.RecordRun(buildRun("run-1", time.Now().UTC())))

	entities := `{"classes":{},"properties":{},"individuals":{}}`
	ontology := `class("Color").` + "\n" + `individual("Yellow").`
	warnings := []string{`instance_of references undeclared class "Paint"`}
	require.NoError(t, a.SaveSnapshot("run-1", entities, ontology, warnings))

	snap, err := a.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, entities, snap.EntitiesJSON)
	assert.Equal(t, ontology, snap.OntologyText)
	assert.Equal(t, warnings, snap.Warnings)
	assert.False(t, snap.CreatedAt.IsZero())
}

func TestSnapshotNoWarnings(t *testing.T) {
	a := openTestArchive(t)
	require.NoError(t, a.RecordRun(buildRun("run-1", time.Now().UTC())))
	require.NoError(t, a.SaveSnapshot("run-1", "{}", `class("A").`, nil))

	snap, err := a.GetSnapshot("run-1")
	require.NoError(t, err)
	assert.Empty(t, snap.Warnings)
}

func TestAnswersInOrder(t *testing.T) {
	a := openTestArchive(t)
	rec := buildRun("ask-1", time.Now().UTC())
	rec.Phase = "retrieval"
	require.NoError(t, a.RecordRun(rec))

	require.NoError(t, a.SaveAnswer("ask-1", "What colors exist?", "Yellow."))
	require.NoError(t, a.SaveAnswer("ask-1", "Any heavier blocks?", "No."))

	answers, err := a.Answers("ask-1")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "What colors exist?", answers[0].Question)
	assert.Equal(t, "Any heavier blocks?", answers[1].Question)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")

	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.RecordRun(buildRun("run-1", time.Now().UTC())))
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	runs, err := b.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
