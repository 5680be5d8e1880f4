// Package retrieval answers questions over a compiled ontology. It loads
// the artifacts of a build outcome, binds the read-only tool catalog to
// them, and runs one bounded agent loop per question. Artifacts can be
// hot-swapped between questions; a question in flight always sees the
// graph it started with.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ontoforge/internal/builder"
	"ontoforge/internal/config"
	"ontoforge/internal/graph"
	"ontoforge/internal/index"
	"ontoforge/internal/logging"
	"ontoforge/internal/prompt"
	"ontoforge/internal/session"
	"ontoforge/internal/store"
	"ontoforge/internal/tools"
	ontotools "ontoforge/internal/tools/ontology"
	"ontoforge/internal/types"

	"github.com/google/uuid"
)

// Artifacts is one loaded build outcome.
type Artifacts struct {
	Dir   string
	Index *index.Index
	Facts []types.Fact
}

// LoadArtifacts reads the entities index and the compiled facts from an
// outcome directory.
func LoadArtifacts(dir string) (*Artifacts, error) {
	idx, err := index.Load(filepath.Join(dir, builder.EntitiesFile))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, builder.OntologyFile))
	if err != nil {
		return nil, fmt.Errorf("read ontology artifact: %w", err)
	}
	facts, err := graph.ParseFactsText(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse ontology artifact: %w", err)
	}
	return &Artifacts{Dir: dir, Index: idx, Facts: facts}, nil
}

// LatestOutcome returns the newest outcome directory under outcomesDir.
// Outcome directory names are UTC timestamps, so lexical order is
// chronological.
func LatestOutcome(outcomesDir string) (string, error) {
	entries, err := os.ReadDir(outcomesDir)
	if err != nil {
		return "", fmt.Errorf("read outcomes dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no build outcomes under %s; run a build first", outcomesDir)
	}
	sort.Strings(names)
	return filepath.Join(outcomesDir, names[len(names)-1]), nil
}

// Answer is the outcome of one question.
type Answer struct {
	Question  string
	Text      string
	Turns     int
	ToolCalls int
}

// Retriever runs the retrieval phase over one loaded outcome at a time.
type Retriever struct {
	client  types.LLMClient
	cfg     *config.Config
	archive *store.Archive

	mu       sync.RWMutex
	dir      string
	registry *tools.Registry

	runID     string
	started   time.Time
	turns     int
	toolCalls int
	usage     types.UsageMetadata
}

// New builds a retriever. The archive may be nil; answers are then not
// recorded.
func New(client types.LLMClient, cfg *config.Config, archive *store.Archive) *Retriever {
	return &Retriever{
		client:  client,
		cfg:     cfg,
		archive: archive,
		runID:   uuid.NewString(),
		started: time.Now(),
	}
}

// RunID identifies this retrieval run in the archive.
func (r *Retriever) RunID() string {
	return r.runID
}

// Load reads the artifacts from dir and swaps them in as a whole. Safe to
// call between questions; a question already running keeps the catalog it
// started with.
func (r *Retriever) Load(dir string) error {
	art, err := LoadArtifacts(dir)
	if err != nil {
		return err
	}

	eng, err := graph.New(graph.Config{
		FactLimit:    r.cfg.Graph.FactLimit,
		QueryTimeout: r.cfg.GetQueryTimeout(),
	})
	if err != nil {
		return err
	}
	if err := eng.AddFacts(art.Facts); err != nil {
		return fmt.Errorf("load ontology artifact: %w", err)
	}

	reg := tools.NewRegistry()
	if err := ontotools.RegisterRetrievalTools(reg, art.Index, eng); err != nil {
		return err
	}

	r.mu.Lock()
	r.dir = dir
	r.registry = reg
	r.mu.Unlock()

	logging.Session("[%s] loaded outcome %s: %d entities, %d facts",
		r.runID, dir, art.Index.Len(), len(art.Facts))
	return nil
}

// Dir returns the currently loaded outcome directory.
func (r *Retriever) Dir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dir
}

// Ask runs one bounded loop for a single question.
func (r *Retriever) Ask(ctx context.Context, question string) (*Answer, error) {
	r.mu.RLock()
	reg := r.registry
	r.mu.RUnlock()
	if reg == nil {
		return nil, fmt.Errorf("no outcome loaded")
	}

	loop := session.New(r.client, reg, session.Config{
		Phase:            session.PhaseRetrieval,
		MaxTurns:         r.cfg.Session.RetrievalMaxTurns,
		TransportRetries: r.cfg.Session.TransportRetries,
		RetryBackoff:     r.cfg.GetRetryBackoff(),
	})

	outcome, err := loop.Run(ctx, prompt.SystemRetrieval, prompt.AnswerQuestion(question))
	if outcome != nil {
		r.turns += outcome.Turns
		r.toolCalls += outcome.ToolCalls
		r.usage.InputTokens += outcome.Usage.InputTokens
		r.usage.OutputTokens += outcome.Usage.OutputTokens
		r.usage.TotalTokens += outcome.Usage.TotalTokens
	}
	if err != nil {
		return nil, err
	}

	ans := &Answer{
		Question:  question,
		Text:      outcome.Text,
		Turns:     outcome.Turns,
		ToolCalls: outcome.ToolCalls,
	}
	if r.archive != nil {
		if err := r.archive.SaveAnswer(r.runID, question, ans.Text); err != nil {
			logging.StoreError("archive answer for run %s: %v", r.runID, err)
		}
	}
	return ans, nil
}

// Watch starts an artifact watcher on the loaded outcome directory and
// reloads the whole outcome when the compiled facts change on disk.
func (r *Retriever) Watch(ctx context.Context) (*graph.ArtifactWatcher, error) {
	dir := r.Dir()
	if dir == "" {
		return nil, fmt.Errorf("no outcome loaded")
	}
	w, err := graph.NewArtifactWatcher(dir, func(ctx context.Context, path string) {
		if err := r.Load(dir); err != nil {
			logging.SessionError("[%s] reload after change to %s: %v", r.runID, path, err)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Finish records the retrieval run in the archive.
func (r *Retriever) Finish(runErr error) {
	if r.archive == nil {
		return
	}
	rec := store.RunRecord{
		ID:           r.runID,
		Phase:        string(session.PhaseRetrieval),
		Model:        r.cfg.LLM.Model,
		Outcome:      "done",
		Turns:        r.turns,
		ToolCalls:    r.toolCalls,
		InputTokens:  r.usage.InputTokens,
		OutputTokens: r.usage.OutputTokens,
		StartedAt:    r.started,
		FinishedAt:   time.Now(),
	}
	if runErr != nil {
		rec.Outcome = "failed"
		rec.Error = runErr.Error()
	}
	if err := r.archive.RecordRun(rec); err != nil {
		logging.StoreError("record retrieval run %s: %v", r.runID, err)
	}
}
