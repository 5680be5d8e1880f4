// Package builder orchestrates a full build run: one bounded agent loop
// per source document to populate the entities index, a compile pass to
// turn the index into the fact artifact, and persistence of the outcome.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ontoforge/internal/config"
	"ontoforge/internal/graph"
	"ontoforge/internal/index"
	"ontoforge/internal/logging"
	"ontoforge/internal/ontology"
	"ontoforge/internal/prompt"
	"ontoforge/internal/session"
	"ontoforge/internal/store"
	"ontoforge/internal/tools"
	ontotools "ontoforge/internal/tools/ontology"
	"ontoforge/internal/types"

	"github.com/google/uuid"
)

// EntitiesFile and OntologyFile are the artifact names written into each
// outcome directory.
const (
	EntitiesFile = "entities_index.json"
	OntologyFile = "ontology.mg"
)

// Builder runs the build phase.
type Builder struct {
	client  types.LLMClient
	cfg     *config.Config
	archive *store.Archive
}

// Result describes a completed build run.
type Result struct {
	RunID      string
	OutcomeDir string
	Index      *index.Index
	Facts      []types.Fact
	Warnings   []string
	Turns      int
	ToolCalls  int
	Usage      types.UsageMetadata
	Summaries  []string
}

// Source is one loaded input document.
type Source struct {
	Path    string
	Content string
	IsJSON  bool
}

// New builds a Builder. The archive may be nil; runs are then not recorded.
func New(client types.LLMClient, cfg *config.Config, archive *store.Archive) *Builder {
	return &Builder{client: client, cfg: cfg, archive: archive}
}

// LoadSource reads one input document. Files ending in .json must contain
// valid JSON and are re-rendered with stable indentation; everything else
// is taken as raw text.
func LoadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read source %s: %w", path, err)
	}
	src := Source{Path: path, Content: string(data)}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return Source{}, fmt.Errorf("source %s is not valid JSON: %w", path, err)
		}
		rendered, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return Source{}, fmt.Errorf("render source %s: %w", path, err)
		}
		src.Content = string(rendered)
		src.IsJSON = true
	}
	return src, nil
}

// Build runs the whole build phase over the given source files and
// persists the outcome. On failure the run is still archived with its
// error before the error is returned.
func (b *Builder) Build(ctx context.Context, sourcePaths []string) (*Result, error) {
	if len(sourcePaths) == 0 {
		return nil, fmt.Errorf("no source files given")
	}

	runID := uuid.NewString()
	started := time.Now()
	result := &Result{RunID: runID, Index: index.New()}
	logging.Session("[%s] build run start: %d sources", runID, len(sourcePaths))

	reg := tools.NewRegistry()
	if err := ontotools.RegisterBuildTools(reg, result.Index); err != nil {
		return nil, b.finish(result, started, err)
	}

	for _, path := range sourcePaths {
		src, err := LoadSource(path)
		if err != nil {
			return nil, b.finish(result, started, err)
		}
		if err := b.runSource(ctx, reg, src, result); err != nil {
			return nil, b.finish(result, started, err)
		}
	}

	compiled, err := b.compile(ctx, runID, result.Index)
	if err != nil {
		return nil, b.finish(result, started, err)
	}
	result.Facts = compiled.Facts
	result.Warnings = compiled.Warnings

	if err := b.persist(result, started); err != nil {
		return nil, b.finish(result, started, err)
	}

	logging.Session("[%s] build run done: %d entities, %d facts, dir=%s",
		runID, result.Index.Len(), len(result.Facts), result.OutcomeDir)
	return result, b.finish(result, started, nil)
}

// runSource runs one bounded build loop over a single source document.
func (b *Builder) runSource(ctx context.Context, reg *tools.Registry, src Source, result *Result) error {
	user := prompt.ParagraphSource(src.Content)
	if src.IsJSON {
		user = prompt.TaxonomySource(src.Content)
	}

	loop := session.New(b.client, reg, session.Config{
		Phase:            session.PhaseBuild,
		MaxTurns:         b.cfg.Session.BuildMaxTurns,
		TransportRetries: b.cfg.Session.TransportRetries,
		RetryBackoff:     b.cfg.GetRetryBackoff(),
	})

	logging.Session("source %s: loop start (json=%v)", src.Path, src.IsJSON)
	outcome, err := loop.Run(ctx, prompt.SystemBuild, user)
	if outcome != nil {
		result.Turns += outcome.Turns
		result.ToolCalls += outcome.ToolCalls
		result.Usage.InputTokens += outcome.Usage.InputTokens
		result.Usage.OutputTokens += outcome.Usage.OutputTokens
		result.Usage.TotalTokens += outcome.Usage.TotalTokens
	}
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Path, err)
	}
	result.Summaries = append(result.Summaries, outcome.Text)
	return nil
}

func (b *Builder) compile(ctx context.Context, runID string, idx *index.Index) (*ontology.Result, error) {
	comp := ontology.NewCompiler(b.client, graph.Config{
		FactLimit:    b.cfg.Graph.FactLimit,
		QueryTimeout: b.cfg.GetQueryTimeout(),
	})
	return comp.Compile(ctx, runID, idx)
}

// persist writes the two artifacts into a fresh timestamped outcome dir.
func (b *Builder) persist(result *Result, started time.Time) error {
	dir := filepath.Join(b.cfg.Store.OutcomesDir, started.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create outcome dir: %w", err)
	}

	if err := result.Index.Save(filepath.Join(dir, EntitiesFile)); err != nil {
		return err
	}
	ontologyText := graph.RenderFacts(result.Facts)
	if err := os.WriteFile(filepath.Join(dir, OntologyFile), []byte(ontologyText), 0644); err != nil {
		return fmt.Errorf("write ontology artifact: %w", err)
	}

	result.OutcomeDir = dir
	return nil
}

// finish archives the run and returns runErr unchanged.
func (b *Builder) finish(result *Result, started time.Time, runErr error) error {
	if b.archive == nil {
		return runErr
	}

	rec := store.RunRecord{
		ID:           result.RunID,
		Phase:        string(session.PhaseBuild),
		Model:        b.cfg.LLM.Model,
		Outcome:      "done",
		Turns:        result.Turns,
		ToolCalls:    result.ToolCalls,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if runErr != nil {
		rec.Outcome = "failed"
		rec.Error = runErr.Error()
	}
	if err := b.archive.RecordRun(rec); err != nil {
		logging.StoreError("record build run %s: %v", result.RunID, err)
	}

	if runErr == nil {
		entities, err := result.Index.MarshalJSON()
		if err == nil {
			err = b.archive.SaveSnapshot(result.RunID, string(entities),
				graph.RenderFacts(result.Facts), result.Warnings)
		}
		if err != nil {
			logging.StoreError("archive snapshot for run %s: %v", result.RunID, err)
		}
	}
	return runErr
}
