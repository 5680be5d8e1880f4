// Package ontology compiles the entities index into the Datalog fact
// artifact the retrieval phase queries. The compile pass is a single
// model call with no tools: the index is rendered into the compile
// prompt, the response is parsed as facts, and one retry with the parse
// error is allowed before the pass fails.
package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ontoforge/internal/graph"
	"ontoforge/internal/index"
	"ontoforge/internal/logging"
	"ontoforge/internal/prompt"
	"ontoforge/internal/session"
	"ontoforge/internal/types"
)

// Compiler turns an entities index into a loaded ontology graph.
type Compiler struct {
	client types.LLMClient
	cfg    graph.Config
}

// Result is a successful compile: the parsed facts, the engine loaded
// with them, and integrity findings that did not block the compile.
type Result struct {
	Facts    []types.Fact
	Engine   *graph.Engine
	Warnings []string
	Retried  bool
	Raw      string
}

// NewCompiler builds a compiler that uses client for the compile pass and
// cfg for the engine the facts are loaded into.
func NewCompiler(client types.LLMClient, cfg graph.Config) *Compiler {
	return &Compiler{client: client, cfg: cfg}
}

// Compile renders idx into the compile prompt, parses the model output as
// facts, and loads them. A parse failure is retried once with the error
// text; a second failure, or a fact set the engine rejects, fails the run.
func (c *Compiler) Compile(ctx context.Context, runID string, idx *index.Index) (*Result, error) {
	audit := logging.Audit()
	audit.CompileEvent(logging.AuditCompileStart, runID, true)
	logging.Compiler("[%s] compile pass start: %d entities", runID, idx.Len())

	user, err := c.renderPrompt(idx)
	if err != nil {
		audit.CompileEvent(logging.AuditCompileComplete, runID, false)
		return nil, session.NewRunError(session.PhaseCompile, session.KindCompile, err)
	}

	raw, err := c.client.CompleteWithSystem(ctx, prompt.SystemCompile, user)
	if err != nil {
		audit.CompileEvent(logging.AuditCompileComplete, runID, false)
		return nil, session.NewRunError(session.PhaseCompile, session.KindTransport, err)
	}

	result := &Result{Raw: raw}
	facts, parseErr := graph.ParseFactsText(stripFences(raw))
	if parseErr != nil {
		logging.CompilerWarn("[%s] compile output failed to parse, retrying: %v", runID, parseErr)
		audit.CompileEvent(logging.AuditCompileRetry, runID, false)

		retryUser := user + "\n\n" + prompt.CompileRetry(raw, parseErr.Error())
		raw, err = c.client.CompleteWithSystem(ctx, prompt.SystemCompile, retryUser)
		if err != nil {
			audit.CompileEvent(logging.AuditCompileComplete, runID, false)
			return nil, session.NewRunError(session.PhaseCompile, session.KindTransport, err)
		}
		result.Raw = raw
		result.Retried = true

		facts, parseErr = graph.ParseFactsText(stripFences(raw))
		if parseErr != nil {
			audit.CompileEvent(logging.AuditCompileComplete, runID, false)
			return nil, session.NewRunError(session.PhaseCompile, session.KindCompile,
				fmt.Errorf("compile output failed to parse after retry: %w", parseErr))
		}
	}
	result.Facts = facts

	eng, err := graph.New(c.cfg)
	if err != nil {
		audit.CompileEvent(logging.AuditCompileComplete, runID, false)
		return nil, session.NewRunError(session.PhaseCompile, session.KindCompile, err)
	}
	if err := eng.AddFacts(facts); err != nil {
		audit.CompileEvent(logging.AuditCompileComplete, runID, false)
		return nil, session.NewRunError(session.PhaseCompile, session.KindCompile,
			fmt.Errorf("load compiled facts: %w", err))
	}
	result.Engine = eng

	result.Warnings = IntegrityWarnings(idx, facts)
	for _, w := range result.Warnings {
		logging.CompilerWarn("[%s] integrity: %s", runID, w)
	}

	audit.CompileEvent(logging.AuditCompileComplete, runID, true)
	logging.Compiler("[%s] compile pass done: %d facts, %d warnings, retried=%v",
		runID, len(facts), len(result.Warnings), result.Retried)
	return result, nil
}

// renderPrompt serializes the three index sections into the compile prompt.
func (c *Compiler) renderPrompt(idx *index.Index) (string, error) {
	snap := idx.Snapshot()
	classes, err := json.MarshalIndent(snap.Classes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal classes: %w", err)
	}
	properties, err := json.MarshalIndent(snap.Properties, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	individuals, err := json.MarshalIndent(snap.Individuals, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal individuals: %w", err)
	}
	return prompt.CompileIndex(string(classes), string(properties), string(individuals)), nil
}

// IntegrityWarnings cross-checks the compiled facts against the index.
// Findings are advisory: dangling references and dropped index entries
// degrade answers but do not invalidate the artifact.
func IntegrityWarnings(idx *index.Index, facts []types.Fact) []string {
	declared := map[string]map[string]bool{
		"class":      {},
		"property":   {},
		"individual": {},
	}
	for _, f := range facts {
		if set, ok := declared[f.Predicate]; ok && len(f.Args) == 1 {
			set[types.ArgString(f, 0)] = true
		}
	}

	var warnings []string
	for _, f := range facts {
		switch f.Predicate {
		case "subclass_of":
			if len(f.Args) != 2 {
				continue
			}
			for _, a := range f.Args {
				if name := types.ExtractString(a); !declared["class"][name] {
					warnings = append(warnings, fmt.Sprintf("subclass_of references undeclared class %q", name))
				}
			}
		case "instance_of":
			if len(f.Args) == 2 {
				if name := types.ArgString(f, 1); !declared["class"][name] {
					warnings = append(warnings, fmt.Sprintf("instance_of references undeclared class %q", name))
				}
			}
		case "value_of":
			if len(f.Args) == 3 {
				if name := types.ArgString(f, 1); !declared["property"][name] {
					warnings = append(warnings, fmt.Sprintf("value_of references undeclared property %q", name))
				}
			}
		}
	}

	missing := func(kind index.Kind, set map[string]bool) {
		for _, ref := range idx.Refs(kind) {
			if !set[ref.Name] {
				warnings = append(warnings, fmt.Sprintf("indexed %s %q missing from compiled facts", kind, ref.Name))
			}
		}
	}
	missing(index.KindClass, declared["class"])
	missing(index.KindProperty, declared["property"])
	missing(index.KindIndividual, declared["individual"])

	sort.Strings(warnings)
	return dedupe(warnings)
}

func dedupe(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}

// stripFences removes a markdown code fence wrapper if the model added one
// despite the prompt asking for bare facts.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	// Drop the opening fence (possibly tagged, e.g. ```datalog) and a
	// closing fence if present.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
