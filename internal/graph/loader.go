package graph

import (
	"fmt"
	"strings"

	"ontoforge/internal/types"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// ParseFactsText parses model-authored ontology source into facts over the
// base vocabulary. Only ground facts are accepted: rules and declarations
// belong to the engine schema, not to compiled output. Errors carry enough
// detail to be fed back for a rewrite.
func ParseFactsText(text string) ([]types.Fact, error) {
	unit, err := parse.Unit(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse ontology source: %v", err)
	}

	if len(unit.Decls) > 0 {
		return nil, fmt.Errorf("ontology source must not contain declarations (found %d); emit only facts", len(unit.Decls))
	}

	var facts []types.Fact
	for _, clause := range unit.Clauses {
		if len(clause.Premises) > 0 {
			return nil, fmt.Errorf("ontology source must not contain rules (found one for %s); emit only facts", clause.Head.Predicate.Symbol)
		}

		pred := clause.Head.Predicate.Symbol
		arity, known := basePredicates[pred]
		if !known {
			return nil, fmt.Errorf("unknown predicate %s; allowed: %s", pred, strings.Join(baseVocabulary(), ", "))
		}
		if clause.Head.Predicate.Arity != arity {
			return nil, fmt.Errorf("predicate %s expects %d args, got %d", pred, arity, clause.Head.Predicate.Arity)
		}

		args := make([]interface{}, len(clause.Head.Args))
		for i, term := range clause.Head.Args {
			constant, ok := term.(ast.Constant)
			if !ok {
				return nil, fmt.Errorf("argument %d of %s must be a constant, got %v", i+1, pred, term)
			}
			if constant.Type == ast.NameType {
				// Name constants normalize to their bare text so
				// /yellow and "yellow" denote the same entity.
				args[i] = types.StripAtomPrefix(constant.Symbol)
				continue
			}
			args[i] = fmt.Sprintf("%v", constantToInterface(constant))
		}
		facts = append(facts, types.Fact{Predicate: pred, Args: args})
	}

	return facts, nil
}

// RenderFacts renders facts back to normalized ontology source, one fact
// per line. Used to persist the compiled artifact in canonical form.
func RenderFacts(facts []types.Fact) string {
	var b strings.Builder
	for _, fact := range facts {
		b.WriteString(fact.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func baseVocabulary() []string {
	out := make([]string, 0, len(basePredicates))
	for _, p := range QueryablePredicates() {
		if _, ok := basePredicates[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
