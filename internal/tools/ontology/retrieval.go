package ontology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ontoforge/internal/graph"
	"ontoforge/internal/index"
	"ontoforge/internal/logging"
	"ontoforge/internal/tools"
)

// RegisterRetrievalTools registers the read-only catalog used while
// answering questions. get_entities exposes names and roles only; the
// structure lives in the compiled graph and is reached through
// query_ontology.
func RegisterRetrievalTools(reg *tools.Registry, idx *index.Index, eng *graph.Engine) error {
	catalog := []tools.Tool{
		{
			Name: "get_entities",
			Description: "List entity names and roles from the entities index. " +
				"Structure (parents, instances, values) is not included; use query_ontology for that.",
			Category: tools.CategoryRetrieval,
			Schema: tools.ToolSchema{
				Properties: map[string]tools.Property{
					"classes":     {Type: "boolean", Description: "Include classes (default true)", Default: true},
					"properties":  {Type: "boolean", Description: "Include properties (default true)", Default: true},
					"individuals": {Type: "boolean", Description: "Include individuals (default true)", Default: true},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				includeClasses, err := argBool(args, "classes", true)
				if err != nil {
					return "", err
				}
				includeProperties, err := argBool(args, "properties", true)
				if err != nil {
					return "", err
				}
				includeIndividuals, err := argBool(args, "individuals", true)
				if err != nil {
					return "", err
				}

				out := make(map[string][]index.EntityRef, 3)
				if includeClasses {
					out["classes"] = refsOrEmpty(idx.Refs(index.KindClass))
				}
				if includeProperties {
					out["properties"] = refsOrEmpty(idx.Refs(index.KindProperty))
				}
				if includeIndividuals {
					out["individuals"] = refsOrEmpty(idx.Refs(index.KindIndividual))
				}

				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return "", fmt.Errorf("marshal result: %w", err)
				}
				return string(data), nil
			},
		},
		{
			Name: "query_ontology",
			Description: "Run a Datalog query against the compiled ontology, e.g. " +
				"instance_of(X, \"Color\") or ancestor_of(\"Cat\", S). " +
				"Available predicates: " + strings.Join(graph.QueryablePredicates(), ", ") + ". " +
				"Entity names are double-quoted strings; variables are capitalized.",
			Category: tools.CategoryRetrieval,
			Schema: tools.ToolSchema{
				Required: []string{"query"},
				Properties: map[string]tools.Property{
					"query": {Type: "string", Description: "A single query atom"},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				query, err := argString(args, "query")
				if err != nil {
					return "", err
				}

				res, err := eng.Query(ctx, query)
				if err != nil {
					var qerr *graph.QueryError
					if errors.As(err, &qerr) {
						logging.Graph("query_ontology failed kind=%s query=%q", qerr.Kind, query)
						return "", fmt.Errorf("%s error: %s", qerr.Kind, qerr.Detail)
					}
					return "", err
				}

				logging.Graph("query_ontology rows=%d query=%q", len(res.Rows), query)
				return res.Format(), nil
			},
		},
	}

	for i := range catalog {
		if err := reg.Register(&catalog[i]); err != nil {
			return err
		}
	}
	return nil
}

func refsOrEmpty(refs []index.EntityRef) []index.EntityRef {
	if refs == nil {
		return []index.EntityRef{}
	}
	return refs
}
