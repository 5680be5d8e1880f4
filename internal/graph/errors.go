package graph

import "fmt"

// QueryErrorKind distinguishes queries that never parsed from queries
// that parsed but failed during evaluation.
type QueryErrorKind string

const (
	QuerySyntax    QueryErrorKind = "syntax"
	QueryExecution QueryErrorKind = "execution"
)

// QueryError is the structured failure returned by Engine.Query. Callers
// render it back to the model instead of surfacing a raw fault.
type QueryError struct {
	Kind   QueryErrorKind
	Query  string
	Detail string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s error in query %q: %s", e.Kind, e.Query, e.Detail)
}

func syntaxError(query, format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: QuerySyntax, Query: query, Detail: fmt.Sprintf(format, args...)}
}

func executionError(query, format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: QueryExecution, Query: query, Detail: fmt.Sprintf(format, args...)}
}
