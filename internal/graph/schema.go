package graph

// baseSchema declares the ontology vocabulary. Every argument is bound to
// /string so entity names like "Color" stay plain strings instead of being
// promoted to name constants by the insertion heuristics.
//
// ancestor_of is the transitive closure of subclass_of; member_of extends
// instance_of through that closure. Both are computed bottom-up, so cycles
// in subclass_of reach a fixpoint instead of recursing forever.
const baseSchema = `
Decl class(Name) bound [/string].
Decl subclass_of(Class, Super) bound [/string, /string].
Decl property(Name) bound [/string].
Decl individual(Name) bound [/string].
Decl instance_of(Individual, Class) bound [/string, /string].
Decl value_of(Individual, Property, Value) bound [/string, /string, /string].
Decl role_of(Entity, Role) bound [/string, /string].

Decl ancestor_of(Class, Super) bound [/string, /string].
Decl member_of(Individual, Class) bound [/string, /string].

ancestor_of(C, S) :- subclass_of(C, S).
ancestor_of(C, S) :- subclass_of(C, M), ancestor_of(M, S).

member_of(I, C) :- instance_of(I, C).
member_of(I, C) :- instance_of(I, K), ancestor_of(K, C).
`

// basePredicates maps the predicates an ontology source file may assert
// to their arity. Derived predicates are intentionally absent; they are
// computed, never asserted.
var basePredicates = map[string]int{
	"class":       1,
	"subclass_of": 2,
	"property":    1,
	"individual":  1,
	"instance_of": 2,
	"value_of":    3,
	"role_of":     2,
}

// QueryablePredicates lists every predicate a retrieval query may target,
// including the derived ones.
func QueryablePredicates() []string {
	return []string{
		"class", "subclass_of", "property", "individual",
		"instance_of", "value_of", "role_of",
		"ancestor_of", "member_of",
	}
}
