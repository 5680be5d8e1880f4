// Package index maintains the entities index built during the modeling
// phase: the named classes, properties, and individuals that the compiled
// ontology is later generated from. All entities share a single namespace
// keyed by name.
package index

import (
	"fmt"
	"sync"
)

// Kind identifies which of the three record shapes an entry holds.
type Kind string

const (
	KindClass      Kind = "class"
	KindProperty   Kind = "property"
	KindIndividual Kind = "individual"
)

// Class is a category of things. SubclassOf names parent classes; the
// referenced names are not required to exist in the index.
type Class struct {
	Name       string   `json:"name"`
	SubclassOf []string `json:"subclassOf,omitempty"`
	Role       []string `json:"role,omitempty"`
}

// Property is a named attribute that individuals may carry values for.
type Property struct {
	Name string   `json:"name"`
	Role []string `json:"role,omitempty"`
}

// Assertion is a property/value pair attached to an individual.
type Assertion struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// Individual is a concrete instance. Classes and assertion properties are
// referenced by name and may be dangling until compile time.
type Individual struct {
	Name       string      `json:"name"`
	Classes    []string    `json:"classes,omitempty"`
	Properties []Assertion `json:"properties,omitempty"`
	Role       []string    `json:"role,omitempty"`
}

// EntityRef is the structure-free view of an entry: name and role only.
type EntityRef struct {
	Name string   `json:"name"`
	Role []string `json:"role,omitempty"`
}

type entry struct {
	kind       Kind
	class      *Class
	property   *Property
	individual *Individual
}

// Index is the mutable entities index. Repeated adds for an existing name of
// the same kind merge list fields into the one existing entry; a name reused
// across kinds is rejected. Safe for concurrent use, though callers execute
// tool calls sequentially.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // insertion order of names
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[string]*entry)}
}

// KindConflictError reports an add whose name is already registered under a
// different entity kind.
type KindConflictError struct {
	Name     string
	Existing Kind
	Added    Kind
}

func (e *KindConflictError) Error() string {
	return fmt.Sprintf("name %q is already registered as a %s, cannot add it as a %s", e.Name, e.Existing, e.Added)
}

// AddClass inserts or merges a class entry. Returns true if a new entry was
// created, false if an existing one was merged into.
func (idx *Index) AddClass(name string, subclassOf, role []string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("class name must not be empty")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if e, ok := idx.entries[name]; ok {
		if e.kind != KindClass {
			return false, &KindConflictError{Name: name, Existing: e.kind, Added: KindClass}
		}
		e.class.SubclassOf = appendMissing(e.class.SubclassOf, subclassOf)
		e.class.Role = appendMissing(e.class.Role, role)
		return false, nil
	}

	idx.entries[name] = &entry{
		kind:  KindClass,
		class: &Class{Name: name, SubclassOf: appendMissing(nil, subclassOf), Role: appendMissing(nil, role)},
	}
	idx.order = append(idx.order, name)
	return true, nil
}

// AddProperty inserts or merges a property entry.
func (idx *Index) AddProperty(name string, role []string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("property name must not be empty")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if e, ok := idx.entries[name]; ok {
		if e.kind != KindProperty {
			return false, &KindConflictError{Name: name, Existing: e.kind, Added: KindProperty}
		}
		e.property.Role = appendMissing(e.property.Role, role)
		return false, nil
	}

	idx.entries[name] = &entry{
		kind:     KindProperty,
		property: &Property{Name: name, Role: appendMissing(nil, role)},
	}
	idx.order = append(idx.order, name)
	return true, nil
}

// AddIndividual inserts or merges an individual entry.
func (idx *Index) AddIndividual(name string, classes []string, properties []Assertion, role []string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("individual name must not be empty")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if e, ok := idx.entries[name]; ok {
		if e.kind != KindIndividual {
			return false, &KindConflictError{Name: name, Existing: e.kind, Added: KindIndividual}
		}
		e.individual.Classes = appendMissing(e.individual.Classes, classes)
		e.individual.Properties = appendMissingAssertions(e.individual.Properties, properties)
		e.individual.Role = appendMissing(e.individual.Role, role)
		return false, nil
	}

	idx.entries[name] = &entry{
		kind: KindIndividual,
		individual: &Individual{
			Name:       name,
			Classes:    appendMissing(nil, classes),
			Properties: appendMissingAssertions(nil, properties),
			Role:       appendMissing(nil, role),
		},
	}
	idx.order = append(idx.order, name)
	return true, nil
}

// Classes returns all class records in insertion order.
func (idx *Index) Classes() []Class {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Class
	for _, name := range idx.order {
		if e := idx.entries[name]; e.kind == KindClass {
			out = append(out, copyClass(*e.class))
		}
	}
	return out
}

// Properties returns all property records in insertion order.
func (idx *Index) Properties() []Property {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Property
	for _, name := range idx.order {
		if e := idx.entries[name]; e.kind == KindProperty {
			out = append(out, copyProperty(*e.property))
		}
	}
	return out
}

// Individuals returns all individual records in insertion order.
func (idx *Index) Individuals() []Individual {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Individual
	for _, name := range idx.order {
		if e := idx.entries[name]; e.kind == KindIndividual {
			out = append(out, copyIndividual(*e.individual))
		}
	}
	return out
}

// Refs returns name-and-role views for the requested kinds, insertion order,
// with no structural fields.
func (idx *Index) Refs(kind Kind) []EntityRef {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []EntityRef
	for _, name := range idx.order {
		e := idx.entries[name]
		if e.kind != kind {
			continue
		}
		switch kind {
		case KindClass:
			out = append(out, EntityRef{Name: name, Role: appendMissing(nil, e.class.Role)})
		case KindProperty:
			out = append(out, EntityRef{Name: name, Role: appendMissing(nil, e.property.Role)})
		case KindIndividual:
			out = append(out, EntityRef{Name: name, Role: appendMissing(nil, e.individual.Role)})
		}
	}
	return out
}

// Len returns the total number of entries across all kinds.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Stats returns per-kind entry counts keyed by kind name, for build
// summaries and logging.
func (idx *Index) Stats() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	stats := map[string]int{}
	for _, e := range idx.entries {
		stats[string(e.kind)]++
	}
	return stats
}

// appendMissing appends the elements of add that dst does not already
// contain, preserving first-seen order and skipping empty strings.
func appendMissing(dst, add []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

func appendMissingAssertions(dst, add []Assertion) []Assertion {
	type key struct{ p, v string }
	seen := make(map[key]struct{}, len(dst))
	for _, a := range dst {
		seen[key{a.Property, a.Value}] = struct{}{}
	}
	for _, a := range add {
		if a.Property == "" {
			continue
		}
		k := key{a.Property, a.Value}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, a)
	}
	return dst
}

func copyClass(c Class) Class {
	c.SubclassOf = append([]string(nil), c.SubclassOf...)
	c.Role = append([]string(nil), c.Role...)
	return c
}

func copyProperty(p Property) Property {
	p.Role = append([]string(nil), p.Role...)
	return p
}

func copyIndividual(i Individual) Individual {
	i.Classes = append([]string(nil), i.Classes...)
	i.Properties = append([]Assertion(nil), i.Properties...)
	i.Role = append([]string(nil), i.Role...)
	return i
}
