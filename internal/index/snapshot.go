package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Snapshot is the serialized form of an index, grouped by kind. Keys within
// each group are entity names; the groups still share one namespace.
type Snapshot struct {
	Classes     map[string]Class      `json:"classes"`
	Properties  map[string]Property   `json:"properties"`
	Individuals map[string]Individual `json:"individuals"`
}

// Snapshot captures the current index contents.
func (idx *Index) Snapshot() Snapshot {
	snap := Snapshot{
		Classes:     map[string]Class{},
		Properties:  map[string]Property{},
		Individuals: map[string]Individual{},
	}
	for _, c := range idx.Classes() {
		snap.Classes[c.Name] = c
	}
	for _, p := range idx.Properties() {
		snap.Properties[p.Name] = p
	}
	for _, i := range idx.Individuals() {
		snap.Individuals[i.Name] = i
	}
	return snap
}

// MarshalJSON renders the snapshot with stable two-space indentation.
func (idx *Index) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(idx.Snapshot(), "", "  ")
}

// Save writes the index snapshot to path as JSON.
func (idx *Index) Save(path string) error {
	data, err := idx.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal entities index: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write entities index: %w", err)
	}
	return nil
}

// Load reads a snapshot file and rebuilds an index from it. Classes are
// restored first, then properties, then individuals; a name appearing in
// more than one group violates the shared namespace and fails the load.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities index: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse entities index: %w", err)
	}
	return FromSnapshot(snap)
}

// FromSnapshot rebuilds an index from a snapshot.
func FromSnapshot(snap Snapshot) (*Index, error) {
	idx := New()
	for _, name := range sortedKeys(snap.Classes) {
		c := snap.Classes[name]
		if _, err := idx.AddClass(name, c.SubclassOf, c.Role); err != nil {
			return nil, fmt.Errorf("restore class %q: %w", name, err)
		}
	}
	for _, name := range sortedKeys(snap.Properties) {
		p := snap.Properties[name]
		if _, err := idx.AddProperty(name, p.Role); err != nil {
			return nil, fmt.Errorf("restore property %q: %w", name, err)
		}
	}
	for _, name := range sortedKeys(snap.Individuals) {
		i := snap.Individuals[name]
		if _, err := idx.AddIndividual(name, i.Classes, i.Properties, i.Role); err != nil {
			return nil, fmt.Errorf("restore individual %q: %w", name, err)
		}
	}
	return idx, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Snapshot maps lose insertion order, so restoration is alphabetical.
	sort.Strings(keys)
	return keys
}
