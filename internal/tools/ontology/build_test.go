package ontology

import (
	"context"
	"encoding/json"
	"testing"

	"ontoforge/internal/index"
	"ontoforge/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuildCatalog(t *testing.T) (*tools.Registry, *index.Index) {
	t.Helper()
	reg := tools.NewRegistry()
	idx := index.New()
	require.NoError(t, RegisterBuildTools(reg, idx))
	return reg, idx
}

func exec(t *testing.T, reg *tools.Registry, name string, args map[string]any) string {
	t.Helper()
	res, err := reg.Execute(context.Background(), name, args)
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	return res.Result
}

func TestBuildCatalogNames(t *testing.T) {
	reg, _ := newBuildCatalog(t)
	for _, name := range []string{"add_class", "add_property", "add_individual", "get_classes", "get_properties", "get_individuals"} {
		assert.True(t, reg.Has(name), "missing tool %s", name)
	}
	assert.Equal(t, 6, reg.Count())
}

func TestAddClassThenList(t *testing.T) {
	reg, _ := newBuildCatalog(t)

	out := exec(t, reg, "add_class", map[string]any{
		"name":       "Cat",
		"subclassOf": []interface{}{"Animal"},
		"role":       []interface{}{"domain concept"},
	})
	assert.Contains(t, out, `created class "Cat"`)

	listed := exec(t, reg, "get_classes", map[string]any{})
	var classes []index.Class
	require.NoError(t, json.Unmarshal([]byte(listed), &classes))
	require.Len(t, classes, 1)
	assert.Equal(t, "Cat", classes[0].Name)
	assert.Equal(t, []string{"Animal"}, classes[0].SubclassOf)
}

func TestAddClassTwiceKeepsOneEntry(t *testing.T) {
	reg, idx := newBuildCatalog(t)

	exec(t, reg, "add_class", map[string]any{"name": "Color"})
	out := exec(t, reg, "add_class", map[string]any{
		"name":       "Color",
		"subclassOf": []interface{}{"Quality"},
	})
	assert.Contains(t, out, `merged into existing class "Color"`)

	classes := idx.Classes()
	require.Len(t, classes, 1)
	assert.Equal(t, []string{"Quality"}, classes[0].SubclassOf)
}

func TestAddIndividualWithPairs(t *testing.T) {
	reg, idx := newBuildCatalog(t)

	exec(t, reg, "add_individual", map[string]any{
		"name":    "Yellow",
		"classes": []interface{}{"Color"},
		"properties": []interface{}{
			[]interface{}{"name", "yellow"},
			[]interface{}{"wavelength", "580nm"},
		},
	})

	individuals := idx.Individuals()
	require.Len(t, individuals, 1)
	assert.Equal(t, []index.Assertion{
		{Property: "name", Value: "yellow"},
		{Property: "wavelength", Value: "580nm"},
	}, individuals[0].Properties)
}

func TestAddIndividualRejectsMalformedPairs(t *testing.T) {
	reg, _ := newBuildCatalog(t)

	res, err := reg.Execute(context.Background(), "add_individual", map[string]any{
		"name":       "Yellow",
		"properties": []interface{}{[]interface{}{"name"}},
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Contains(t, err.Error(), "exactly 2 elements")
}

func TestAddToolsRejectMissingName(t *testing.T) {
	reg, _ := newBuildCatalog(t)

	for _, tool := range []string{"add_class", "add_property", "add_individual"} {
		_, err := reg.Execute(context.Background(), tool, map[string]any{})
		require.Error(t, err, "tool %s should require name", tool)
	}
}

func TestCrossKindConflictSurfacesAsError(t *testing.T) {
	reg, _ := newBuildCatalog(t)

	exec(t, reg, "add_class", map[string]any{"name": "Color"})
	_, err := reg.Execute(context.Background(), "add_property", map[string]any{"name": "Color"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered as a class")
}

func TestGetToolsReturnEmptyArrays(t *testing.T) {
	reg, _ := newBuildCatalog(t)

	for _, tool := range []string{"get_classes", "get_properties", "get_individuals"} {
		out := exec(t, reg, tool, map[string]any{})
		assert.Equal(t, "[]", out, "tool %s on an empty index", tool)
	}
}
