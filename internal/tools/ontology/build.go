package ontology

import (
	"context"
	"encoding/json"
	"fmt"

	"ontoforge/internal/index"
	"ontoforge/internal/logging"
	"ontoforge/internal/tools"
)

// RegisterBuildTools registers the mutating catalog over the entities index.
// Every add merges into an existing entry of the same name rather than
// duplicating it; the reads let the model see what it has registered so far,
// structure included.
func RegisterBuildTools(reg *tools.Registry, idx *index.Index) error {
	catalog := []tools.Tool{
		{
			Name: "add_class",
			Description: "Register a class (a category of things) in the entities index. " +
				"Re-adding an existing class merges the new parents and roles into the one entry.",
			Category: tools.CategoryBuild,
			Schema: tools.ToolSchema{
				Required: []string{"name"},
				Properties: map[string]tools.Property{
					"name": {Type: "string", Description: "Class name, e.g. \"Color\""},
					"subclassOf": {
						Type:        "array",
						Description: "Names of parent classes; they do not need to exist yet",
						Items:       &tools.PropertyItems{Type: "string"},
					},
					"role": {
						Type:        "array",
						Description: "Free-text notes on the role this class plays in the domain",
						Items:       &tools.PropertyItems{Type: "string"},
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				name, err := argString(args, "name")
				if err != nil {
					return "", err
				}
				subclassOf, err := argStringSlice(args, "subclassOf")
				if err != nil {
					return "", err
				}
				role, err := argStringSlice(args, "role")
				if err != nil {
					return "", err
				}
				created, err := idx.AddClass(name, subclassOf, role)
				if err != nil {
					return "", err
				}
				logging.Index("add_class %q created=%v", name, created)
				if created {
					return fmt.Sprintf("created class %q", name), nil
				}
				return fmt.Sprintf("merged into existing class %q", name), nil
			},
		},
		{
			Name: "add_property",
			Description: "Register a property (a named attribute individuals may carry values for) " +
				"in the entities index. Re-adding merges roles into the existing entry.",
			Category: tools.CategoryBuild,
			Schema: tools.ToolSchema{
				Required: []string{"name"},
				Properties: map[string]tools.Property{
					"name": {Type: "string", Description: "Property name, e.g. \"name\" or \"wavelength\""},
					"role": {
						Type:        "array",
						Description: "Free-text notes on the role this property plays in the domain",
						Items:       &tools.PropertyItems{Type: "string"},
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				name, err := argString(args, "name")
				if err != nil {
					return "", err
				}
				role, err := argStringSlice(args, "role")
				if err != nil {
					return "", err
				}
				created, err := idx.AddProperty(name, role)
				if err != nil {
					return "", err
				}
				logging.Index("add_property %q created=%v", name, created)
				if created {
					return fmt.Sprintf("created property %q", name), nil
				}
				return fmt.Sprintf("merged into existing property %q", name), nil
			},
		},
		{
			Name: "add_individual",
			Description: "Register an individual (a concrete instance) in the entities index. " +
				"Classes and properties are referenced by name and may be registered later. " +
				"Re-adding merges classes, properties, and roles into the existing entry.",
			Category: tools.CategoryBuild,
			Schema: tools.ToolSchema{
				Required: []string{"name"},
				Properties: map[string]tools.Property{
					"name": {Type: "string", Description: "Individual name, e.g. \"Yellow\""},
					"classes": {
						Type:        "array",
						Description: "Names of classes this individual is an instance of",
						Items:       &tools.PropertyItems{Type: "string"},
					},
					"properties": {
						Type:        "array",
						Description: "Property assertions as [property, value] pairs, e.g. [[\"name\", \"yellow\"]]",
						Items: &tools.PropertyItems{
							Type:  "array",
							Items: &tools.PropertyItems{Type: "string"},
						},
					},
					"role": {
						Type:        "array",
						Description: "Free-text notes on the role this individual plays in the domain",
						Items:       &tools.PropertyItems{Type: "string"},
					},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				name, err := argString(args, "name")
				if err != nil {
					return "", err
				}
				classes, err := argStringSlice(args, "classes")
				if err != nil {
					return "", err
				}
				properties, err := argPairs(args, "properties")
				if err != nil {
					return "", err
				}
				role, err := argStringSlice(args, "role")
				if err != nil {
					return "", err
				}
				created, err := idx.AddIndividual(name, classes, properties, role)
				if err != nil {
					return "", err
				}
				logging.Index("add_individual %q created=%v", name, created)
				if created {
					return fmt.Sprintf("created individual %q", name), nil
				}
				return fmt.Sprintf("merged into existing individual %q", name), nil
			},
		},
		{
			Name:        "get_classes",
			Description: "List every class registered so far, with parents and roles.",
			Category:    tools.CategoryBuild,
			Schema:      tools.ToolSchema{Properties: map[string]tools.Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return marshalList(idx.Classes())
			},
		},
		{
			Name:        "get_properties",
			Description: "List every property registered so far, with roles.",
			Category:    tools.CategoryBuild,
			Schema:      tools.ToolSchema{Properties: map[string]tools.Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return marshalList(idx.Properties())
			},
		},
		{
			Name:        "get_individuals",
			Description: "List every individual registered so far, with classes, property assertions, and roles.",
			Category:    tools.CategoryBuild,
			Schema:      tools.ToolSchema{Properties: map[string]tools.Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return marshalList(idx.Individuals())
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

// marshalList renders a slice as indented JSON. An empty slice renders as []
// rather than null so the model sees a consistent shape.
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}
