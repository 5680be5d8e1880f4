// Package prompt holds the prompt templates for the build, compile, and
// retrieval phases. Templates are plain constants assembled with fmt so the
// full text sent to the model is auditable in one place.
package prompt

import (
	"fmt"
	"strings"
)

// SystemBuild frames the modeling phase: the model reads source material and
// registers entities through the build catalog.
const SystemBuild = `## Context
You are an ontology engineering expert. Build an ontology from the data you
are given, one entity at a time, using the provided tools.

An ontology consists of:
- **Classes**: group individuals; may have parent classes (subclassOf).
- **Properties**: named attributes linking individuals to values.
- **Individuals**: concrete instances that belong to classes and carry
  property values.

Each class, property, and individual name is a unique identifier shared
across all three kinds. Every entity may carry free-text roles describing
what it represents in the domain.

## Task
From the provided data:

1. Register relevant **classes** with add_class.
2. Register **properties** that link the data with add_property.
3. Register **individuals** with their classes and property values with
   add_individual.

Unify equivalent terms (e.g. "Kg" = "kg", "MiniSplit" = "Mini Split").
Do **not** omit any data. Use get_classes, get_properties, and
get_individuals to review what you have registered so far. When every
entity in the data is registered, reply with a short summary and stop
calling tools.`

// TaxonomySource renders the build prompt for JSON product-tree input.
func TaxonomySource(data string) string {
	return fmt.Sprintf(`## Scenario
The data describes a **product taxonomy** and its features.

- **Classes**: product categories (e.g. "Retaining Walls").
  All should be subclasses of a top-level Product class.
- **Properties**: product features (e.g. "Block weight (kg)", "Color").
  Generalize similar features for consistency across products.
- **Individuals**: specific products (tree leaves with an ID), each
  classified under its category and linked to its features.

Derive the ontology from the following JSON product tree:
`+"```%s```", data)
}

// ParagraphSource renders the build prompt for free-text input.
func ParagraphSource(data string) string {
	return fmt.Sprintf(`## Scenario
The data contains prose describing the domain, possibly referring to
entities registered from earlier sources.

- **Classes**: concepts the text groups things under.
- **Properties**: relations and measurements the text asserts.
- **Individuals**: the concrete things the text mentions, classified and
  linked to their values.

Focus on defining new **properties**; derive related classes and
individuals where needed, and reuse registered entities when the text
refers to them.

Infer ontology elements from the following text:
`+"```%s```", data)
}

// SystemCompile frames the one-shot compile pass that turns the entities
// index into Datalog facts.
const SystemCompile = `## Context
You are an ontology engineering expert. Compile the entities index below
into a Datalog fact base.

Emit facts over exactly this vocabulary, one fact per line, each ending
with a period:

- class("Name").
- subclass_of("Child", "Parent").
- property("Name").
- individual("Name").
- instance_of("Individual", "Class").
- value_of("Individual", "Property", "Value").
- role_of("Entity", "role text").

All arguments are double-quoted strings. Emit only facts: no rules, no
declarations, no prose, no code fences. Unify equivalent terms and do not
omit any indexed entity.`

// CompileIndex renders the compile prompt from the three serialized index
// sections.
func CompileIndex(classesJSON, propertiesJSON, individualsJSON string) string {
	return fmt.Sprintf(`### Input Data
- **Classes**
  `+"```%s```"+`

- **Properties**
  `+"```%s```"+`

- **Individuals**
  `+"```%s```", classesJSON, propertiesJSON, individualsJSON)
}

// CompileRetry asks for a corrected fact base after a parse failure. The
// previous output and the parse error ride along so the model can fix the
// exact lines that broke.
func CompileRetry(previous, parseErr string) string {
	return fmt.Sprintf(`Your previous output failed to parse.

### Error
%s

### Previous output
%s

Re-emit the complete fact base with the error corrected. Emit only facts,
one per line, each ending with a period.`, parseErr, previous)
}

// SystemRetrieval frames the answering phase over a compiled ontology.
const SystemRetrieval = `## Context
You are an ontology exploration assistant. Answer the user's question using
the compiled ontology.

- Use get_entities to discover entity names and their roles.
- Use query_ontology with Datalog atoms to read structure, e.g.
  instance_of(X, "Color"), ancestor_of("Cat", S),
  value_of("Yellow", P, V), member_of(X, "Product").
- Ground the answer only in query results; never invent entities.
- Report the queries you ran and briefly explain them, then give a concise
  answer.`

// AnswerQuestion renders the retrieval prompt for one user question.
func AnswerQuestion(question string) string {
	return fmt.Sprintf("## Question\n%s", strings.TrimSpace(question))
}
