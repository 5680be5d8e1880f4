package prompt

import (
	"strings"
	"testing"
)

func TestTaxonomySourceEmbedsData(t *testing.T) {
	out := TaxonomySource(`{"name":"Product"}`)
	if !strings.Contains(out, `{"name":"Product"}`) {
		t.Error("expected data embedded in prompt")
	}
	if !strings.Contains(out, "product taxonomy") {
		t.Error("expected taxonomy scenario text")
	}
}

func TestParagraphSourceEmbedsData(t *testing.T) {
	out := ParagraphSource("The warehouse stores EcoRing blocks.")
	if !strings.Contains(out, "EcoRing blocks") {
		t.Error("expected data embedded in prompt")
	}
}

func TestCompileIndexSections(t *testing.T) {
	out := CompileIndex(`[{"name":"Color"}]`, `[]`, `[{"name":"Yellow"}]`)
	for _, want := range []string{`[{"name":"Color"}]`, `[{"name":"Yellow"}]`, "Classes", "Properties", "Individuals"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in compile prompt", want)
		}
	}
}

func TestCompileRetryCarriesErrorAndOutput(t *testing.T) {
	out := CompileRetry(`class("Color"`, "unexpected end of input")
	if !strings.Contains(out, "unexpected end of input") {
		t.Error("expected parse error in retry prompt")
	}
	if !strings.Contains(out, `class("Color"`) {
		t.Error("expected previous output in retry prompt")
	}
}

func TestSystemPromptsNameTheVocabulary(t *testing.T) {
	for _, pred := range []string{"class(", "subclass_of(", "instance_of(", "value_of(", "role_of("} {
		if !strings.Contains(SystemCompile, pred) {
			t.Errorf("compile prompt should name predicate %s", pred)
		}
	}
	if !strings.Contains(SystemRetrieval, "query_ontology") {
		t.Error("retrieval prompt should name query_ontology")
	}
}
