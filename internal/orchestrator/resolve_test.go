package orchestrator

import "testing"

func TestResolveTemplateStructuralSubstitution(t *testing.T) {
	results := map[string]map[string]any{
		"a": {"result": map[string]any{"value": 42}},
	}
	doc := map[string]any{"x": "${a.result}"}
	out, err := resolveTemplate(doc, results)
	if err != nil {
		t.Fatalf("resolveTemplate: %v", err)
	}
	m, ok := out["x"].(map[string]any)
	if !ok || m["value"] != 42 {
		t.Fatalf("expected structural substitution to preserve the referenced value's type, got %+v", out["x"])
	}
}

func TestResolveTemplateStringEmbeddedSubstitution(t *testing.T) {
	results := map[string]map[string]any{
		"a": {"name": "Ada"},
	}
	doc := map[string]any{"greeting": "hello ${a.name}!"}
	out, err := resolveTemplate(doc, results)
	if err != nil {
		t.Fatalf("resolveTemplate: %v", err)
	}
	if out["greeting"] != "hello Ada!" {
		t.Fatalf("greeting = %v, want %q", out["greeting"], "hello Ada!")
	}
}

func TestResolveTemplateArrayIndex(t *testing.T) {
	results := map[string]map[string]any{
		"a": {"items": []any{"first", "second"}},
	}
	doc := map[string]any{"x": "${a.items[1]}"}
	out, err := resolveTemplate(doc, results)
	if err != nil {
		t.Fatalf("resolveTemplate: %v", err)
	}
	if out["x"] != "second" {
		t.Fatalf("x = %v, want %q", out["x"], "second")
	}
}

func TestResolveTemplateMissingNodeFails(t *testing.T) {
	doc := map[string]any{"x": "${missing.field}"}
	if _, err := resolveTemplate(doc, map[string]map[string]any{}); err == nil {
		t.Fatalf("expected error resolving reference to a node with no result yet")
	}
}

func TestResolveTemplateNestedDocuments(t *testing.T) {
	results := map[string]map[string]any{
		"a": {"value": 7},
		"b": {"value": 8},
	}
	doc := map[string]any{
		"nested": map[string]any{
			"list": []any{"${a.value}", "${b.value}"},
		},
	}
	out, err := resolveTemplate(doc, results)
	if err != nil {
		t.Fatalf("resolveTemplate: %v", err)
	}
	nested := out["nested"].(map[string]any)
	list := nested["list"].([]any)
	if list[0] != 7 || list[1] != 8 {
		t.Fatalf("list = %+v", list)
	}
}
