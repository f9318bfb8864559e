package schema

import "testing"

func TestCompileEmptySchemaIsPermissive(t *testing.T) {
	c, err := Compile(nil)
	if err != nil {
		t.Fatalf("Compile(nil): %v", err)
	}
	if v := c.Validate(map[string]any{"anything": 1}); len(v) != 0 {
		t.Fatalf("expected empty schema to accept any document, got violations %+v", v)
	}
}

func TestCompileAndValidate(t *testing.T) {
	doc := map[string]any{
		"type":     "object",
		"required": []any{"value"},
		"properties": map[string]any{
			"value": map[string]any{"type": "number"},
		},
	}
	c, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if v := c.Validate(map[string]any{"value": 5}); len(v) != 0 {
		t.Fatalf("expected valid document to pass, got %+v", v)
	}
	if v := c.Validate(map[string]any{}); len(v) == 0 {
		t.Fatalf("expected missing required field to fail validation")
	}
}

func TestCacheMemoizes(t *testing.T) {
	cache := NewCache()
	doc := map[string]any{"type": "object"}
	a, err := cache.Get("key", doc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := cache.Get("key", doc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatalf("expected cached compile to return the same *Compiled instance")
	}
}

func TestValidateDocumentRejectsMalformedSchema(t *testing.T) {
	bad := map[string]any{"type": "not-a-real-type"}
	if err := ValidateDocument(bad); err == nil {
		t.Fatalf("expected malformed schema document to fail validation")
	}
}
