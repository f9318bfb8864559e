// Package schema wraps github.com/santhosh-tekuri/jsonschema/v5 as the
// skill protocol server's sole type boundary (spec.md §4.3, Schema
// Validator / C3). The compile-then-validate shape mirrors the teacher's
// agent.ToolRegistry, which compiles each tool's parameter schema once at
// registration and validates call arguments against the compiled schema on
// every invocation.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is a single JSON-Schema validation failure.
type Violation struct {
	Pointer string `json:"pointer"`
	Keyword string `json:"keyword"`
	Message string `json:"message"`
}

// Compiled is a schema compiled once and reusable across invocations.
type Compiled struct {
	schema *jsonschema.Schema
	empty  bool
}

// Compile compiles a JSON-Schema document. A nil or empty document ({}) is
// permissive: all documents pass (spec.md §4.3).
func Compile(doc map[string]any) (*Compiled, error) {
	if len(doc) == 0 {
		return &Compiled{empty: true}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	const resourceURL = "schema.json"
	if err := c.AddResource(resourceURL, bytesReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Compiled{schema: s}, nil
}

// Validate validates an already-decoded JSON document (map[string]any,
// []any, or scalar) against the compiled schema.
func (c *Compiled) Validate(doc any) []Violation {
	if c == nil || c.empty {
		return nil
	}
	err := c.schema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{{Message: err.Error()}}
	}
	var out []Violation
	flatten(ve, &out)
	if len(out) == 0 {
		out = append(out, Violation{Message: ve.Error()})
	}
	return out
}

func flatten(ve *jsonschema.ValidationError, out *[]Violation) {
	if ve == nil {
		return
	}
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{
			Pointer: ve.InstanceLocation,
			Keyword: ve.KeywordLocation,
			Message: ve.Message,
		})
		return
	}
	for _, c := range ve.Causes {
		flatten(c, out)
	}
}

// ValidateDocument is a one-shot convenience: is doc a well-formed
// JSON-Schema document? Used by the skill registry at registration time
// to check input_schema/output_schema are themselves valid schemas.
func ValidateDocument(doc map[string]any) error {
	_, err := Compile(doc)
	return err
}

// Cache memoizes compiled schemas under a caller-supplied key (the registry
// uses skill id, version and side) so the registry doesn't recompile a
// skill's schema on every invocation.
type Cache struct {
	mu    sync.RWMutex
	byKey map[string]*Compiled
}

func NewCache() *Cache { return &Cache{byKey: map[string]*Compiled{}} }

func (c *Cache) Get(key string, doc map[string]any) (*Compiled, error) {
	c.mu.RLock()
	if v, ok := c.byKey[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	compiled, err := Compile(doc)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byKey[key] = compiled
	c.mu.Unlock()
	return compiled, nil
}
