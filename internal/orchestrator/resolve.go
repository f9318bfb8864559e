package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches "${node_id}" or "${node_id.field.sub}" forms
// (spec.md §3/§4.5). The referenced node id is capture group 1, the
// optional dotted field path is capture group 2.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_-]+)(?:\.([A-Za-z0-9_.\-\[\]]+))?\}`)

// placeholderRefs walks an inputs_template document and returns the set of
// distinct node ids referenced by "${node_id...}" placeholders anywhere in
// it, whether the placeholder is the entire value ("structural"
// substitution, which can replace a value with any JSON type) or embedded
// inside a larger string (which always substitutes as a string). This
// dual handling is grounded on the teacher's cond.go, which walks a
// dot-path key into a context map rather than doing naive string
// substitution.
func placeholderRefs(doc map[string]any) []string {
	seen := map[string]bool{}
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range placeholderPattern.FindAllStringSubmatch(t, -1) {
				seen[m[1]] = true
			}
		case map[string]any:
			for _, vv := range t {
				walk(vv)
			}
		case []any:
			for _, vv := range t {
				walk(vv)
			}
		}
	}
	walk(doc)
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// resolveTemplate returns a copy of doc with every "${node_id.field}"
// placeholder substituted using results, the map of node id to that node's
// completed result document. A value that is *entirely* one placeholder
// ("${a.b}") substitutes structurally, taking on the referenced value's
// own type; a placeholder embedded in a larger string substitutes as a
// string (spec.md §9: "reference resolution substitutes structurally when
// the whole value is one placeholder, and as a string otherwise").
func resolveTemplate(doc map[string]any, results map[string]map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		resolved, err := resolveValue(v, results)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, results map[string]map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		if m := placeholderPattern.FindStringSubmatch(t); m != nil && m[0] == t {
			return lookupRef(m[1], m[2], results)
		}
		var firstErr error
		s := placeholderPattern.ReplaceAllStringFunc(t, func(raw string) string {
			m := placeholderPattern.FindStringSubmatch(raw)
			val, err := lookupRef(m[1], m[2], results)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return raw
			}
			return stringify(val)
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return s, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			r, err := resolveValue(vv, results)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			r, err := resolveValue(vv, results)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// lookupRef walks a dotted field path ("a.b[0].c") into a node's result
// document, the same "resolve a dot-path key against a context map" idiom
// the teacher's cond.go uses for condition expressions.
func lookupRef(nodeID, fieldPath string, results map[string]map[string]any) (any, error) {
	result, ok := results[nodeID]
	if !ok {
		return nil, fmt.Errorf("no result available for node %q", nodeID)
	}
	if fieldPath == "" {
		return result, nil
	}

	var cur any = result
	for _, segment := range strings.Split(fieldPath, ".") {
		name, index, hasIndex := splitIndex(segment)
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot index %q: not an object", segment)
		}
		next, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("field %q not found", name)
		}
		cur = next
		if hasIndex {
			arr, ok := cur.([]any)
			if !ok || index < 0 || index >= len(arr) {
				return nil, fmt.Errorf("index %d out of range for %q", index, name)
			}
			cur = arr[index]
		}
	}
	return cur, nil
}

// splitIndex splits "field[2]" into ("field", 2, true), or returns the
// segment unchanged with hasIndex false.
func splitIndex(segment string) (name string, index int, hasIndex bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 || !strings.HasSuffix(segment, "]") {
		return segment, 0, false
	}
	idx, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil {
		return segment, 0, false
	}
	return segment[:open], idx, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
