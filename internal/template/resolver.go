// Package template resolves `{name}` placeholders against a context map. It
// narrows the teacher's template processor down to its `{{variable}}`
// lookup half — dotted-path lookup into nested maps, replace-with-fmt.Sprint
// — but drops the `${expr}` expression half and the double-brace syntax:
// this resolver only ever sees single braces, and expression evaluation
// belongs to the rubric engine's own expr-lang usage, not prompt templating.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Resolve replaces every `{path}` in s with the stringified value found by
// walking vars along path's dot-separated segments. A placeholder whose path
// resolves to nothing is left in the output unchanged.
func Resolve(s string, vars map[string]any) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(match[1 : len(match)-1])
		value := lookup(vars, path)
		if value == nil {
			return match
		}
		return fmt.Sprint(value)
	})
}

// ResolveMap applies Resolve to every string value in m, recursing into
// nested maps and slices so that Action payloads resolve in one pass.
func ResolveMap(m map[string]any, vars map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = ResolveValue(v, vars)
	}
	return out
}

// ResolveValue applies Resolve recursively to a value of any shape produced
// by decoding a workflow's JSON payload.
func ResolveValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		return Resolve(val, vars)
	case map[string]any:
		return ResolveMap(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ResolveValue(item, vars)
		}
		return out
	default:
		return v
	}
}

func lookup(vars map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = vars
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}
