// Package settings implements the layered configuration model of the
// release engine: a hierarchical tree addressed by dotted paths, merged
// from ordered default and override scopes with defined precedence.
package settings

import (
	"fmt"
	"sort"
	"strings"
)

// GlobalScope is the shared scope consulted when a named scope does not
// define a key.
const GlobalScope = "global"

// Tree is a hierarchical mapping from dotted-path keys to scalar, mapping
// or sequence values. A Tree is built once per operation and treated as
// immutable afterwards.
type Tree map[string]any

// Lookup returns the value at the dotted path, if defined.
func (t Tree) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(t)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Sub returns the mapping at the given path, or nil if the path is unset
// or not a mapping.
func (t Tree) Sub(path string) Tree {
	v, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return Tree(m)
}

// StringOr returns the string at path, or def when unset or not a string.
func (t Tree) StringOr(path, def string) string {
	if v, ok := t.Lookup(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// BoolOr returns the bool at path, or def when unset or not a bool.
func (t Tree) BoolOr(path string, def bool) bool {
	if v, ok := t.Lookup(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// IntOr returns the integer at path, or def when unset or not numeric.
func (t Tree) IntOr(path string, def int) int {
	v, ok := t.Lookup(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// ScopedString looks up scope.key, falling back to global.key, then def.
// Named scopes inherit unset keys from the shared global scope.
func (t Tree) ScopedString(scope, key, def string) string {
	if v, ok := t.Lookup(scope + "." + key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return t.StringOr(GlobalScope+"."+key, def)
}

// Set writes a value at the dotted path, creating intermediate mappings.
// It fails if an intermediate path element holds a non-mapping value.
func (t Tree) Set(path string, value any) error {
	parts := strings.Split(path, ".")
	cur := map[string]any(t)
	for i, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %s: %s is not a mapping", path, strings.Join(parts[:i+1], "."))
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// DeepCopy returns an independent copy of the tree.
func (t Tree) DeepCopy() Tree {
	return Tree(copyValue(map[string]any(t)).(map[string]any))
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

// Leaves returns every defined leaf path in the tree, sorted.
func (t Tree) Leaves() []string {
	var paths []string
	collectLeaves("", map[string]any(t), &paths)
	sort.Strings(paths)
	return paths
}

func collectLeaves(prefix string, v any, out *[]string) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		if prefix != "" {
			*out = append(*out, prefix)
		}
		return
	}
	for k, item := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		collectLeaves(p, item, out)
	}
}
