package search

import (
	"pubrec/pkg/roles"
)

// Redact prunes every securable node of doc the caller may not see. A node is
// securable when it carries a "read" key; it survives iff the caller's roles
// intersect that read set. Pruning removes the node entirely, descendants
// included, so a hidden sub-document never leaks through a sibling field.
//
// The walk applies one predicate at every level instead of special-casing
// known shapes, so new record subtypes redact correctly without new code.
// An empty read set intersects nothing: such nodes are visible to nobody.
//
// Returns nil when the document itself is pruned. The input is not modified.
func Redact(doc map[string]any, caller roles.Set) map[string]any {
	out, ok := redactMap(doc, caller)
	if !ok {
		return nil
	}
	return out
}

func redactMap(node map[string]any, caller roles.Set) (map[string]any, bool) {
	if read, securable := node["read"]; securable {
		if !caller.Intersects(readSet(read)) {
			return nil, false
		}
	}
	out := make(map[string]any, len(node))
	for key, val := range node {
		kept, ok := redactValue(val, caller)
		if !ok {
			continue
		}
		out[key] = kept
	}
	return out, true
}

func redactValue(val any, caller roles.Set) (any, bool) {
	switch v := val.(type) {
	case map[string]any:
		return redactMap(v, caller)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			kept, ok := redactValue(item, caller)
			if ok {
				out = append(out, kept)
			}
		}
		return out, true
	default:
		return val, true
	}
}

// readSet normalizes the stored tag array shapes ([]string from documents,
// []any from decoded JSON) into a role set.
func readSet(val any) roles.Set {
	switch v := val.(type) {
	case []string:
		return roles.FromStrings(v)
	case []any:
		ss := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ss = append(ss, s)
			}
		}
		return roles.FromStrings(ss)
	}
	return roles.NewSet()
}
