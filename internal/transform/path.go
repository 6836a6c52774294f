package transform

import "strings"

// GetPath reads a dotted path from a nested map. It returns nil when a
// segment is missing or an intermediate value is not a map.
func GetPath(tree map[string]any, path string) any {
	if tree == nil || path == "" {
		return nil
	}

	var current any = tree
	for _, segment := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// SetPath writes value at a dotted path, creating intermediate maps as
// needed. A non-map value sitting on an intermediate segment is replaced.
func SetPath(tree map[string]any, path string, value any) {
	if tree == nil || path == "" {
		return
	}

	segments := strings.Split(path, ".")
	current := tree
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asMap(current[segment])
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	default:
		return nil, false
	}
}
