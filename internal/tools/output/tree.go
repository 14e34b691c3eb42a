package output

import (
	"github.com/giantswarm/mcp-kube-audit/internal/normalize"
)

// Entries are trees of *normalize.Map (or plain maps), []any and
// primitives. These helpers read and edit both mapping forms.

func child(node any, key string) (any, bool) {
	switch m := node.(type) {
	case *normalize.Map:
		return m.Get(key)
	case map[string]any:
		v, ok := m[key]
		return v, ok
	}
	return nil, false
}

func setChild(node any, key string, v any) {
	switch m := node.(type) {
	case *normalize.Map:
		m.Set(key, v)
	case map[string]any:
		m[key] = v
	}
}

func deleteChild(node any, key string) {
	switch m := node.(type) {
	case *normalize.Map:
		m.Delete(key)
	case map[string]any:
		delete(m, key)
	}
}

func keys(node any) []string {
	switch m := node.(type) {
	case *normalize.Map:
		return m.Keys()
	case map[string]any:
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	return nil
}

func isMapping(node any) bool {
	switch node.(type) {
	case *normalize.Map, map[string]any:
		return true
	}
	return false
}

func stringAt(node any, path ...string) string {
	cur := node
	for _, p := range path {
		next, ok := child(cur, p)
		if !ok {
			return ""
		}
		cur = next
	}
	s, _ := cur.(string)
	return s
}
