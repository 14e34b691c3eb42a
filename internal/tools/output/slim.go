package output

import (
	"strings"
)

// SlimEntry removes excludedFields from the entry itself and from its
// embedded request and response objects, in place.
func SlimEntry(entry any, excludedFields []string) {
	if !isMapping(entry) {
		return
	}
	if len(excludedFields) == 0 {
		excludedFields = DefaultExcludedFields()
	}

	roots := []any{entry}
	for _, field := range embeddedObjects {
		if obj, ok := child(entry, field); ok && isMapping(obj) {
			roots = append(roots, obj)
		}
	}
	for _, root := range roots {
		for _, path := range excludedFields {
			removeField(root, path)
		}
	}
}

// removeField removes the field at a dot path. "[*]" after a segment applies
// the rest of the path to every element of that list. Keys that themselves
// contain dots, such as annotation names, are matched whole.
//
//   - "metadata.managedFields"
//   - "status.conditions[*].lastProbeTime"
func removeField(node any, path string) {
	if path == "" {
		return
	}
	removeFieldParts(node, strings.Split(path, "."))
}

func removeFieldParts(node any, parts []string) {
	if len(parts) == 0 || !isMapping(node) {
		return
	}

	if whole := strings.Join(parts, "."); len(parts) > 1 {
		if _, ok := child(node, whole); ok {
			deleteChild(node, whole)
			return
		}
	}

	current, rest := parts[0], parts[1:]

	if name, ok := strings.CutSuffix(current, "[*]"); ok {
		v, found := child(node, name)
		if !found {
			return
		}
		list, isList := v.([]any)
		if !isList {
			return
		}
		for _, elem := range list {
			removeFieldParts(elem, rest)
		}
		return
	}

	if len(rest) == 0 {
		deleteChild(node, current)
		return
	}
	next, ok := child(node, current)
	if !ok {
		return
	}
	removeFieldParts(next, rest)
}
