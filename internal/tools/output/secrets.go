package output

import (
	"strings"
)

// RedactedValue is the placeholder used for masked secret data.
const RedactedValue = "***REDACTED***"

const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// embeddedObjects are the entry fields that carry full Kubernetes objects.
var embeddedObjects = []string{"requestObject", "responseObject"}

// MaskSecrets redacts Secret payloads inside entry, in place. An entry is
// treated as touching a Secret when objectRef.resource is "secrets" or an
// embedded object has kind Secret or SecretList. Embedded objects of a
// secrets entry that were kept as raw strings are replaced whole. It
// reports whether anything was redacted.
func MaskSecrets(entry any) bool {
	if !isMapping(entry) {
		return false
	}

	secretRef := strings.EqualFold(stringAt(entry, "objectRef", "resource"), "secrets")
	masked := false

	roots := []any{entry}
	for _, field := range embeddedObjects {
		obj, ok := child(entry, field)
		if !ok {
			continue
		}
		switch {
		case isMapping(obj):
			roots = append(roots, obj)
		case secretRef && isRawObject(obj):
			// Undecoded payloads cannot be masked field by field.
			setChild(entry, field, RedactedValue)
			masked = true
		}
	}

	for i, obj := range roots {
		kind := stringAt(obj, "kind")
		switch {
		case strings.EqualFold(kind, "SecretList"):
			if items, ok := child(obj, "items"); ok {
				if list, ok := items.([]any); ok {
					for _, item := range list {
						masked = maskSecretObject(item) || masked
					}
				}
			}
		case strings.EqualFold(kind, "Secret"), secretRef && i > 0:
			masked = maskSecretObject(obj) || masked
		}
	}
	return masked
}

// maskSecretObject masks data and stringData values, keeping the keys
// visible, and the last-applied annotation which repeats them in clear.
func maskSecretObject(obj any) bool {
	if !isMapping(obj) {
		return false
	}
	masked := false
	for _, field := range []string{"data", "stringData"} {
		values, ok := child(obj, field)
		if !ok || !isMapping(values) {
			continue
		}
		for _, k := range keys(values) {
			setChild(values, k, RedactedValue)
			masked = true
		}
	}

	if meta, ok := child(obj, "metadata"); ok {
		if annotations, ok := child(meta, "annotations"); ok {
			if _, ok := child(annotations, lastAppliedAnnotation); ok {
				setChild(annotations, lastAppliedAnnotation, RedactedValue)
				masked = true
			}
		}
	}
	return masked
}

func isRawObject(v any) bool {
	switch raw := v.(type) {
	case string:
		return raw != "" && raw != RedactedValue
	case []byte:
		return len(raw) > 0
	}
	return false
}
