package audit

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// resourceAliases maps kubectl-style short and singular names to the plural
// resource names recorded in audit events.
var resourceAliases = map[string]string{
	"pod":                "pods",
	"deployment":         "deployments",
	"deploy":             "deployments",
	"service":            "services",
	"svc":                "services",
	"configmap":          "configmaps",
	"cm":                 "configmaps",
	"secret":             "secrets",
	"sec":                "secrets",
	"role":               "roles",
	"rolebinding":        "rolebindings",
	"clusterrole":        "clusterroles",
	"clusterrolebinding": "clusterrolebindings",
	"node":               "nodes",
	"namespace":          "namespaces",
	"ns":                 "namespaces",
	"pv":                 "persistentvolumes",
	"pvc":                "persistentvolumeclaims",
	"sa":                 "serviceaccounts",
	"rs":                 "replicasets",
	"ds":                 "daemonsets",
	"sts":                "statefulsets",
	"ing":                "ingresses",
}

// kindsByResource maps plural resource names back to object kinds, used by
// backends that record kinds rather than resources.
var kindsByResource = map[string]string{
	"pods":                   "Pod",
	"deployments":            "Deployment",
	"services":               "Service",
	"configmaps":             "ConfigMap",
	"secrets":                "Secret",
	"roles":                  "Role",
	"rolebindings":           "RoleBinding",
	"clusterroles":           "ClusterRole",
	"clusterrolebindings":    "ClusterRoleBinding",
	"nodes":                  "Node",
	"namespaces":             "Namespace",
	"persistentvolumes":      "PersistentVolume",
	"persistentvolumeclaims": "PersistentVolumeClaim",
	"serviceaccounts":        "ServiceAccount",
	"replicasets":            "ReplicaSet",
	"daemonsets":             "DaemonSet",
	"statefulsets":           "StatefulSet",
	"ingresses":              "Ingress",
}

// NormalizeResourceTypes lower-cases, de-aliases and de-duplicates resource
// types, dropping empty values. Order of first appearance is kept.
func NormalizeResourceTypes(types []string) []string {
	return normalizeList(types, func(s string) string {
		if plural, ok := resourceAliases[s]; ok {
			return plural
		}
		return s
	})
}

// NormalizeVerbs lower-cases and de-duplicates verbs, dropping empty values.
func NormalizeVerbs(verbs []string) []string {
	return normalizeList(verbs, func(s string) string { return s })
}

// KindForResource returns the object kind for a plural resource name.
func KindForResource(resource string) (string, bool) {
	kind, ok := kindsByResource[resource]
	return kind, ok
}

// ResourceType describes a resource name accepted by resource filters.
type ResourceType struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Aliases []string `json:"aliases,omitempty"`
}

// CommonResourceTypes lists the resources with known kinds, sorted by name,
// together with the short names that resolve to them.
func CommonResourceTypes() []ResourceType {
	aliases := make(map[string][]string, len(kindsByResource))
	for alias, plural := range resourceAliases {
		aliases[plural] = append(aliases[plural], alias)
	}

	out := make([]ResourceType, 0, len(kindsByResource))
	for name, kind := range kindsByResource {
		a := aliases[name]
		sort.Strings(a)
		out = append(out, ResourceType{Name: name, Kind: kind, Aliases: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalizeList(in []string, mapFn func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	// Casers are stateful; one per call keeps this safe for concurrent use.
	lower := cases.Lower(language.Und)
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		v = mapFn(lower.String(v))
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsWildcard reports whether a filter value means "no constraint".
func IsWildcard(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "*"
}

// SuffixWildcard splits a pattern like "kube-*" into its prefix. It
// reports false for exact values and for the bare wildcard.
func SuffixWildcard(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if IsWildcard(v) || !strings.HasSuffix(v, "*") {
		return "", false
	}
	return strings.TrimSuffix(v, "*"), true
}

// MatchPattern reports whether value satisfies pattern: an exact value,
// a suffix wildcard, or no constraint at all.
func MatchPattern(pattern, value string) bool {
	if IsWildcard(pattern) {
		return true
	}
	if prefix, ok := SuffixWildcard(pattern); ok {
		return strings.HasPrefix(value, prefix)
	}
	return strings.TrimSpace(pattern) == value
}

// Constraint returns values, or nil when any of them is the wildcard "*".
func Constraint(values []string) []string {
	for _, v := range values {
		if strings.TrimSpace(v) == "*" {
			return nil
		}
	}
	return values
}
