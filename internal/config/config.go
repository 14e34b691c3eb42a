package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"sigs.k8s.io/yaml"
)

// Config is a validated binding of cluster names to provider configurations.
// It is immutable after Load returns.
type Config struct {
	DefaultCluster string
	Clusters       []ClusterBinding
}

// ClusterBinding binds one cluster name to one provider type and its params.
type ClusterBinding struct {
	Name         string
	ProviderType string
	Params       Params
	// Description is optional free text shown by list_clusters.
	Description string
}

// Catalog is the provider factory table as seen by the loader.
type Catalog interface {
	// Has reports whether providerType has a registered factory.
	Has(providerType string) bool

	// ValidateParams checks provider-specific params. Returned paths are
	// relative to the provider block.
	ValidateParams(providerType string, params Params) []Violation

	// Types lists the registered provider types, sorted.
	Types() []string
}

// Names returns the cluster names in document order.
func (c *Config) Names() []string {
	out := make([]string, len(c.Clusters))
	for i, b := range c.Clusters {
		out[i] = b.Name
	}
	return out
}

// Binding returns the binding named name.
func (c *Config) Binding(name string) (ClusterBinding, bool) {
	for _, b := range c.Clusters {
		if b.Name == name {
			return b, true
		}
	}
	return ClusterBinding{}, false
}

// LoadFile reads and validates a YAML or JSON configuration file.
func LoadFile(path string, catalog Catalog) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Load(data, catalog)
}

// Load parses and validates a YAML or JSON configuration document.
// Syntax errors and structural violations are both reported as
// *ValidationError.
func Load(data []byte, catalog Catalog) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewValidationError("", fmt.Sprintf("failed to parse document: %v", err))
	}
	return FromMap(raw, catalog)
}

// FromMap validates an already decoded configuration document. Every
// violation is collected, in document order, before anything is returned.
func FromMap(raw map[string]any, catalog Catalog) (*Config, error) {
	var vs violations
	cfg := &Config{}

	defaultCluster, hasDefault := raw["default_cluster"]
	switch {
	case !hasDefault || defaultCluster == nil:
		vs.add("default_cluster", "is required")
		hasDefault = false
	default:
		s, ok := defaultCluster.(string)
		if !ok || strings.TrimSpace(s) == "" {
			vs.add("default_cluster", "must be a non-empty string")
			hasDefault = false
		}
		cfg.DefaultCluster = s
	}

	rawClusters, hasClusters := raw["clusters"]
	list, isList := rawClusters.([]any)
	switch {
	case !hasClusters || rawClusters == nil:
		vs.add("clusters", "is required")
	case !isList:
		vs.add("clusters", "must be a list")
	case len(list) == 0:
		vs.add("clusters", "must contain at least one cluster")
	}

	seen := map[string]int{}
	for i, item := range list {
		path := fmt.Sprintf("clusters[%d]", i)
		binding, ok := parseBinding(item, path, catalog, &vs)
		if strings.TrimSpace(binding.Name) == "" {
			continue
		}
		if first, dup := seen[binding.Name]; dup {
			vs.add(path+".name", "duplicate cluster name %q (first defined at clusters[%d])", binding.Name, first)
			continue
		}
		seen[binding.Name] = i
		if ok {
			cfg.Clusters = append(cfg.Clusters, binding)
		}
	}

	if hasDefault && len(list) > 0 {
		if _, ok := seen[cfg.DefaultCluster]; !ok {
			vs.add("default_cluster", "%q does not match any configured cluster", cfg.DefaultCluster)
		}
	}

	if err := vs.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseBinding(item any, path string, catalog Catalog, vs *violations) (ClusterBinding, bool) {
	entry, ok := item.(map[string]any)
	if !ok {
		vs.add(path, "must be a mapping with name and provider")
		return ClusterBinding{}, false
	}

	valid := true
	binding := ClusterBinding{}

	name, _ := entry["name"].(string)
	if strings.TrimSpace(name) == "" {
		vs.add(path+".name", "is required")
		valid = false
	}
	binding.Name = name

	if raw, ok := entry["description"]; ok && raw != nil {
		desc, isString := raw.(string)
		if !isString {
			vs.add(path+".description", "must be a string")
			valid = false
		}
		binding.Description = desc
	}

	rawProvider, hasProvider := entry["provider"]
	providerBlock, isMap := rawProvider.(map[string]any)
	switch {
	case !hasProvider || rawProvider == nil:
		vs.add(path+".provider", "is required")
		return binding, false
	case !isMap:
		vs.add(path+".provider", "must be a mapping")
		return binding, false
	}

	providerType, _ := providerBlock["name"].(string)
	if strings.TrimSpace(providerType) == "" {
		vs.add(path+".provider.name", "is required")
		return binding, false
	}
	binding.ProviderType = providerType

	params := make(Params, len(providerBlock))
	for k, v := range providerBlock {
		if k == "name" {
			continue
		}
		params[k] = v
	}
	binding.Params = params

	if catalog != nil {
		if !catalog.Has(providerType) {
			vs.add(path+".provider.name", "unsupported provider %q (supported: %s)",
				providerType, strings.Join(catalog.Types(), ", "))
			return binding, false
		}
		for _, pv := range catalog.ValidateParams(providerType, params) {
			vs.add(path+".provider."+pv.Path, "%s", pv.Message)
			valid = false
		}
	}

	return binding, valid
}

// KnownTypes returns a Catalog that accepts the given provider types and
// performs no param validation.
func KnownTypes(types ...string) Catalog {
	sorted := slices.Clone(types)
	slices.Sort(sorted)
	return staticCatalog(sorted)
}

type staticCatalog []string

func (c staticCatalog) Has(t string) bool                         { return slices.Contains(c, t) }
func (c staticCatalog) ValidateParams(string, Params) []Violation { return nil }
func (c staticCatalog) Types() []string                           { return slices.Clone(c) }
