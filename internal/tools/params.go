package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	mcp "github.com/mark3labs/mcp-go/mcp"
)

// Argument names shared by the audit tools.
const (
	ArgClusterName  = "cluster_name"
	ArgClusterNames = "cluster_names"
)

// AddClusterParams returns tool options for the cluster_name and
// cluster_names parameters. When both are omitted the query targets the
// default cluster.
//
// Usage in tool registration:
//
//	opts := []mcp.ToolOption{
//	    mcp.WithDescription("..."),
//	}
//	opts = append(opts, tools.AddClusterParams()...)
//	tool := mcp.NewTool("tool_name", opts...)
func AddClusterParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(ArgClusterName,
			mcp.Description("Cluster to query (optional, defaults to the configured default cluster)"),
		),
		mcp.WithArray(ArgClusterNames,
			mcp.Description("Clusters to query in parallel; takes precedence over cluster_name. Results are merged and per-cluster failures are reported in 'errors'"),
		),
	}
}

// ClusterTargets returns the clusters named by cluster_names, falling back
// to cluster_name. An empty result means the default cluster.
func ClusterTargets(args map[string]any) []string {
	if names := StringListArg(args, ArgClusterNames); len(names) > 0 {
		return names
	}
	if name := StringArg(args, ArgClusterName); name != "" {
		return []string{name}
	}
	return nil
}

// StringArg returns the trimmed string argument, or "" when it is absent or
// not a string.
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// StringListArg accepts either an array of strings or a comma-separated
// string. Blank items are dropped.
func StringListArg(args map[string]any, key string) []string {
	var raw []string
	switch v := args[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	default:
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IntArg returns the integer argument, or def when it is absent. JSON
// numbers arrive as float64; numeric strings are accepted too.
func IntArg(args map[string]any, key string, def int) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return def, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}
