// Package normalize converts backend response objects into canonical,
// JSON-safe records.
//
// Provider SDKs return a mix of plain maps, typed structs, Kubernetes API
// objects and types with their own export methods. Normalize walks any such
// graph with a fixed precedence and produces only *Map, []any and
// primitives, so the MCP layer can serialize results without knowing which
// backend produced them.
package normalize
