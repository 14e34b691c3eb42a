// Package output post-processes audit query results before they are
// returned to an MCP client.
//
// Audit events embed whole Kubernetes objects in requestObject and
// responseObject. For Secrets those objects carry credentials, so
// MaskSecrets replaces data and stringData values with RedactedValue.
// SlimEntry drops verbose fields such as metadata.managedFields, and
// FitEntries keeps the encoded response under a byte budget.
//
//	p := output.NewProcessor(output.DefaultConfig(), logger)
//	warning := p.Process(agg)
package output
