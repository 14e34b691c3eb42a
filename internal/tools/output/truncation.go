package output

import (
	"encoding/json"
	"fmt"
)

// FitEntries returns how many leading entries fit in maxBytes of JSON,
// and a warning when that is fewer than len(entries). Entries that fail to
// encode count as too large.
func FitEntries(entries []any, maxBytes int) (int, *TruncationWarning) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}

	// Two bytes for the surrounding brackets.
	used := 2
	kept := 0
	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			break
		}
		size := len(data)
		if i > 0 {
			size++ // comma
		}
		if used+size > maxBytes {
			break
		}
		used += size
		kept++
	}

	total := len(entries)
	if kept == total {
		return kept, nil
	}
	return kept, &TruncationWarning{
		Shown: kept,
		Total: total,
		Message: fmt.Sprintf(
			"Output truncated to %d of %d entries to stay under %d bytes. Narrow the query with namespace, resource_types, user or a shorter time range.",
			kept, total, maxBytes),
	}
}
