package audit

import (
	"slices"
	"time"
)

// Limits applied to QueryFilter.Limit by ClampLimit.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// QueryFilter is the backend-agnostic description of an audit query.
//
// StartTime accepts either a relative duration ("30m", "24h", "7d", "2w") or
// an ISO 8601 timestamp; EndTime accepts an ISO 8601 timestamp. Empty values
// are resolved by Window.
type QueryFilter struct {
	TargetUnits   []string `json:"target_units,omitempty"`
	Namespace     string   `json:"namespace,omitempty"`
	Verbs         []string `json:"verbs,omitempty"`
	ResourceTypes []string `json:"resource_types,omitempty"`
	ResourceName  string   `json:"resource_name,omitempty"`
	User          string   `json:"user,omitempty"`
	StartTime     string   `json:"start_time,omitempty"`
	EndTime       string   `json:"end_time,omitempty"`
	Limit         int      `json:"limit"`
}

// ForUnit returns a copy of f restricted to a single unit.
func (f QueryFilter) ForUnit(unitID string) QueryFilter {
	out := f
	out.TargetUnits = []string{unitID}
	out.Verbs = slices.Clone(f.Verbs)
	out.ResourceTypes = slices.Clone(f.ResourceTypes)
	return out
}

// Validate checks the filter invariants: a positive limit and, when both
// bounds resolve to absolute instants, start not after end.
func (f QueryFilter) Validate(now time.Time) error {
	if f.Limit <= 0 {
		return &FilterError{Field: "limit", Reason: "must be greater than zero"}
	}
	_, _, err := f.Window(now, DefaultTimeWindow)
	return err
}

// UnitResult is a single provider's answer for one unit.
type UnitResult struct {
	UnitID       string `json:"unit_id"`
	Entries      []any  `json:"entries"`
	BackendQuery string `json:"provider_query"`
}

// UnitError is a unit-local failure reported inside an AggregateResult.
type UnitError struct {
	UnitID  string `json:"unit_id"`
	Message string `json:"message"`
}

// UnitSummary records per-unit diagnostics for successful units.
type UnitSummary struct {
	UnitID       string `json:"unit_id"`
	Count        int    `json:"count"`
	BackendQuery string `json:"provider_query"`
}

// AggregateResult merges the outcome of a fan-out query.
//
// Count is the number of entries actually returned, never a backend total.
// Entries keep unit-dispatch order.
type AggregateResult struct {
	Count   int           `json:"count"`
	Entries []any         `json:"entries"`
	Errors  []UnitError   `json:"errors"`
	Units   []UnitSummary `json:"units,omitempty"`
}

// NewAggregateResult returns an empty result whose slices encode as [] rather than null.
func NewAggregateResult() *AggregateResult {
	return &AggregateResult{
		Entries: []any{},
		Errors:  []UnitError{},
	}
}

// AddUnit appends a successful unit result.
func (r *AggregateResult) AddUnit(res *UnitResult) {
	r.Entries = append(r.Entries, res.Entries...)
	r.Count += len(res.Entries)
	r.Units = append(r.Units, UnitSummary{
		UnitID:       res.UnitID,
		Count:        len(res.Entries),
		BackendQuery: res.BackendQuery,
	})
}

// AddError appends a unit-local failure.
func (r *AggregateResult) AddError(unitID string, err error) {
	r.Errors = append(r.Errors, UnitError{UnitID: unitID, Message: UserFacingMessage(err)})
}

// ClampLimit applies DefaultLimit to non-positive values and caps at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
