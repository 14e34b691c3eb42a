package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for query failure scenarios.
// These errors can be checked using errors.Is() for programmatic error handling.
var (
	// ErrUnknownCluster indicates that a requested unit is not bound to any
	// provider in the registry.
	ErrUnknownCluster = errors.New("unknown cluster")

	// ErrProviderQuery indicates that a provider failed to answer a query for
	// its unit. The underlying transport or backend error is available via
	// errors.Unwrap.
	ErrProviderQuery = errors.New("provider query failed")

	// ErrInvalidFilter indicates that a QueryFilter violates its invariants
	// (non-positive limit, start after end, unparseable time).
	ErrInvalidFilter = errors.New("invalid query filter")
)

// UnknownClusterError is returned when a unit id cannot be resolved.
type UnknownClusterError struct {
	Name string
	// Available lists the configured unit ids, sorted, for diagnostics.
	Available []string
}

// Error implements the error interface.
func (e *UnknownClusterError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown cluster %q", e.Name)
	}
	return fmt.Sprintf("unknown cluster %q (configured: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Unwrap returns the underlying sentinel error for use with errors.Is().
func (e *UnknownClusterError) Unwrap() error {
	return ErrUnknownCluster
}

// UserFacingError returns a message safe for MCP clients.
func (e *UnknownClusterError) UserFacingError() string {
	return fmt.Sprintf("cluster %q is not configured; use list_clusters to see available clusters", e.Name)
}

// ProviderQueryError wraps a unit-local failure raised by a provider.
//
// errors.Is matches ErrProviderQuery through Is and the original cause
// through Unwrap, so callers can still test for context.DeadlineExceeded.
type ProviderQueryError struct {
	UnitID string
	Cause  error
}

// NewProviderQueryError returns a ProviderQueryError, or cause itself if it
// already is one for the same unit.
func NewProviderQueryError(unitID string, cause error) *ProviderQueryError {
	var pqe *ProviderQueryError
	if errors.As(cause, &pqe) && pqe.UnitID == unitID {
		return pqe
	}
	return &ProviderQueryError{UnitID: unitID, Cause: cause}
}

// Error implements the error interface.
func (e *ProviderQueryError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("query on unit %q failed", e.UnitID)
	}
	return fmt.Sprintf("query on unit %q failed: %v", e.UnitID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ProviderQueryError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrProviderQuery.
func (e *ProviderQueryError) Is(target error) bool {
	return target == ErrProviderQuery
}

// Timeout reports whether the query failed because its deadline expired.
func (e *ProviderQueryError) Timeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// UserFacingError returns a message safe for MCP clients.
func (e *ProviderQueryError) UserFacingError() string {
	if e.Timeout() {
		return fmt.Sprintf("query on %s timed out", e.UnitID)
	}
	return e.Error()
}

// FilterError describes a single invalid QueryFilter field.
type FilterError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is().
func (e *FilterError) Unwrap() error {
	return ErrInvalidFilter
}

// UserFacingMessage extracts a client-safe message from err, falling back to
// err.Error() for errors without a UserFacingError method.
func UserFacingMessage(err error) string {
	if err == nil {
		return ""
	}
	var uf interface{ UserFacingError() string }
	if errors.As(err, &uf) {
		return uf.UserFacingError()
	}
	return err.Error()
}
