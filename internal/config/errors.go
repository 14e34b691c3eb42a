package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// Violation is a single configuration problem.
type Violation struct {
	// Path locates the offending field, e.g. "clusters[1].provider.name".
	Path    string
	Message string
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationError carries every violation found in a configuration document,
// in document order.
type ValidationError struct {
	Violations []Violation
}

// NewValidationError returns a ValidationError with a single violation.
func NewValidationError(path, message string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Path: path, Message: message}}}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Violations) {
	case 0:
		return ErrInvalidConfig.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrInvalidConfig, e.Violations[0])
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s (%d problems): %s", ErrInvalidConfig, len(e.Violations), strings.Join(parts, "; "))
}

// Unwrap returns the underlying sentinel error for use with errors.Is().
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// First returns the first violation in document order.
func (e *ValidationError) First() Violation {
	if len(e.Violations) == 0 {
		return Violation{}
	}
	return e.Violations[0]
}

type violations []Violation

func (vs *violations) add(path, format string, args ...any) {
	*vs = append(*vs, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (vs violations) err() error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Violations: vs}
}
