package schema

import (
	"fmt"
	"slices"
)

// ValidationSeverity tells errors, which block compilation, from warnings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one finding against a legacy document or a compiled graph.
// Path is a JSON pointer for structural findings and "nodes[<id>]" or
// "edges[<id>]" for graph findings.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%-7s %-16s %s: %s", i.Severity, i.Code, i.Path, i.Message)
}

// ValidationResult collects the findings of one or more checks.
// The zero value is an empty, valid result.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid is true while no error has been recorded.
func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Merge appends the findings of other. A nil other is ignored.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other != nil {
		r.Errors = append(r.Errors, other.Errors...)
		r.Warnings = append(r.Warnings, other.Warnings...)
	}
}

// Issues returns errors followed by warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	return slices.Concat(r.Errors, r.Warnings)
}

// HasCode reports whether an error (not a warning) carries code.
func (r *ValidationResult) HasCode(code string) bool {
	return slices.ContainsFunc(r.Errors, func(i ValidationIssue) bool { return i.Code == code })
}

// ToError returns nil for a valid result. Otherwise the FlowError takes the
// code every error shares, falling back to VALIDATION_ERROR, and carries
// all findings in its details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	first := r.Errors[0]
	code := first.Code
	if slices.ContainsFunc(r.Errors, func(i ValidationIssue) bool { return i.Code != code }) {
		code = ErrCodeValidation
	}

	var fe *FlowError
	if n := len(r.Errors); n == 1 {
		fe = NewError(code, first.Message)
	} else {
		fe = NewErrorf(code, "%d validation errors, first at %s: %s", n, first.Path, first.Message)
	}
	return fe.WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
}
