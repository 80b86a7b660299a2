package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_ZeroValue(t *testing.T) {
	var r ValidationResult
	assert.True(t, r.Valid())
	assert.Empty(t, r.Issues())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_Severity(t *testing.T) {
	var r ValidationResult
	r.AddWarning("nodes[orphan]", ErrCodeValidation, "node is unreachable from the trigger")
	assert.True(t, r.Valid(), "warnings do not invalidate")
	assert.False(t, r.HasCode(ErrCodeValidation), "HasCode ignores warnings")

	r.AddError("/trigger/name", ErrCodeMalformedStep, "name is required")
	assert.False(t, r.Valid())

	issues := r.Issues()
	require.Len(t, issues, 2)
	assert.Equal(t, ValidationIssue{
		Path: "/trigger/name", Code: ErrCodeMalformedStep, Message: "name is required", Severity: SeverityError,
	}, issues[0])
	assert.Equal(t, SeverityWarning, issues[1].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	var a, b ValidationResult
	a.AddError("/", ErrCodeValidation, "a")
	b.AddError("edges[a->b]", ErrCodeCycleDetected, "b")
	b.AddWarning("nodes[b]", ErrCodeValidation, "w")

	a.Merge(&b)
	a.Merge(nil)

	assert.Len(t, a.Errors, 2)
	assert.Len(t, a.Warnings, 1)
	assert.True(t, a.HasCode(ErrCodeCycleDetected))
	assert.False(t, a.HasCode(ErrCodeBranchMismatch))
}

func TestValidationIssue_String(t *testing.T) {
	issue := ValidationIssue{Path: "edges[e1]", Code: ErrCodeNotFound, Message: "target missing", Severity: SeverityError}
	assert.Equal(t, "error   NOT_FOUND        edges[e1]: target missing", issue.String())
}

func TestValidationResult_ToError(t *testing.T) {
	type issue struct{ path, code, msg string }
	tests := []struct {
		name     string
		errs     []issue
		warnings int
		code     string
		message  string
	}{
		{
			name:    "single error keeps its code and message",
			errs:    []issue{{"/trigger/name", ErrCodeMalformedStep, "name is required"}},
			code:    ErrCodeMalformedStep,
			message: "name is required",
		},
		{
			name:    "shared code survives",
			errs:    []issue{{"edges[0]", ErrCodeCycleDetected, "loop"}, {"edges[1]", ErrCodeCycleDetected, "loop"}},
			code:    ErrCodeCycleDetected,
			message: "2 validation errors, first at edges[0]: loop",
		},
		{
			name:     "mixed codes collapse",
			errs:     []issue{{"/", ErrCodeBranchMismatch, "x"}, {"/", ErrCodeDuplicateStep, "y"}},
			warnings: 1,
			code:     ErrCodeValidation,
			message:  "2 validation errors, first at /: x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r ValidationResult
			for _, e := range tt.errs {
				r.AddError(e.path, e.code, e.msg)
			}
			for range tt.warnings {
				r.AddWarning("/", ErrCodeValidation, "w")
			}

			err := r.ToError()
			var fe *FlowError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.code, fe.Code)
			assert.Equal(t, tt.message, fe.Message)
			assert.Equal(t, len(tt.errs), fe.Details["error_count"])
			assert.Equal(t, tt.warnings, fe.Details["warning_count"])
		})
	}
}
