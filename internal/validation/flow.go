package validation

import (
	"github.com/rendis/flowgraph/internal/compiler"
	"github.com/rendis/flowgraph/pkg/schema"
)

// FlowValidator orchestrates the three-stage pipeline for a legacy document:
// 1. Structural (JSON Schema on the raw document)
// 2. Compilation (step names, ownership, branch/children pairing)
// 3. Graph invariants on the compiled output
type FlowValidator struct {
	legacy *LegacyValidator
}

// NewFlowValidator creates a FlowValidator.
func NewFlowValidator() (*FlowValidator, error) {
	lv, err := NewLegacyValidator()
	if err != nil {
		return nil, err
	}
	return &FlowValidator{legacy: lv}, nil
}

// Validate runs the full pipeline on raw legacy JSON. Structural errors short-circuit:
// nothing is compiled. The compiled graph is returned when compilation succeeds.
func (fv *FlowValidator) Validate(raw []byte) (*schema.Graph, *schema.ValidationResult) {
	doc, result := fv.Compile(raw)
	if doc == nil {
		return nil, result
	}
	return doc.Graph, result
}

// Compile is Validate returning the whole compiled document, with every
// pass-through field of raw. The schema version is left as it was.
func (fv *FlowValidator) Compile(raw []byte) (*schema.Document, *schema.ValidationResult) {
	// Stage 1: Structural.
	result := validateStructural(fv.legacy, raw)
	if !result.Valid() {
		return nil, result
	}

	doc, err := schema.ParseDocument(raw)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}

	// Stage 2: Compilation.
	compiled, err := compiler.Compile(doc)
	if err != nil {
		addCompileError(result, err)
		return nil, result
	}

	// Stage 3: Invariants.
	result.Merge(CheckGraph(compiled.Graph))
	return compiled, result
}

// Check validates raw in whichever shape it has. A document carrying a graph and
// no trigger is checked against the graph invariants only; anything else goes
// through Compile. The returned document holds the graph that was checked.
func (fv *FlowValidator) Check(raw []byte) (*schema.Document, *schema.ValidationResult) {
	doc, err := schema.ParseDocument(raw)
	if err == nil && doc.Trigger == nil && doc.Graph != nil {
		return doc, CheckGraph(doc.Graph)
	}
	return fv.Compile(raw)
}

// ValidateLegacy satisfies the Validator interface.
func (fv *FlowValidator) ValidateLegacy(raw []byte) error {
	_, result := fv.Validate(raw)
	return result.ToError()
}

// ValidateGraph satisfies the Validator interface.
func (fv *FlowValidator) ValidateGraph(g *schema.Graph) error {
	return CheckGraph(g).ToError()
}

// validateStructural converts LegacyValidator output into a ValidationResult.
func validateStructural(v *LegacyValidator, raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateLegacy(raw)
	if err == nil {
		return result
	}

	flowErr, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if flowErr.Details != nil {
		if violations, ok := flowErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, flowErr.Message)
	return result
}

func addCompileError(result *schema.ValidationResult, err error) {
	code := schema.ErrorCode(err)
	if code == "" {
		code = schema.ErrCodeValidation
	}
	path := "/trigger"
	if fe, ok := err.(*schema.FlowError); ok {
		if fe.StepName != "" {
			path = "steps[" + fe.StepName + "]"
		}
		result.AddError(path, code, fe.Message)
		return
	}
	result.AddError(path, code, err.Error())
}

var _ Validator = (*FlowValidator)(nil)
