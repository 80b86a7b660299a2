package schema

// StepKind tags a legacy step. Only ROUTER and LOOP_ON_ITEMS carry structure;
// every other kind is an ordinary action and is carried through opaquely.
type StepKind string

const (
	StepKindRouter       StepKind = "ROUTER"
	StepKindLoopOnItems  StepKind = "LOOP_ON_ITEMS"
	StepKindPiece        StepKind = "PIECE"
	StepKindCode         StepKind = "CODE"
	StepKindPieceTrigger StepKind = "PIECE_TRIGGER"
	StepKindEmpty        StepKind = "EMPTY"
)

// LegacyStep is one step of the linked-list flow representation.
// The trigger has the same shape and is the root of the main chain.
type LegacyStep struct {
	Name        string         `json:"name"`
	Type        StepKind       `json:"type"`
	DisplayName string         `json:"displayName"`
	Valid       bool           `json:"valid"`
	Skip        *bool          `json:"skip,omitempty"`
	Settings    map[string]any `json:"settings"`

	NextAction      *LegacyStep   `json:"nextAction,omitempty"`
	Children        []*LegacyStep `json:"children,omitempty"`        // ROUTER only; nil entries are empty branches
	FirstLoopAction *LegacyStep   `json:"firstLoopAction,omitempty"` // LOOP_ON_ITEMS only
}

// IsRouter reports whether the step is a multi-branch router.
func (s *LegacyStep) IsRouter() bool { return s.Type == StepKindRouter }

// IsLoop reports whether the step is a loop container.
func (s *LegacyStep) IsLoop() bool { return s.Type == StepKindLoopOnItems }

// BranchType discriminates condition branches from the fallback branch.
type BranchType string

const (
	BranchTypeCondition BranchType = "CONDITION"
	BranchTypeFallback  BranchType = "FALLBACK"
)

// BranchDescriptor is one entry of a router's settings.branches list.
// Conditions is an uninterpreted nested list of predicate groups.
type BranchDescriptor struct {
	BranchName string     `json:"branchName" mapstructure:"branchName"`
	BranchType BranchType `json:"branchType" mapstructure:"branchType"`
	Conditions any        `json:"conditions,omitempty" mapstructure:"conditions"`
}

// RouterBranchesKey is the settings key holding a router's branch descriptors.
const RouterBranchesKey = "branches"
