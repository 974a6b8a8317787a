package domain

// Node is a tagged-union step in a workflow graph. Only the fields matching
// Type are populated; the rest are nil. This replaces subtype polymorphism
// with a single struct dispatched on Type, per the redesign direction of
// treating node variants as a tagged variant rather than an inheritance
// hierarchy.
type Node struct {
	ID              string
	Type            NodeType
	TransitionRules []TransitionRule
	RubricID        string // optional, empty if none

	Standard    *StandardSpec
	Action      *ActionSpec
	Generic     *GenericSpec
	Parallel    *ParallelSpec
	Fork        *ForkSpec
	Join        *JoinSpec
	SubWorkflow *SubWorkflowSpec
	Loop        *LoopSpec
	End         *EndSpec
}

// ReviewConfig gates the human review post-processor for a Standard node.
type ReviewConfig struct {
	Mode ReviewMode
}

// PlanningConfig controls whether a Standard node runs a plan instead of a
// single prompt/response round trip.
type PlanningConfig struct {
	Mode                PlanningMode
	ReviewBeforeExecute bool
	PlanFailureTarget   string // optional node id to route to on plan failure
}

// PlanStep is one step of a static plan.
type PlanStep struct {
	Tool string
	Args map[string]any
}

type StandardSpec struct {
	AgentID        string
	Prompt         string
	OutputParams   []string
	ReviewConfig   *ReviewConfig
	PlanningConfig *PlanningConfig
	StaticPlan     []PlanStep
}

// ActionKind discriminates the two action shapes in an Action node.
type ActionKind string

const (
	ActionSend    ActionKind = "send"
	ActionExecute ActionKind = "execute"
)

type ActionStep struct {
	Kind ActionKind

	// Send
	HandlerID string
	Payload   map[string]any

	// Execute
	CommandID string
}

type ActionSpec struct {
	Actions []ActionStep
}

type GenericSpec struct {
	ExecutorType string
	Config       map[string]any
}

type Branch struct {
	ID       string
	AgentID  string
	Prompt   string
	RubricID string // optional
	Weight   float64
}

type ConsensusConfig struct {
	Strategy   ConsensusStrategy
	JudgeAgent string // optional, required for JudgeDecides
	Threshold  float64
}

type ParallelSpec struct {
	Branches  []Branch
	Consensus ConsensusConfig
}

type ForkSpec struct {
	Targets     []string
	WaitForAll  bool
}

type JoinSpec struct {
	AwaitTargets   []string
	MergeStrategy  JoinStrategy
	OutputField    string
	TimeoutMs      int64
	FailOnAnyError bool
}

type FieldMapping struct {
	From string
	To   string
}

type SubWorkflowSpec struct {
	ChildWorkflowID string
	InputMappings   []FieldMapping
	OutputMappings  []FieldMapping
}

type LoopSpec struct {
	// LoopBreakTarget is the node id this loop exits to, carried as data so
	// the transition processor can consult state.loopBreakTarget /
	// context["loop_exit_target"] before falling through to transitionRules.
	LoopBreakTarget string
}

type EndSpec struct {
	ExitStatus ExitStatus
}

// TransitionRule is a tagged-union sum type over the four transition shapes,
// evaluated in declaration order by the transition resolution processor.
type TransitionRule struct {
	Kind TransitionKind

	// Always / Success
	Target string

	// Failure
	MaxRetries int

	// Score
	Conditions []ScoreCondition
}

type ScoreCondition struct {
	Operator ScoreOperator
	Value    float64
	RangeLo  float64
	RangeHi  float64
	Target   string
}
