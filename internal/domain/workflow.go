package domain

import "time"

// AgentConfig describes a registered Agent's static configuration.
type AgentConfig struct {
	ID          string
	Provider    string
	Model       string
	Temperature float64
	TimeoutSec  int
	Config      map[string]any
}

// RubricLocator points at where a rubric's source lives (inline or an
// external reference resolved lazily by the Rubric Engine).
type RubricLocator struct {
	RubricID string
	Inline   *Rubric
	Source   string // optional external locator (file path, URL, etc.)
}

// Metadata carries display/authoring information for a Workflow.
type Metadata struct {
	DisplayName string
	Description string
	Author      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Tags        []string
}

// CheckpointPolicy controls when the driver persists a snapshot.
type CheckpointPolicy string

const (
	CheckpointEveryNode CheckpointPolicy = "every_node"
	CheckpointOnPause   CheckpointPolicy = "on_pause"
)

// ExecutionConfig bounds a workflow's runtime behavior.
type ExecutionConfig struct {
	MaxExecutionTime   time.Duration
	CheckpointPolicy   CheckpointPolicy
	ObservabilityLevel string
}

// Workflow is the immutable, validated definition of a workflow graph. It is
// built once (via NewWorkflow/ReconstructWorkflow) and never mutated; a
// "change" to a workflow produces a new Workflow with a bumped Version.
type Workflow struct {
	ID         string
	Version    string
	Metadata   Metadata
	Agents     map[string]AgentConfig
	Rubrics    map[string]RubricLocator
	Nodes      map[string]*Node
	StartNode  string
	Config     ExecutionConfig
}

// NewWorkflow constructs and validates a Workflow for execution.
func NewWorkflow(id, version string, metadata Metadata, agents map[string]AgentConfig, rubrics map[string]RubricLocator, nodes map[string]*Node, startNode string, cfg ExecutionConfig) (*Workflow, error) {
	w := &Workflow{
		ID:        id,
		Version:   version,
		Metadata:  metadata,
		Agents:    agents,
		Rubrics:   rubrics,
		Nodes:     nodes,
		StartNode: startNode,
		Config:    cfg,
	}
	if err := w.ValidateForExecution(); err != nil {
		return nil, err
	}
	return w, nil
}

// ReconstructWorkflow rebuilds a Workflow from persisted fields without
// re-deriving validation failures as construction errors (used when loading
// from storage, where the workflow was already validated on upsert).
func ReconstructWorkflow(id, version string, metadata Metadata, agents map[string]AgentConfig, rubrics map[string]RubricLocator, nodes map[string]*Node, startNode string, cfg ExecutionConfig) *Workflow {
	return &Workflow{
		ID:        id,
		Version:   version,
		Metadata:  metadata,
		Agents:    agents,
		Rubrics:   rubrics,
		Nodes:     nodes,
		StartNode: startNode,
		Config:    cfg,
	}
}

// ValidateStructure checks referential integrity only: every transition
// target, fork target and rubricId references a real entry. It does not
// check the graph for cycles, and it does not require a start node to be set.
func (w *Workflow) ValidateStructure() error {
	if w.ID == "" {
		return NewDomainError(ErrCodeInvalidInput, "workflow id is required", nil)
	}
	if len(w.Nodes) == 0 {
		return NewDomainError(ErrCodeInvalidInput, "workflow must have at least one node", nil)
	}
	for nodeID, n := range w.Nodes {
		if n.ID != nodeID {
			return NewDomainError(ErrCodeInvariantViolated, "node map key does not match node id: "+nodeID, nil)
		}
		if n.RubricID != "" {
			if _, ok := w.Rubrics[n.RubricID]; !ok {
				return NewDomainError(ErrCodeNotFound, "node "+nodeID+" references unknown rubric "+n.RubricID, nil)
			}
		}
		for _, rule := range n.TransitionRules {
			for _, target := range w.transitionTargets(rule) {
				if _, ok := w.Nodes[target]; !ok {
					return NewDomainError(ErrCodeNotFound, "node "+nodeID+" has transition to unknown node "+target, nil)
				}
			}
		}
		if n.Type == NodeTypeFork && n.Fork != nil {
			for _, t := range n.Fork.Targets {
				if _, ok := w.Nodes[t]; !ok {
					return NewDomainError(ErrCodeNotFound, "fork "+nodeID+" targets unknown node "+t, nil)
				}
			}
		}
		if n.Type == NodeTypeSubWorkflow && n.SubWorkflow != nil && n.SubWorkflow.ChildWorkflowID == "" {
			return NewDomainError(ErrCodeInvalidInput, "sub-workflow node "+nodeID+" must name a child workflow", nil)
		}
	}
	return nil
}

func (w *Workflow) transitionTargets(rule TransitionRule) []string {
	switch rule.Kind {
	case TransitionAlways, TransitionSuccess, TransitionFailure:
		if rule.Target == "" {
			return nil
		}
		return []string{rule.Target}
	case TransitionScore:
		targets := make([]string, 0, len(rule.Conditions))
		for _, c := range rule.Conditions {
			if c.Target != "" {
				targets = append(targets, c.Target)
			}
		}
		return targets
	}
	return nil
}

// ValidateForExecution additionally requires a valid, reachable start node.
func (w *Workflow) ValidateForExecution() error {
	if err := w.ValidateStructure(); err != nil {
		return err
	}
	if w.StartNode == "" {
		return NewDomainError(ErrCodeInvalidInput, "workflow.startNode is required", nil)
	}
	if _, ok := w.Nodes[w.StartNode]; !ok {
		return NewDomainError(ErrCodeNotFound, "workflow.startNode references unknown node "+w.StartNode, nil)
	}
	return nil
}

// Node returns the node with the given id, or nil if absent.
func (w *Workflow) Node(id string) *Node {
	return w.Nodes[id]
}
