// Package rest implements the Workflow and Execution REST API (§6): route
// registration, request/response marshaling, and the handlers that drive
// the Execution Service, grounded on the teacher's infrastructure/api/rest
// server.go (stdlib net/http.ServeMux with method-prefixed patterns).
package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowloom/fabric/internal/domain"
)

// The domain package's event-sourced aggregates carry no json tags of their
// own — Workflow and Execution are authoring/projection types, not wire
// formats, and Node's tagged-union shape doesn't map onto encoding/json's
// struct tags cleanly across nine variants. This file is the boundary
// translation layer spec §6's "compatibility-critical" camelCase Workflow
// and Execution-state JSON schemas require, converting in both directions
// without adding marshaling concerns to the domain model itself.

type workflowDTO struct {
	ID        string               `json:"id"`
	Version   string               `json:"version"`
	Metadata  metadataDTO          `json:"metadata"`
	Agents    map[string]agentDTO  `json:"agents,omitempty"`
	Rubrics   map[string]rubricRef `json:"rubrics,omitempty"`
	Nodes     map[string]nodeDTO   `json:"nodes"`
	StartNode string               `json:"startNode"`
	Config    *configDTO           `json:"config,omitempty"`
}

type metadataDTO struct {
	DisplayName string    `json:"displayName,omitempty"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

type agentDTO struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature,omitempty"`
	TimeoutSec  int            `json:"timeoutSec,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

type rubricRef struct {
	RubricID string     `json:"rubricId,omitempty"`
	Inline   *rubricDTO `json:"inline,omitempty"`
	Source   string     `json:"source,omitempty"`
}

type rubricDTO struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	Version       string         `json:"version,omitempty"`
	Type          string         `json:"type,omitempty"`
	PassThreshold float64        `json:"passThreshold"`
	Criteria      []criterionDTO `json:"criteria"`
}

type criterionDTO struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	Description     string  `json:"description,omitempty"`
	Weight          float64 `json:"weight"`
	MinScore        float64 `json:"minScore"`
	Required        bool    `json:"required,omitempty"`
	EvaluationType  string  `json:"evaluationType"`
	EvaluationLogic string  `json:"evaluationLogic,omitempty"`
}

type configDTO struct {
	MaxExecutionTimeMs int64  `json:"maxExecutionTimeMs,omitempty"`
	CheckpointPolicy   string `json:"checkpointPolicy,omitempty"`
	ObservabilityLevel string `json:"observabilityLevel,omitempty"`
}

type nodeDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Transitions []transitionDTO `json:"transitions,omitempty"`
	RubricID    string          `json:"rubricId,omitempty"`
	Standard    *standardDTO    `json:"standard,omitempty"`
	Action      *actionDTO      `json:"action,omitempty"`
	Generic     *genericDTO     `json:"generic,omitempty"`
	Parallel    *parallelDTO    `json:"parallel,omitempty"`
	Fork        *forkDTO        `json:"fork,omitempty"`
	Join        *joinDTO        `json:"join,omitempty"`
	SubWorkflow *subWorkflowDTO `json:"subWorkflow,omitempty"`
	Loop        *loopDTO        `json:"loop,omitempty"`
	End         *endDTO         `json:"end,omitempty"`
}

type transitionDTO struct {
	Kind       string         `json:"kind"`
	Target     string         `json:"target,omitempty"`
	MaxRetries int            `json:"maxRetries,omitempty"`
	Conditions []scoreCondDTO `json:"conditions,omitempty"`
}

type scoreCondDTO struct {
	Operator string  `json:"operator"`
	Value    float64 `json:"value,omitempty"`
	RangeLo  float64 `json:"rangeLo,omitempty"`
	RangeHi  float64 `json:"rangeHi,omitempty"`
	Target   string  `json:"target"`
}

type reviewConfigDTO struct {
	Mode string `json:"mode"`
}

type planningConfigDTO struct {
	Mode                string `json:"mode,omitempty"`
	ReviewBeforeExecute bool   `json:"reviewBeforeExecute,omitempty"`
	PlanFailureTarget   string `json:"planFailureTarget,omitempty"`
}

type planStepDTO struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type standardDTO struct {
	AgentID        string             `json:"agentId"`
	Prompt         string             `json:"prompt"`
	OutputParams   []string           `json:"outputParams,omitempty"`
	ReviewConfig   *reviewConfigDTO   `json:"reviewConfig,omitempty"`
	PlanningConfig *planningConfigDTO `json:"planningConfig,omitempty"`
	StaticPlan     []planStepDTO      `json:"staticPlan,omitempty"`
}

type actionStepDTO struct {
	Kind      string         `json:"kind"`
	HandlerID string         `json:"handlerId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CommandID string         `json:"commandId,omitempty"`
}

type actionDTO struct {
	Actions []actionStepDTO `json:"actions"`
}

type genericDTO struct {
	ExecutorType string         `json:"executorType"`
	Config       map[string]any `json:"config,omitempty"`
}

type branchDTO struct {
	ID       string  `json:"id"`
	AgentID  string  `json:"agentId"`
	Prompt   string  `json:"prompt"`
	RubricID string  `json:"rubricId,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

type consensusDTO struct {
	Strategy   string  `json:"strategy"`
	JudgeAgent string  `json:"judgeAgent,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
}

type parallelDTO struct {
	Branches  []branchDTO  `json:"branches"`
	Consensus consensusDTO `json:"consensus"`
}

type forkDTO struct {
	Targets    []string `json:"targets"`
	WaitForAll bool     `json:"waitForAll,omitempty"`
}

type joinDTO struct {
	AwaitTargets   []string `json:"awaitTargets"`
	MergeStrategy  string   `json:"mergeStrategy"`
	OutputField    string   `json:"outputField,omitempty"`
	TimeoutMs      int64    `json:"timeoutMs,omitempty"`
	FailOnAnyError bool     `json:"failOnAnyError,omitempty"`
}

type fieldMappingDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type subWorkflowDTO struct {
	ChildWorkflowID string            `json:"childWorkflowId"`
	InputMappings   []fieldMappingDTO `json:"inputMappings,omitempty"`
	OutputMappings  []fieldMappingDTO `json:"outputMappings,omitempty"`
}

type loopDTO struct {
	LoopBreakTarget string `json:"loopBreakTarget,omitempty"`
}

type endDTO struct {
	ExitStatus string `json:"exitStatus"`
}

// workflowToDTO converts a validated domain.Workflow into its wire shape.
func workflowToDTO(wf *domain.Workflow) workflowDTO {
	dto := workflowDTO{
		ID:      wf.ID,
		Version: wf.Version,
		Metadata: metadataDTO{
			DisplayName: wf.Metadata.DisplayName,
			Description: wf.Metadata.Description,
			Author:      wf.Metadata.Author,
			CreatedAt:   wf.Metadata.CreatedAt,
			UpdatedAt:   wf.Metadata.UpdatedAt,
			Tags:        wf.Metadata.Tags,
		},
		StartNode: wf.StartNode,
		Config: &configDTO{
			MaxExecutionTimeMs: wf.Config.MaxExecutionTime.Milliseconds(),
			CheckpointPolicy:   string(wf.Config.CheckpointPolicy),
			ObservabilityLevel: wf.Config.ObservabilityLevel,
		},
	}
	if len(wf.Agents) > 0 {
		dto.Agents = make(map[string]agentDTO, len(wf.Agents))
		for id, a := range wf.Agents {
			dto.Agents[id] = agentDTO{ID: a.ID, Provider: a.Provider, Model: a.Model, Temperature: a.Temperature, TimeoutSec: a.TimeoutSec, Config: a.Config}
		}
	}
	if len(wf.Rubrics) > 0 {
		dto.Rubrics = make(map[string]rubricRef, len(wf.Rubrics))
		for id, r := range wf.Rubrics {
			ref := rubricRef{RubricID: r.RubricID, Source: r.Source}
			if r.Inline != nil {
				ref.Inline = rubricToDTO(r.Inline)
			}
			dto.Rubrics[id] = ref
		}
	}
	dto.Nodes = make(map[string]nodeDTO, len(wf.Nodes))
	for id, n := range wf.Nodes {
		dto.Nodes[id] = nodeToDTO(n)
	}
	return dto
}

func rubricToDTO(r *domain.Rubric) *rubricDTO {
	out := &rubricDTO{ID: r.ID, Name: r.Name, Version: r.Version, Type: r.Type, PassThreshold: r.PassThreshold}
	for _, c := range r.Criteria {
		out.Criteria = append(out.Criteria, criterionDTO{
			ID: c.ID, Name: c.Name, Description: c.Description, Weight: c.Weight,
			MinScore: c.MinScore, Required: c.Required, EvaluationType: string(c.EvaluationType),
			EvaluationLogic: c.EvaluationLogic,
		})
	}
	return out
}

func nodeToDTO(n *domain.Node) nodeDTO {
	dto := nodeDTO{ID: n.ID, Type: string(n.Type), RubricID: n.RubricID}
	for _, t := range n.TransitionRules {
		td := transitionDTO{Kind: string(t.Kind), Target: t.Target, MaxRetries: t.MaxRetries}
		for _, c := range t.Conditions {
			td.Conditions = append(td.Conditions, scoreCondDTO{Operator: string(c.Operator), Value: c.Value, RangeLo: c.RangeLo, RangeHi: c.RangeHi, Target: c.Target})
		}
		dto.Transitions = append(dto.Transitions, td)
	}
	switch n.Type {
	case domain.NodeTypeStandard:
		if s := n.Standard; s != nil {
			sd := &standardDTO{AgentID: s.AgentID, Prompt: s.Prompt, OutputParams: s.OutputParams}
			if s.ReviewConfig != nil {
				sd.ReviewConfig = &reviewConfigDTO{Mode: string(s.ReviewConfig.Mode)}
			}
			if s.PlanningConfig != nil {
				sd.PlanningConfig = &planningConfigDTO{Mode: string(s.PlanningConfig.Mode), ReviewBeforeExecute: s.PlanningConfig.ReviewBeforeExecute, PlanFailureTarget: s.PlanningConfig.PlanFailureTarget}
			}
			for _, step := range s.StaticPlan {
				sd.StaticPlan = append(sd.StaticPlan, planStepDTO{Tool: step.Tool, Args: step.Args})
			}
			dto.Standard = sd
		}
	case domain.NodeTypeAction:
		if a := n.Action; a != nil {
			ad := &actionDTO{}
			for _, s := range a.Actions {
				ad.Actions = append(ad.Actions, actionStepDTO{Kind: string(s.Kind), HandlerID: s.HandlerID, Payload: s.Payload, CommandID: s.CommandID})
			}
			dto.Action = ad
		}
	case domain.NodeTypeGeneric:
		if g := n.Generic; g != nil {
			dto.Generic = &genericDTO{ExecutorType: g.ExecutorType, Config: g.Config}
		}
	case domain.NodeTypeParallel:
		if p := n.Parallel; p != nil {
			pd := &parallelDTO{Consensus: consensusDTO{Strategy: string(p.Consensus.Strategy), JudgeAgent: p.Consensus.JudgeAgent, Threshold: p.Consensus.Threshold}}
			for _, b := range p.Branches {
				pd.Branches = append(pd.Branches, branchDTO{ID: b.ID, AgentID: b.AgentID, Prompt: b.Prompt, RubricID: b.RubricID, Weight: b.Weight})
			}
			dto.Parallel = pd
		}
	case domain.NodeTypeFork:
		if f := n.Fork; f != nil {
			dto.Fork = &forkDTO{Targets: f.Targets, WaitForAll: f.WaitForAll}
		}
	case domain.NodeTypeJoin:
		if j := n.Join; j != nil {
			dto.Join = &joinDTO{AwaitTargets: j.AwaitTargets, MergeStrategy: string(j.MergeStrategy), OutputField: j.OutputField, TimeoutMs: j.TimeoutMs, FailOnAnyError: j.FailOnAnyError}
		}
	case domain.NodeTypeSubWorkflow:
		if sw := n.SubWorkflow; sw != nil {
			swd := &subWorkflowDTO{ChildWorkflowID: sw.ChildWorkflowID}
			for _, m := range sw.InputMappings {
				swd.InputMappings = append(swd.InputMappings, fieldMappingDTO{From: m.From, To: m.To})
			}
			for _, m := range sw.OutputMappings {
				swd.OutputMappings = append(swd.OutputMappings, fieldMappingDTO{From: m.From, To: m.To})
			}
			dto.SubWorkflow = swd
		}
	case domain.NodeTypeLoop:
		if l := n.Loop; l != nil {
			dto.Loop = &loopDTO{LoopBreakTarget: l.LoopBreakTarget}
		}
	case domain.NodeTypeEnd:
		if e := n.End; e != nil {
			dto.End = &endDTO{ExitStatus: string(e.ExitStatus)}
		}
	}
	return dto
}

// dtoToWorkflow converts a decoded wire object back into domain types,
// deferring all referential-integrity and required-field checks to
// domain.NewWorkflow's own ValidateForExecution call.
func dtoToWorkflow(dto workflowDTO) (*domain.Workflow, error) {
	var agents map[string]domain.AgentConfig
	if len(dto.Agents) > 0 {
		agents = make(map[string]domain.AgentConfig, len(dto.Agents))
		for id, a := range dto.Agents {
			agents[id] = domain.AgentConfig{ID: a.ID, Provider: a.Provider, Model: a.Model, Temperature: a.Temperature, TimeoutSec: a.TimeoutSec, Config: a.Config}
		}
	}
	var rubrics map[string]domain.RubricLocator
	if len(dto.Rubrics) > 0 {
		rubrics = make(map[string]domain.RubricLocator, len(dto.Rubrics))
		for id, r := range dto.Rubrics {
			loc := domain.RubricLocator{RubricID: r.RubricID, Source: r.Source}
			if r.Inline != nil {
				loc.Inline = dtoToRubric(r.Inline)
			}
			rubrics[id] = loc
		}
	}
	nodes := make(map[string]*domain.Node, len(dto.Nodes))
	for id, n := range dto.Nodes {
		node, err := dtoToNode(n)
		if err != nil {
			return nil, err
		}
		nodes[id] = node
	}

	cfg := domain.ExecutionConfig{}
	if dto.Config != nil {
		cfg.MaxExecutionTime = time.Duration(dto.Config.MaxExecutionTimeMs) * time.Millisecond
		cfg.CheckpointPolicy = domain.CheckpointPolicy(dto.Config.CheckpointPolicy)
		cfg.ObservabilityLevel = dto.Config.ObservabilityLevel
	}

	meta := domain.Metadata{
		DisplayName: dto.Metadata.DisplayName,
		Description: dto.Metadata.Description,
		Author:      dto.Metadata.Author,
		CreatedAt:   dto.Metadata.CreatedAt,
		UpdatedAt:   dto.Metadata.UpdatedAt,
		Tags:        dto.Metadata.Tags,
	}
	return domain.NewWorkflow(dto.ID, dto.Version, meta, agents, rubrics, nodes, dto.StartNode, cfg)
}

func dtoToRubric(r *rubricDTO) *domain.Rubric {
	out := &domain.Rubric{ID: r.ID, Name: r.Name, Version: r.Version, Type: r.Type, PassThreshold: r.PassThreshold}
	for _, c := range r.Criteria {
		out.Criteria = append(out.Criteria, domain.Criterion{
			ID: c.ID, Name: c.Name, Description: c.Description, Weight: c.Weight,
			MinScore: c.MinScore, Required: c.Required, EvaluationType: domain.EvaluationType(c.EvaluationType),
			EvaluationLogic: c.EvaluationLogic,
		})
	}
	return out
}

func dtoToNode(n nodeDTO) (*domain.Node, error) {
	node := &domain.Node{ID: n.ID, Type: domain.NodeType(n.Type), RubricID: n.RubricID}
	for _, t := range n.Transitions {
		tr := domain.TransitionRule{Kind: domain.TransitionKind(t.Kind), Target: t.Target, MaxRetries: t.MaxRetries}
		for _, c := range t.Conditions {
			tr.Conditions = append(tr.Conditions, domain.ScoreCondition{Operator: domain.ScoreOperator(c.Operator), Value: c.Value, RangeLo: c.RangeLo, RangeHi: c.RangeHi, Target: c.Target})
		}
		node.TransitionRules = append(node.TransitionRules, tr)
	}
	switch node.Type {
	case domain.NodeTypeStandard:
		if n.Standard == nil {
			return nil, fmt.Errorf("node %s: type standard requires a standard object", n.ID)
		}
		s := n.Standard
		spec := &domain.StandardSpec{AgentID: s.AgentID, Prompt: s.Prompt, OutputParams: s.OutputParams}
		if s.ReviewConfig != nil {
			spec.ReviewConfig = &domain.ReviewConfig{Mode: domain.ReviewMode(s.ReviewConfig.Mode)}
		}
		if s.PlanningConfig != nil {
			spec.PlanningConfig = &domain.PlanningConfig{Mode: domain.PlanningMode(s.PlanningConfig.Mode), ReviewBeforeExecute: s.PlanningConfig.ReviewBeforeExecute, PlanFailureTarget: s.PlanningConfig.PlanFailureTarget}
		}
		for _, step := range s.StaticPlan {
			spec.StaticPlan = append(spec.StaticPlan, domain.PlanStep{Tool: step.Tool, Args: step.Args})
		}
		node.Standard = spec
	case domain.NodeTypeAction:
		if n.Action == nil {
			return nil, fmt.Errorf("node %s: type action requires an action object", n.ID)
		}
		spec := &domain.ActionSpec{}
		for _, s := range n.Action.Actions {
			spec.Actions = append(spec.Actions, domain.ActionStep{Kind: domain.ActionKind(s.Kind), HandlerID: s.HandlerID, Payload: s.Payload, CommandID: s.CommandID})
		}
		node.Action = spec
	case domain.NodeTypeGeneric:
		if n.Generic == nil {
			return nil, fmt.Errorf("node %s: type generic requires a generic object", n.ID)
		}
		node.Generic = &domain.GenericSpec{ExecutorType: n.Generic.ExecutorType, Config: n.Generic.Config}
	case domain.NodeTypeParallel:
		if n.Parallel == nil {
			return nil, fmt.Errorf("node %s: type parallel requires a parallel object", n.ID)
		}
		p := n.Parallel
		spec := &domain.ParallelSpec{Consensus: domain.ConsensusConfig{Strategy: domain.ConsensusStrategy(p.Consensus.Strategy), JudgeAgent: p.Consensus.JudgeAgent, Threshold: p.Consensus.Threshold}}
		for _, b := range p.Branches {
			spec.Branches = append(spec.Branches, domain.Branch{ID: b.ID, AgentID: b.AgentID, Prompt: b.Prompt, RubricID: b.RubricID, Weight: b.Weight})
		}
		node.Parallel = spec
	case domain.NodeTypeFork:
		if n.Fork == nil {
			return nil, fmt.Errorf("node %s: type fork requires a fork object", n.ID)
		}
		node.Fork = &domain.ForkSpec{Targets: n.Fork.Targets, WaitForAll: n.Fork.WaitForAll}
	case domain.NodeTypeJoin:
		if n.Join == nil {
			return nil, fmt.Errorf("node %s: type join requires a join object", n.ID)
		}
		j := n.Join
		node.Join = &domain.JoinSpec{AwaitTargets: j.AwaitTargets, MergeStrategy: domain.JoinStrategy(j.MergeStrategy), OutputField: j.OutputField, TimeoutMs: j.TimeoutMs, FailOnAnyError: j.FailOnAnyError}
	case domain.NodeTypeSubWorkflow:
		if n.SubWorkflow == nil {
			return nil, fmt.Errorf("node %s: type subWorkflow requires a subWorkflow object", n.ID)
		}
		sw := n.SubWorkflow
		spec := &domain.SubWorkflowSpec{ChildWorkflowID: sw.ChildWorkflowID}
		for _, m := range sw.InputMappings {
			spec.InputMappings = append(spec.InputMappings, domain.FieldMapping{From: m.From, To: m.To})
		}
		for _, m := range sw.OutputMappings {
			spec.OutputMappings = append(spec.OutputMappings, domain.FieldMapping{From: m.From, To: m.To})
		}
		node.SubWorkflow = spec
	case domain.NodeTypeLoop:
		target := ""
		if n.Loop != nil {
			target = n.Loop.LoopBreakTarget
		}
		node.Loop = &domain.LoopSpec{LoopBreakTarget: target}
	case domain.NodeTypeEnd:
		exitStatus := domain.ExitSuccess
		if n.End != nil {
			exitStatus = domain.ExitStatus(n.End.ExitStatus)
		}
		node.End = &domain.EndSpec{ExitStatus: exitStatus}
	default:
		return nil, fmt.Errorf("node %s: unknown node type %q", n.ID, n.Type)
	}
	return node, nil
}

// decodeWorkflow parses body into a domain.Workflow via workflowDTO.
func decodeWorkflow(body []byte) (*domain.Workflow, error) {
	var dto workflowDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return dtoToWorkflow(dto)
}

// executionStateDTO is the wire shape of §6's Execution state schema:
// {workflowId, currentNode, context, history, rubricEvaluation?,
// loopBreakTarget?}.
type executionStateDTO struct {
	ExecutionID      string         `json:"executionId"`
	WorkflowID       string         `json:"workflowId"`
	WorkflowVersion  string         `json:"workflowVersion"`
	Status           string         `json:"status"`
	CurrentNode      string         `json:"currentNode"`
	Context          map[string]any `json:"context"`
	History          historyDTO     `json:"history"`
	RubricEvaluation map[string]any `json:"rubricEvaluation,omitempty"`
	LoopBreakTarget  string         `json:"loopBreakTarget,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

type historyDTO struct {
	Steps      []stepDTO      `json:"steps"`
	Backtracks []backtrackDTO `json:"backtracks,omitempty"`
}

type stepDTO struct {
	NodeID    string    `json:"nodeId"`
	Status    string    `json:"status"`
	Output    any       `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type backtrackDTO struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// executionToDTO projects a domain.Execution into its §6 wire shape.
func executionToDTO(exec *domain.Execution) executionStateDTO {
	dto := executionStateDTO{
		ExecutionID:     exec.ID,
		WorkflowID:      exec.WorkflowID,
		WorkflowVersion: exec.WorkflowVersion,
		Status:          string(exec.Status),
		CurrentNode:     exec.CurrentNode,
		Context:         exec.Ctx.Snapshot(),
		LoopBreakTarget: exec.LoopBreakTarget,
		Error:           exec.Error,
		StartedAt:       exec.StartedAt,
		UpdatedAt:       exec.UpdatedAt,
		CompletedAt:     exec.CompletedAt,
	}
	for _, step := range exec.History {
		dto.History.Steps = append(dto.History.Steps, stepDTO{
			NodeID: step.NodeID, Status: string(step.Result.Status), Output: step.Result.Output,
			Error: step.Result.Error, Timestamp: step.Timestamp,
		})
	}
	for _, bt := range exec.Backtracks {
		dto.History.Backtracks = append(dto.History.Backtracks, backtrackDTO{
			From: bt.From, To: bt.To, Reason: bt.Reason, Type: string(bt.Type), Timestamp: bt.Timestamp,
		})
	}
	if len(exec.RubricEvaluations) > 0 {
		dto.RubricEvaluation = make(map[string]any, len(exec.RubricEvaluations))
		for nodeID, eval := range exec.RubricEvaluations {
			dto.RubricEvaluation[nodeID] = eval
		}
	}
	return dto
}
