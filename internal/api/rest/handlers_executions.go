package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/flowloom/fabric/internal/api/middleware"
	"github.com/flowloom/fabric/internal/domain"
)

const maxExecutionBodyBytes = 1024 * 1024

type startExecutionRequest struct {
	WorkflowID string         `json:"workflowId"`
	Input      map[string]any `json:"input,omitempty"`
}

type startExecutionResponse struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
}

// handleStartExecution implements "POST /api/v1/executions" (§6: "202 with
// {executionId, workflowId}").
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxExecutionBodyBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req startExecutionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !middleware.ValidIdentifier(req.WorkflowID) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid workflowId")
		return
	}
	if badKey, badValue, ok := middleware.ValidateIdentifiers(req.Input, identifierKeys); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid identifier in input."+badKey+": "+badValue)
		return
	}

	exec, err := s.svc.Start(r.Context(), tenantID(r), req.WorkflowID, req.Input)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, startExecutionResponse{ExecutionID: exec.ID, WorkflowID: exec.WorkflowID})
}

// handleGetExecution implements "GET /api/v1/executions/{id}".
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	exec, err := s.svc.Query(r.Context(), tenantID(r), id)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, executionToDTO(exec))
}

type resumeExecutionRequest struct {
	Approved      bool           `json:"approved"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// handleResumeExecution implements "POST /api/v1/executions/{id}/resume".
func (s *Server) handleResumeExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	var req resumeExecutionRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxExecutionBodyBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if badKey, badValue, ok := middleware.ValidateIdentifiers(req.Modifications, identifierKeys); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid identifier in modifications."+badKey+": "+badValue)
		return
	}

	exec, err := s.svc.Resume(r.Context(), tenantID(r), id, req.Approved, req.Modifications)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, executionToDTO(exec))
}

// handleGetPlan implements "GET /api/v1/executions/{id}/plan": the staged
// plan a paused execution's current node is waiting for approval on, returned
// in the {planId, totalSteps, currentStep} shape spec.md documents (the graph
// driver stages it into Execution.Ctx under `_plan_<nodeID>` at pause time).
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	exec, err := s.svc.Query(r.Context(), tenantID(r), id)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	if exec.Status != domain.StatusPaused {
		middleware.WriteError(w, http.StatusConflict, "execution is not paused")
		return
	}
	vars := exec.Ctx.Snapshot()
	plan, ok := vars["_plan_"+exec.CurrentNode]
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "no staged plan for current node")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, plan)
}

// handleGetResult implements "GET /api/v1/executions/{id}/result".
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	out, err := s.svc.Result(r.Context(), tenantID(r), id)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// handleListPaused implements "GET /api/v1/executions/paused".
func (s *Server) handleListPaused(w http.ResponseWriter, r *http.Request) {
	paused, err := s.svc.ListPaused(r.Context(), tenantID(r))
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	out := make([]executionStateDTO, 0, len(paused))
	for _, exec := range paused {
		out = append(out, executionToDTO(exec))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// handleCancelExecution implements "POST /api/v1/executions/{id}/cancel", a
// supplemental operation beyond §6's explicit table (original_source/'s
// executor exposes cancellation and the Execution Service already supports
// it cooperatively; exposing it over REST costs nothing extra and closes an
// otherwise-unreachable capability).
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	if err := s.svc.Cancel(tenantID(r), id); err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
