package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/flowloom/fabric/internal/api/middleware"
)

const maxWorkflowBodyBytes = 2 * 1024 * 1024

// handleUpsertWorkflow implements "POST /api/v1/workflows" (§6): decode,
// validate identifiers, then let the Execution Service's own
// ValidateForExecution call authoritatively reject a malformed graph.
func (s *Server) handleUpsertWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWorkflowBodyBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxWorkflowBodyBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "workflow body too large")
		return
	}

	wf, err := decodeWorkflow(body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !middleware.ValidIdentifier(wf.ID) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err == nil {
		if badKey, badValue, ok := middleware.ValidateIdentifiers(raw, identifierKeys); !ok {
			middleware.WriteError(w, http.StatusBadRequest, "invalid identifier in workflow."+badKey+": "+badValue)
			return
		}
	}

	updated, err := s.svc.SaveWorkflow(r.Context(), tenantID(r), wf)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusCreated
	if updated {
		status = http.StatusOK
	}
	middleware.WriteJSON(w, status, workflowToDTO(wf))
}

// handleListWorkflows implements "GET /api/v1/workflows": {id, version}
// summaries across every version registered for the caller's tenant.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.svc.ListWorkflowSummaries(r.Context(), tenantID(r))
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	out := make([]map[string]string, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, map[string]string{"id": sum.ID, "version": sum.Version})
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// handleGetWorkflow implements "GET /api/v1/workflows/{id}", returning the
// latest version; a ?version= query parameter is not read.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	wf, err := s.svc.LoadLatestWorkflow(r.Context(), tenantID(r), id)
	if err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, workflowToDTO(wf))
}

// handleDeleteWorkflow implements "DELETE /api/v1/workflows/{id}?version=".
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version := r.URL.Query().Get("version")
	if !middleware.ValidIdentifier(id) || version == "" || !middleware.ValidIdentifier(version) {
		middleware.WriteError(w, http.StatusBadRequest, "id and version query param are required")
		return
	}
	if err := s.svc.DeleteWorkflow(r.Context(), tenantID(r), id, version); err != nil {
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
