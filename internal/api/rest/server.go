package rest

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/flowloom/fabric/internal/api/middleware"
	"github.com/flowloom/fabric/internal/service"
)

// identifierKeys names the wire fields ValidateIdentifiers treats as
// identifiers rather than free text when walking a decoded workflow body.
var identifierKeys = map[string]bool{
	"id": true, "startNode": true, "target": true, "agentId": true,
	"rubricId": true, "childWorkflowId": true, "handlerId": true, "commandId": true,
}

// Server is the Workflow and Execution REST API (§6), a thin http.Handler
// wrapping a *service.Service behind tenant resolution and the shared
// logging/recovery/CORS middleware chain, grounded on the teacher's
// rest.Server (ServeMux + constructor-injected store/logger).
type Server struct {
	svc      *service.Service
	resolver *middleware.TenantResolver
	logger   *zerolog.Logger
	mux      *http.ServeMux
}

func NewServer(svc *service.Service, resolver *middleware.TenantResolver, logger *zerolog.Logger) *Server {
	s := &Server{svc: svc, resolver: resolver, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/v1/workflows", s.handleUpsertWorkflow)
	s.mux.HandleFunc("GET /api/v1/workflows", s.handleListWorkflows)
	s.mux.HandleFunc("GET /api/v1/workflows/{id}", s.handleGetWorkflow)
	s.mux.HandleFunc("DELETE /api/v1/workflows/{id}", s.handleDeleteWorkflow)

	s.mux.HandleFunc("POST /api/v1/executions", s.handleStartExecution)
	s.mux.HandleFunc("GET /api/v1/executions/paused", s.handleListPaused)
	s.mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGetExecution)
	s.mux.HandleFunc("POST /api/v1/executions/{id}/resume", s.handleResumeExecution)
	s.mux.HandleFunc("GET /api/v1/executions/{id}/plan", s.handleGetPlan)
	s.mux.HandleFunc("GET /api/v1/executions/{id}/result", s.handleGetResult)
	s.mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.handleCancelExecution)
}

// Handler wraps the route mux with the tenant/logging/recovery/CORS chain
// every request passes through, in the order the teacher's NewServer +
// middleware.go compose theirs.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		func(h http.Handler) http.Handler { return middleware.Recovery(s.logger, h) },
		func(h http.Handler) http.Handler { return middleware.Logging(s.logger, h) },
		middleware.CORS,
		s.resolver.Middleware,
	)
}

func tenantID(r *http.Request) string {
	id, _ := middleware.TenantFromContext(r.Context())
	return id
}
