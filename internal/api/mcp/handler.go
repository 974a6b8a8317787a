package mcp

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/flowloom/fabric/internal/api/middleware"
	"github.com/flowloom/fabric/internal/mcp"
)

const maxMessageBodyBytes = 1024 * 1024

// Handler serves §6's MCP endpoint table plus the websocket pool
// alternative (ws.go), wrapping one shared *mcp.SessionManager.
type Handler struct {
	sessions *mcp.SessionManager
	logger   *zerolog.Logger
}

func NewHandler(sessions *mcp.SessionManager, logger *zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// Routes registers every MCP endpoint onto mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /mcp/connect", h.ServeConnect)
	mux.HandleFunc("GET /mcp/connect/ws", h.ServeConnectWS)
	mux.HandleFunc("POST /mcp/message", h.handleMessage)
	mux.HandleFunc("GET /mcp/status", h.handleStatus)
	mux.HandleFunc("GET /mcp/clients/{id}/status", h.handleClientStatus)
}

// handleMessage implements "POST /mcp/message": the out-of-band inbound
// endpoint a downstream client posts its JSON-RPC responses to when
// connected over the SSE transport (the websocket transport instead reads
// responses directly off its own socket in ws.go).
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBodyBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxMessageBodyBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "message body too large")
		return
	}
	if err := h.sessions.HandleResponse(body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus implements "GET /mcp/status": {connectedClients,
// pendingRequests}.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"connectedClients": h.sessions.ConnectedClients(),
		"pendingRequests":  h.sessions.PendingRequests(),
	})
}

// handleClientStatus implements "GET /mcp/clients/{id}/status":
// {clientId, connected}.
func (h *Handler) handleClientStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidIdentifier(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"clientId":  id,
		"connected": h.sessions.IsConnected(id),
	})
}
