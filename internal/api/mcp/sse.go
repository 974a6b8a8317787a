// Package mcp implements the MCP transport's HTTP surface (§6: GET
// /mcp/connect, POST /mcp/message, GET /mcp/status, GET
// /mcp/clients/{id}/status) plus a pooled websocket alternative to the SSE
// push stream, adapting the teacher's websocket.Hub connection-registration
// shape to the engine's split-pipe SessionManager.Downstream interface.
package mcp

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/flowloom/fabric/internal/mcp"
)

// sseDownstream adapts one SSE connection to mcp.Downstream: Send writes a
// JSON-RPC frame as one `data:` line, Close unblocks the handler's
// goroutine waiting on the request context.
type sseDownstream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newSSEDownstream(w http.ResponseWriter, flusher http.Flusher) *sseDownstream {
	return &sseDownstream{w: w, flusher: flusher, done: make(chan struct{})}
}

func (d *sseDownstream) Send(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
		return fmt.Errorf("mcp: sse downstream closed")
	default:
	}
	if _, err := fmt.Fprintf(d.w, "data: %s\n\n", frame); err != nil {
		return err
	}
	d.flusher.Flush()
	return nil
}

func (d *sseDownstream) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// ServeConnect implements "GET /mcp/connect?clientId=…": registers a new
// SSE downstream with the SessionManager for the lifetime of the
// connection, per §4.5's "at most one active stream per clientId."
func (h *Handler) ServeConnect(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId query param is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	down := newSSEDownstream(w, flusher)
	if err := h.sessions.Connect(clientID, down); err != nil {
		h.logger.Warn().Str("client_id", clientID).Err(err).Msg("mcp connect ping failed")
	}
	defer h.sessions.Disconnect(clientID)

	select {
	case <-r.Context().Done():
	case <-down.done:
	}
}

var _ mcp.Downstream = (*sseDownstream)(nil)
