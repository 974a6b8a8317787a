package mcp

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// wsUpgrader mirrors the teacher's websocket.Hub upgrader: permissive
// origin checking, since this transport is reached by first-party agents
// behind the tenant JWT check, not a public browser client.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsDownstream adapts a gorilla/websocket connection to mcp.Downstream, the
// pooled ws:// alternative to the SSE push stream (internal/mcp/pool.go's
// wsScheme).
type wsDownstream struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (d *wsDownstream) Send(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.WriteMessage(websocket.TextMessage, frame)
}

func (d *wsDownstream) Close() {
	_ = d.conn.Close()
}

// ServeConnectWS implements "GET /mcp/connect/ws?clientId=…", registering a
// websocket connection and then pumping inbound frames to HandleResponse
// until the socket closes — the same role handleMessage plays for the SSE
// transport's out-of-band POST, but here replies travel back over the same
// socket the engine pushes requests down.
func (h *Handler) ServeConnectWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId query param is required", http.StatusBadRequest)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Str("client_id", clientID).Err(err).Msg("mcp websocket upgrade failed")
		return
	}

	down := &wsDownstream{conn: conn}
	if err := h.sessions.Connect(clientID, down); err != nil {
		h.logger.Warn().Str("client_id", clientID).Err(err).Msg("mcp connect ping failed")
		_ = conn.Close()
		return
	}
	defer h.sessions.Disconnect(clientID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.sessions.HandleResponse(raw); err != nil {
			h.logger.Warn().Str("client_id", clientID).Err(err).Msg("mcp websocket response decode failed")
		}
	}
}
