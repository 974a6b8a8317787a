package mcp

import (
	"context"
	"fmt"
	"strings"
)

// sseScheme and wsScheme both address a client already registered with a
// SessionManager — sse://clientId via the spec's §6 SSE push-stream
// transport, ws://clientId via the gorilla/websocket pooled-connection
// transport this engine also offers for the same split-pipe session (the
// SessionManager's Downstream interface is transport-agnostic, so the
// scheme only selects which handler owns the socket). An HTTP-style
// request/response endpoint is explicitly out of scope (§6): every MCP tool
// call flows through one of these two split-pipe sessions, never a direct
// outbound request.
const (
	sseScheme = "sse://"
	wsScheme  = "ws://"
)

// Pool resolves an endpoint string to the clientId a SessionManager can
// route a sendRequest call to. It exists so call sites address tools by a
// single endpoint string instead of threading clientId and SessionManager
// through separately.
type Pool struct {
	sessions *SessionManager
}

func NewPool(sessions *SessionManager) *Pool {
	return &Pool{sessions: sessions}
}

// Resolve parses endpoint and confirms the named client currently has a
// live downstream stream.
func (p *Pool) Resolve(endpoint string) (clientID string, err error) {
	clientID, ok := strings.CutPrefix(endpoint, sseScheme)
	if !ok {
		clientID, ok = strings.CutPrefix(endpoint, wsScheme)
	}
	if !ok {
		return "", fmt.Errorf("mcp: unsupported endpoint scheme %q", endpoint)
	}
	if clientID == "" {
		return "", fmt.Errorf("mcp: empty clientId in endpoint %q", endpoint)
	}
	if !p.sessions.IsConnected(clientID) {
		return "", &DisconnectedError{ClientID: clientID}
	}
	return clientID, nil
}

// ListTools resolves endpoint and lists its tools via tools.
func (p *Pool) ListTools(ctx context.Context, tools *ToolClient, endpoint string) ([]Tool, error) {
	clientID, err := p.Resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return tools.ListTools(ctx, clientID)
}

// CallTool resolves endpoint and invokes toolName via tools.
func (p *Pool) CallTool(ctx context.Context, tools *ToolClient, endpoint, toolName string, args map[string]any) (any, error) {
	clientID, err := p.Resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return tools.CallTool(ctx, clientID, toolName, args)
}
