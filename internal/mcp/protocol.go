// Package mcp implements the MCP Transport (C11): a split-pipe channel
// where the engine pushes JSON-RPC requests down a per-tenant stream and
// correlates replies arriving on a separate inbound endpoint, grounded on
// the teacher's websocket.Hub client registry (per-client registration,
// concurrent broadcast, ping keepalive) restructured from a bidirectional
// socket hub into one-way push plus out-of-band response correlation, and
// on kadirpekel-hector's mcptoolset.go for the tools/list, tools/call
// method-name conventions.
package mcp

import "encoding/json"

// JSONRPCVersion is the only protocol version this transport speaks.
const JSONRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request or notification frame (ID empty means
// notification) pushed down a client's downstream stream.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response frame arriving on the inbound
// endpoint, matched back to a pending call by ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
