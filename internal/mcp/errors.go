package mcp

import "fmt"

// RPCError wraps a JSON-RPC error object returned by a client in reply to a
// sendRequest call.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

// TimeoutError is returned when a sendRequest call's per-call timeout
// elapses before a response arrives (default 30s, §4.5/§5).
type TimeoutError struct {
	RequestID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp: request %s timed out", e.RequestID)
}

// DisconnectedError is returned for calls against a clientId with no live
// downstream stream, and used to fail any pending calls still outstanding
// when a client disconnects.
type DisconnectedError struct {
	ClientID string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("mcp: client %s is disconnected", e.ClientID)
}
