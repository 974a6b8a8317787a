package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/flowloom/fabric/internal/tracing"
)

// defaultRequestTimeout is the default per-call ceiling on sendRequest
// (§5: "MCP sendRequest has a default timeout (30 s)").
const defaultRequestTimeout = 30 * time.Second

// Downstream is the push side of one client's split-pipe channel. The
// transport layer (an SSE or websocket handler in internal/api/mcp) adapts
// its wire connection to this interface; SessionManager never touches a
// socket directly.
type Downstream interface {
	Send(frame []byte) error
	Close()
}

type pendingCall struct {
	clientID string
	resultCh chan callResult
}

type callResult struct {
	result json.RawMessage
	err    error
}

// SessionManager is the engine side of the MCP split-pipe transport: one
// live Downstream per clientId (a tenant id, per §4.5), and a
// pendingRequests table correlating inbound responses back to the
// sendRequest call awaiting them. Both tables are concurrent maps per §5's
// "Session manager ... accessed concurrently" requirement.
type SessionManager struct {
	clients *xsync.MapOf[string, Downstream]
	pending *xsync.MapOf[string, *pendingCall]
	timeout time.Duration

	hooksMu sync.Mutex
	hooks   []func(clientID string)
}

func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &SessionManager{
		clients: xsync.NewMapOf[string, Downstream](),
		pending: xsync.NewMapOf[string, *pendingCall](),
		timeout: timeout,
	}
}

// Connect registers clientId's downstream stream. Per clientId there is at
// most one active stream; a new subscription replaces and cleanly closes
// the prior one, then an initial ping notification confirms liveness.
func (m *SessionManager) Connect(clientID string, stream Downstream) error {
	if prev, ok := m.clients.Load(clientID); ok {
		prev.Close()
	}
	m.clients.Store(clientID, stream)

	ping := Request{JSONRPC: JSONRPCVersion, Method: "ping"}
	frame, err := json.Marshal(ping)
	if err != nil {
		return fmt.Errorf("encode ping: %w", err)
	}
	return stream.Send(frame)
}

// Disconnect removes clientId's stream and fails every call still pending
// for it with DisconnectedError, then runs any registered disconnect hooks
// (e.g. a ToolClient's cache invalidation).
func (m *SessionManager) Disconnect(clientID string) {
	if stream, ok := m.clients.LoadAndDelete(clientID); ok {
		stream.Close()
	}
	m.pending.Range(func(id string, call *pendingCall) bool {
		if call.clientID == clientID {
			deliver(call, callResult{err: &DisconnectedError{ClientID: clientID}})
			m.pending.Delete(id)
		}
		return true
	})

	m.hooksMu.Lock()
	hooks := append([]func(string){}, m.hooks...)
	m.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(clientID)
	}
}

// OnDisconnect registers fn to run whenever a client disconnects.
func (m *SessionManager) OnDisconnect(fn func(clientID string)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// IsConnected reports whether clientId currently has a live downstream.
func (m *SessionManager) IsConnected(clientID string) bool {
	_, ok := m.clients.Load(clientID)
	return ok
}

// ConnectedClients returns the count of live downstream streams.
func (m *SessionManager) ConnectedClients() int {
	n := 0
	m.clients.Range(func(string, Downstream) bool { n++; return true })
	return n
}

// PendingRequests returns the count of in-flight sendRequest calls.
func (m *SessionManager) PendingRequests() int {
	n := 0
	m.pending.Range(func(string, *pendingCall) bool { n++; return true })
	return n
}

// SendRequest implements the round-trip protocol of §4.5: generate a fresh
// request id, record a future, push the frame, and block until the future
// resolves, the timeout elapses, or ctx is cancelled.
func (m *SessionManager) SendRequest(ctx context.Context, clientID, method string, params any) (json.RawMessage, error) {
	ctx, span := tracing.StartMCPSpan(ctx, clientID, method)
	var spanErr error
	defer func() { tracing.EndMCP(span, spanErr) }()

	stream, ok := m.clients.Load(clientID)
	if !ok {
		spanErr = &DisconnectedError{ClientID: clientID}
		return nil, spanErr
	}

	paramsJSON, err := marshalParams(params)
	if err != nil {
		spanErr = fmt.Errorf("encode params: %w", err)
		return nil, spanErr
	}

	id := uuid.NewString()
	call := &pendingCall{clientID: clientID, resultCh: make(chan callResult, 1)}
	m.pending.Store(id, call)
	defer m.pending.Delete(id)

	frame, err := json.Marshal(Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: paramsJSON})
	if err != nil {
		spanErr = fmt.Errorf("encode request: %w", err)
		return nil, spanErr
	}
	if err := stream.Send(frame); err != nil {
		spanErr = fmt.Errorf("push request: %w", err)
		return nil, spanErr
	}

	select {
	case res := <-call.resultCh:
		spanErr = res.err
		return res.result, res.err
	case <-time.After(m.timeout):
		spanErr = &TimeoutError{RequestID: id}
		return nil, spanErr
	case <-ctx.Done():
		spanErr = ctx.Err()
		return nil, spanErr
	}
}

// SendNotification pushes a frame with no id and tracks no future.
func (m *SessionManager) SendNotification(clientID, method string, params any) error {
	stream, ok := m.clients.Load(clientID)
	if !ok {
		return &DisconnectedError{ClientID: clientID}
	}
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	frame, err := json.Marshal(Request{JSONRPC: JSONRPCVersion, Method: method, Params: paramsJSON})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return stream.Send(frame)
}

// HandleResponse parses an inbound JSON-RPC response frame and completes
// the matching pending call, if any. An unknown or already-resolved id is
// not an error: the call may have already timed out or the client may have
// retried a stale response.
func (m *SessionManager) HandleResponse(raw []byte) error {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	call, ok := m.pending.LoadAndDelete(resp.ID)
	if !ok {
		return nil
	}
	var err error
	if resp.Error != nil {
		err = &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	deliver(call, callResult{result: resp.Result, err: err})
	return nil
}

// deliver is non-blocking: resultCh is always buffered by one, so this only
// guards against a call already completed by a race with Disconnect.
func deliver(call *pendingCall, res callResult) {
	select {
	case call.resultCh <- res:
	default:
	}
}
