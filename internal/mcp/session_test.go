package mcp_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/mcp"
)

type fakeStream struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeStream) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeStream) last() mcp.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var req mcp.Request
	_ = json.Unmarshal(f.frames[len(f.frames)-1], &req)
	return req
}

func TestSessionManagerRoundTrip(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	stream := &fakeStream{}
	require.NoError(t, sm.Connect("tenant-a", stream))
	assert.True(t, sm.IsConnected("tenant-a"))

	type reply struct {
		Tools []string `json:"tools"`
	}

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	go func() {
		result, callErr = sm.SendRequest(context.Background(), "tenant-a", "tools/list", nil)
		close(done)
	}()

	// wait until the request frame has actually been pushed before replying
	require.Eventually(t, func() bool {
		return sm.PendingRequests() == 1
	}, time.Second, time.Millisecond)

	req := stream.last()
	assert.Equal(t, "tools/list", req.Method)
	assert.NotEmpty(t, req.ID)

	resultJSON, err := json.Marshal(reply{Tools: []string{"echo"}})
	require.NoError(t, err)
	resp, err := json.Marshal(mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: req.ID, Result: resultJSON})
	require.NoError(t, err)
	require.NoError(t, sm.HandleResponse(resp))

	<-done
	require.NoError(t, callErr)
	var decoded reply
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, []string{"echo"}, decoded.Tools)
	assert.Zero(t, sm.PendingRequests())
}

func TestSessionManagerRequestTimesOut(t *testing.T) {
	sm := mcp.NewSessionManager(10 * time.Millisecond)
	require.NoError(t, sm.Connect("tenant-a", &fakeStream{}))

	_, err := sm.SendRequest(context.Background(), "tenant-a", "tools/list", nil)
	require.Error(t, err)
	var timeoutErr *mcp.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Zero(t, sm.PendingRequests())
}

func TestSessionManagerDisconnectFailsPendingCalls(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	require.NoError(t, sm.Connect("tenant-a", &fakeStream{}))

	done := make(chan error, 1)
	go func() {
		_, err := sm.SendRequest(context.Background(), "tenant-a", "tools/list", nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return sm.PendingRequests() == 1
	}, time.Second, time.Millisecond)

	sm.Disconnect("tenant-a")

	err := <-done
	require.Error(t, err)
	var discErr *mcp.DisconnectedError
	assert.ErrorAs(t, err, &discErr)
	assert.False(t, sm.IsConnected("tenant-a"))
}

func TestSessionManagerConnectReplacesPriorStream(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	first := &fakeStream{}
	second := &fakeStream{}
	require.NoError(t, sm.Connect("tenant-a", first))
	require.NoError(t, sm.Connect("tenant-a", second))

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.True(t, sm.IsConnected("tenant-a"))
}

func TestSessionManagerSendRequestAgainstUnknownClient(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	_, err := sm.SendRequest(context.Background(), "ghost", "tools/list", nil)
	require.Error(t, err)
	var discErr *mcp.DisconnectedError
	assert.ErrorAs(t, err, &discErr)
}

func TestSessionManagerOnDisconnectHookFires(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	require.NoError(t, sm.Connect("tenant-a", &fakeStream{}))

	var fired string
	sm.OnDisconnect(func(clientID string) { fired = clientID })
	sm.Disconnect("tenant-a")

	assert.Equal(t, "tenant-a", fired)
}
