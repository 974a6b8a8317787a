package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/mcp"
)

func respondToNextRequest(t *testing.T, sm *mcp.SessionManager, stream *fakeStream, result any) {
	t.Helper()
	require.Eventually(t, func() bool { return sm.PendingRequests() == 1 }, time.Second, time.Millisecond)
	req := stream.last()
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)
	resp, err := json.Marshal(mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: req.ID, Result: resultJSON})
	require.NoError(t, err)
	require.NoError(t, sm.HandleResponse(resp))
}

func TestToolClientCachesListToolsUntilTTLExpires(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	stream := &fakeStream{}
	require.NoError(t, sm.Connect("tenant-a", stream))
	tc := mcp.NewToolClient(sm, 50*time.Millisecond)

	done := make(chan []mcp.Tool, 1)
	go func() {
		tools, err := tc.ListTools(context.Background(), "tenant-a")
		require.NoError(t, err)
		done <- tools
	}()
	respondToNextRequest(t, sm, stream, map[string]any{"tools": []mcp.Tool{{Name: "echo"}}})
	first := <-done
	assert.Equal(t, "echo", first[0].Name)

	// second call within the TTL window must not issue a new round-trip
	tools, err := tc.ListTools(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, first, tools)
	assert.Zero(t, sm.PendingRequests())

	time.Sleep(60 * time.Millisecond)
	done2 := make(chan []mcp.Tool, 1)
	go func() {
		tools, err := tc.ListTools(context.Background(), "tenant-a")
		require.NoError(t, err)
		done2 <- tools
	}()
	respondToNextRequest(t, sm, stream, map[string]any{"tools": []mcp.Tool{{Name: "echo"}, {Name: "search"}}})
	refreshed := <-done2
	assert.Len(t, refreshed, 2)
}

func TestToolClientInvalidatesCacheOnDisconnect(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	stream := &fakeStream{}
	require.NoError(t, sm.Connect("tenant-a", stream))
	tc := mcp.NewToolClient(sm, time.Hour)

	done := make(chan struct{})
	go func() {
		_, err := tc.ListTools(context.Background(), "tenant-a")
		require.NoError(t, err)
		close(done)
	}()
	respondToNextRequest(t, sm, stream, map[string]any{"tools": []mcp.Tool{{Name: "echo"}}})
	<-done

	sm.Disconnect("tenant-a")
	stream2 := &fakeStream{}
	require.NoError(t, sm.Connect("tenant-a", stream2))

	done2 := make(chan []mcp.Tool, 1)
	go func() {
		tools, err := tc.ListTools(context.Background(), "tenant-a")
		require.NoError(t, err)
		done2 <- tools
	}()
	respondToNextRequest(t, sm, stream2, map[string]any{"tools": []mcp.Tool{{Name: "search"}}})
	refreshed := <-done2
	assert.Equal(t, "search", refreshed[0].Name)
}

func TestToolClientCallTool(t *testing.T) {
	sm := mcp.NewSessionManager(time.Second)
	stream := &fakeStream{}
	require.NoError(t, sm.Connect("tenant-a", stream))
	tc := mcp.NewToolClient(sm, time.Hour)

	done := make(chan any, 1)
	go func() {
		result, err := tc.CallTool(context.Background(), "tenant-a", "echo", map[string]any{"text": "hi"})
		require.NoError(t, err)
		done <- result
	}()
	respondToNextRequest(t, sm, stream, map[string]any{"content": "hi"})
	result := <-done
	assert.Equal(t, "hi", result)
}
