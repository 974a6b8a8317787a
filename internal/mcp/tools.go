package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// defaultToolsCacheTTL bounds how long a tools/list result is reused before
// a fresh round-trip is made; coarse because the tool set on a given MCP
// endpoint changes rarely relative to execution throughput.
const defaultToolsCacheTTL = 5 * time.Minute

// Tool mirrors the subset of an MCP tool descriptor the engine needs to
// validate and surface a tool call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type callToolResult struct {
	Content any  `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

type toolsCacheEntry struct {
	tools     []Tool
	expiresAt time.Time
}

// ToolClient wraps a SessionManager with tools/list caching and the
// tools/call invocation used to actually run a tool on a connected client.
type ToolClient struct {
	sessions *SessionManager
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]toolsCacheEntry
}

func NewToolClient(sessions *SessionManager, ttl time.Duration) *ToolClient {
	if ttl <= 0 {
		ttl = defaultToolsCacheTTL
	}
	c := &ToolClient{sessions: sessions, ttl: ttl, cache: make(map[string]toolsCacheEntry)}
	sessions.OnDisconnect(c.InvalidateCache)
	return c
}

// ListTools returns clientId's tool set, using the cached value if still
// fresh, otherwise performing a tools/list round-trip.
func (c *ToolClient) ListTools(ctx context.Context, clientID string) ([]Tool, error) {
	c.mu.Lock()
	entry, ok := c.cache[clientID]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.tools, nil
	}

	raw, err := c.sessions.SendRequest(ctx, clientID, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}

	c.mu.Lock()
	c.cache[clientID] = toolsCacheEntry{tools: result.Tools, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return result.Tools, nil
}

// InvalidateCache drops any cached tool list for clientId. Registered as a
// SessionManager disconnect hook so a reconnecting client's tool set is
// never served stale.
func (c *ToolClient) InvalidateCache(clientID string) {
	c.mu.Lock()
	delete(c.cache, clientID)
	c.mu.Unlock()
}

// CallTool performs a tools/call round-trip and returns the raw content
// the client reported, or an error if the client flagged isError.
func (c *ToolClient) CallTool(ctx context.Context, clientID, toolName string, args map[string]any) (any, error) {
	raw, err := c.sessions.SendRequest(ctx, clientID, "tools/call", callToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", toolName, err)
	}
	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	if result.IsError {
		return nil, fmt.Errorf("tool %s reported an error: %v", toolName, result.Content)
	}
	return result.Content, nil
}
