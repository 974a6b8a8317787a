package mcp

import (
	"context"
	"fmt"
)

// Invoker adapts a Pool and ToolClient, bound to one tenant's clientId, into
// execctx.ToolInvoker. The execution context interface carries no tenant
// parameter of its own (§4.5: clientId is the tenant id, fixed for the
// lifetime of one execution), so the binding happens once here at
// construction rather than on every call.
type Invoker struct {
	pool     *Pool
	tools    *ToolClient
	endpoint string
}

// NewInvoker binds tenantID to the sse:// endpoint scheme the Pool
// resolves against a connected SessionManager client.
func NewInvoker(pool *Pool, tools *ToolClient, tenantID string) *Invoker {
	return &Invoker{pool: pool, tools: tools, endpoint: sseScheme + tenantID}
}

// InvokeTool satisfies execctx.ToolInvoker.
func (i *Invoker) InvokeTool(ctx context.Context, toolName string, args map[string]any) (any, error) {
	result, err := i.pool.CallTool(ctx, i.tools, i.endpoint, toolName, args)
	if err != nil {
		return nil, fmt.Errorf("mcp invoke %s: %w", toolName, err)
	}
	return result, nil
}
