package registry

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// tenantScope bundles one tenant's agent and tool registries.
type tenantScope struct {
	Agents *AgentRegistry
	Tools  *ToolRegistry
}

// TenantRegistries lazily creates and hands out per-tenant registry scopes.
// It is looked up on the hot path of every node step across every tenant's
// concurrent executions, so it uses xsync's lock-free map rather than a
// mutex-guarded one, unlike the read-mostly per-tenant registries it holds.
type TenantRegistries struct {
	scopes *xsync.MapOf[string, *tenantScope]
}

func NewTenantRegistries() *TenantRegistries {
	return &TenantRegistries{scopes: xsync.NewMapOf[string, *tenantScope]()}
}

func (t *TenantRegistries) scope(tenantID string) *tenantScope {
	s, _ := t.scopes.LoadOrCompute(tenantID, func() *tenantScope {
		return &tenantScope{Agents: NewAgentRegistry(), Tools: NewToolRegistry()}
	})
	return s
}

func (t *TenantRegistries) Agents(tenantID string) *AgentRegistry {
	return t.scope(tenantID).Agents
}

func (t *TenantRegistries) Tools(tenantID string) *ToolRegistry {
	return t.scope(tenantID).Tools
}

// Drop removes a tenant's scope entirely, used when a tenant is deprovisioned.
func (t *TenantRegistries) Drop(tenantID string) {
	t.scopes.Delete(tenantID)
}
