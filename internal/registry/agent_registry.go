// Package registry holds the tenant-scoped lookup tables the engine
// consults at run time: agents by id and MCP tools by name. Both are
// read-mostly (looked up on every node step, written rarely at startup or
// when a tenant registers a new agent/tool), so they use a plain RWMutex
// rather than a lock-free map, the same tradeoff the node registry this is
// grounded on makes.
package registry

import (
	"fmt"
	"sync"

	"github.com/flowloom/fabric/internal/agent"
)

// AgentRegistry maps agent id to a live Agent instance for one tenant.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]agent.Agent
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]agent.Agent)}
}

// Register adds or replaces the agent under its own ID().
func (r *AgentRegistry) Register(a agent.Agent) error {
	if a == nil {
		return fmt.Errorf("agent is nil")
	}
	id := a.ID()
	if id == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[id] = a
	return nil
}

func (r *AgentRegistry) Get(id string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

func (r *AgentRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

func (r *AgentRegistry) List() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}
