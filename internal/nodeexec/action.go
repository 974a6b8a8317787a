package nodeexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/template"
)

// ActionExecutor runs each ActionStep of an Action node in order: Send
// dispatches to a registered ActionHandler, Execute runs a registered shell
// command (only when AllowShellExec is set — the server-side context leaves
// it false and routes through MCP instead, per §4.3).
type ActionExecutor struct {
	Circuit *CircuitBreakers
}

func (a *ActionExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Action == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "action node missing ActionSpec", nil)
	}

	outputs := make([]any, 0, len(node.Action.Actions))
	for i, step := range node.Action.Actions {
		var out map[string]any
		var err error
		switch step.Kind {
		case domain.ActionSend:
			out, err = a.send(ectx, step)
		case domain.ActionExecute:
			out, err = a.exec(ectx, step)
		default:
			err = fmt.Errorf("node %s: unknown action kind %q at step %d", node.ID, step.Kind, i)
		}
		if err != nil {
			return failureResult(err), nil
		}
		outputs = append(outputs, out)
	}

	var output any = outputs
	if len(outputs) == 1 {
		output = outputs[0]
	}
	return successResult(output), nil
}

func (a *ActionExecutor) send(ectx *execctx.Context, step domain.ActionStep) (map[string]any, error) {
	handler, ok := ectx.ActionHandlers[step.HandlerID]
	if !ok {
		return nil, fmt.Errorf("action handler %q not registered", step.HandlerID)
	}
	payload := template.ResolveMap(step.Payload, ectx.Vars())
	return Guard(a.Circuit, "action:"+step.HandlerID, func() (map[string]any, error) {
		return handler.Execute(ectx.Ctx, payload, ectx.Vars())
	})
}

func (a *ActionExecutor) exec(ectx *execctx.Context, step domain.ActionStep) (map[string]any, error) {
	if !ectx.AllowShellExec {
		return nil, fmt.Errorf("shell execution is disabled in this execution context")
	}
	if ectx.Commands == nil {
		return nil, fmt.Errorf("no command registry configured")
	}
	cmdDef, ok := ectx.Commands.Get(step.CommandID)
	if !ok {
		return nil, fmt.Errorf("command %q not registered", step.CommandID)
	}

	timeout := 30 * time.Second
	if cmdDef.TimeoutMs > 0 {
		timeout = time.Duration(cmdDef.TimeoutMs) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ectx.Ctx, timeout)
	defer cancel()

	resolved := template.Resolve(cmdDef.Command, ectx.Vars())
	cmd := exec.CommandContext(runCtx, "sh", "-c", resolved)
	for k, v := range cmdDef.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	result := map[string]any{
		"stdout": combined.String(),
	}
	if err != nil {
		return result, fmt.Errorf("command %q failed: %w", step.CommandID, err)
	}
	return result, nil
}
