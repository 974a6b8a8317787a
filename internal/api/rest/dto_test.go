package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiNodeWorkflowJSON = `{
	"id": "wf-2",
	"version": "1",
	"startNode": "plan",
	"nodes": {
		"plan": {
			"id": "plan",
			"type": "standard",
			"standard": {"agentId": "writer", "prompt": "draft {topic}"},
			"transitions": [{"kind": "always", "target": "branch"}]
		},
		"branch": {
			"id": "branch",
			"type": "fork",
			"fork": {"targets": ["a", "b"], "waitForAll": true}
		},
		"a": {"id": "a", "type": "end", "end": {"exitStatus": "success"}},
		"b": {"id": "b", "type": "end", "end": {"exitStatus": "success"}}
	}
}`

func TestDecodeWorkflowRoundTripsStandardForkAndEndNodes(t *testing.T) {
	wf, err := decodeWorkflow([]byte(multiNodeWorkflowJSON))
	require.NoError(t, err)
	assert.Equal(t, "wf-2", wf.ID)
	assert.Equal(t, "plan", wf.StartNode)
	require.Contains(t, wf.Nodes, "branch")
	require.NotNil(t, wf.Nodes["branch"].Fork)
	assert.Equal(t, []string{"a", "b"}, wf.Nodes["branch"].Fork.Targets)
	require.NotNil(t, wf.Nodes["plan"].Standard)
	assert.Equal(t, "writer", wf.Nodes["plan"].Standard.AgentID)

	dto := workflowToDTO(wf)
	assert.Equal(t, "wf-2", dto.ID)
	assert.NotNil(t, dto.Nodes["branch"].Fork)
	assert.Equal(t, []string{"a", "b"}, dto.Nodes["branch"].Fork.Targets)

	back, err := dtoToWorkflow(dto)
	require.NoError(t, err)
	assert.Equal(t, wf.StartNode, back.StartNode)
	assert.Equal(t, wf.Nodes["plan"].Standard.Prompt, back.Nodes["plan"].Standard.Prompt)
}

func TestDecodeWorkflowRejectsMissingTypedSpec(t *testing.T) {
	badJSON := `{"id":"wf-3","version":"1","startNode":"n","nodes":{"n":{"id":"n","type":"fork"}}}`
	_, err := decodeWorkflow([]byte(badJSON))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a fork object")
}

func TestDecodeWorkflowRejectsUnknownNodeType(t *testing.T) {
	badJSON := `{"id":"wf-4","version":"1","startNode":"n","nodes":{"n":{"id":"n","type":"teleport"}}}`
	_, err := decodeWorkflow([]byte(badJSON))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}
