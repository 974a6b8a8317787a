package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/api/middleware"
	"github.com/flowloom/fabric/internal/api/rest"
	"github.com/flowloom/fabric/internal/broadcaster"
	"github.com/flowloom/fabric/internal/forkjoin"
	"github.com/flowloom/fabric/internal/nodeexec"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
	"github.com/flowloom/fabric/internal/service"
	"github.com/flowloom/fabric/internal/storage/memory"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := memory.New()
	tenants := registry.NewTenantRegistries()
	dispatcher := nodeexec.NewDispatcher(nodeexec.NewCircuitBreakers(5, time.Minute), forkjoin.NewCoordinator())

	svc := service.New(service.Deps{
		Workflows:   mem,
		Events:      mem,
		Broadcaster: broadcaster.New(),
		Tenants:     tenants,
		Rubrics:     rubric.NewEngine(),
		Dispatcher:  dispatcher,
	})
	resolver := middleware.NewTenantResolver("", "tenant_id", "tenant-1")
	logger := zerolog.Nop()
	srv := rest.NewServer(svc, resolver, &logger)
	return httptest.NewServer(srv.Handler())
}

const testWorkflowJSON = `{
	"id": "wf-1",
	"version": "1",
	"startNode": "end",
	"nodes": {
		"end": {"id": "end", "type": "end", "end": {"exitStatus": "success"}}
	}
}`

func TestUpsertAndGetWorkflow(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/workflows", "application/json", bytes.NewBufferString(testWorkflowJSON))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/v1/workflows/wf-1")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&body))
	assert.Equal(t, "wf-1", body["id"])
	assert.Equal(t, "end", body["startNode"])
}

func TestUpsertWorkflowRejectsInvalidID(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	badJSON := `{"id": "bad id!", "version": "1", "startNode": "end", "nodes": {"end": {"id":"end","type":"end","end":{"exitStatus":"success"}}}}`
	resp, err := http.Post(ts.URL+"/api/v1/workflows", "application/json", bytes.NewBufferString(badJSON))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownWorkflowReturns404(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/workflows/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWorkflowsReturnsSummaries(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	_, err := http.Post(ts.URL+"/api/v1/workflows", "application/json", bytes.NewBufferString(testWorkflowJSON))
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/v1/workflows")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summaries []map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "wf-1", summaries[0]["id"])
}

func TestStartAndQueryExecution(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	_, err := http.Post(ts.URL+"/api/v1/workflows", "application/json", bytes.NewBufferString(testWorkflowJSON))
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/v1/executions", "application/json", bytes.NewBufferString(`{"workflowId":"wf-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	execID := started["executionId"]
	require.NotEmpty(t, execID)

	require.Eventually(t, func() bool {
		getResp, err := http.Get(ts.URL + "/api/v1/executions/" + execID)
		if err != nil {
			return false
		}
		defer getResp.Body.Close()
		var state map[string]any
		_ = json.NewDecoder(getResp.Body).Decode(&state)
		return state["status"] == "completed"
	}, time.Second, 10*time.Millisecond)
}

func TestResumeUnknownExecutionReturns404(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/executions/does-not-exist/resume", "application/json", bytes.NewBufferString(`{"approved":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnauthenticatedRequestFallsBackToDevTenant(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/workflows")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
