package sse_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/api/middleware"
	"github.com/flowloom/fabric/internal/api/sse"
	"github.com/flowloom/fabric/internal/broadcaster"
)

func newTestServer(t *testing.T, b *broadcaster.Broadcaster) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	handler := sse.NewHandler(b, &logger)
	resolver := middleware.NewTenantResolver("", "tenant_id", "tenant-1")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/executions/{id}/events", handler.ServeHTTP)
	return httptest.NewServer(resolver.Middleware(mux))
}

func TestSSEStreamDeliversPublishedEvents(t *testing.T) {
	b := broadcaster.New()
	ts := newTestServer(t, b)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/executions/exec-1/events", nil)
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler's Subscribe call time to register before publishing.
	time.Sleep(50 * time.Millisecond)
	b.Publish("tenant-1", "exec-1", "execution.started", map[string]any{"workflow_id": "wf-1"})

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for i := 0; i < 10; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	assert.Equal(t, "event: execution.started", eventLine)
	assert.Contains(t, dataLine, "wf-1")
}

func TestSSERejectsInvalidExecutionID(t *testing.T) {
	b := broadcaster.New()
	ts := newTestServer(t, b)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/executions/" + strings.Repeat("x", 300) + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
