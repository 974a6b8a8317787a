// Package tracing emits OpenTelemetry spans for the two hot round trips the
// spec calls out as worth observing end-to-end: one node-executor
// invocation (C9 Graph Driver) and one MCP request/response cycle (C11 MCP
// Transport). It is grounded on the teacher's monitoring.ExecutionTrace — an
// in-process ring buffer of {timestamp, eventType, nodeID, message} entries
// appended around the same two call sites — replaced here with real spans
// emitted through the global otel.Tracer API. No SDK or exporter is wired
// by this package: until main wires a TracerProvider (via
// otel.SetTracerProvider), every span recorded here is the API's built-in
// no-op, identical in behavior to the ring buffer simply not being read.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/flowloom/fabric"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartNodeSpan opens a span around one executor invocation for nodeID.
// Callers must End() the returned span; EndNode is a convenience for the
// common (err) case.
func StartNodeSpan(ctx context.Context, executionID, nodeID, nodeType string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "node.execute",
		trace.WithAttributes(
			attribute.String("execution_id", executionID),
			attribute.String("node_id", nodeID),
			attribute.String("node_type", nodeType),
		),
	)
}

// EndNode closes a node span, recording err on it (if non-nil) before
// setting the final status.
func EndNode(span trace.Span, err error) {
	finish(span, err)
}

// StartMCPSpan opens a span around one sendRequest/handleResponse round
// trip to clientID.
func StartMCPSpan(ctx context.Context, clientID, method string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "mcp.round_trip",
		trace.WithAttributes(
			attribute.String("client_id", clientID),
			attribute.String("method", method),
		),
	)
}

// EndMCP closes an MCP span, recording err on it (if non-nil) before setting
// the final status.
func EndMCP(span trace.Span, err error) {
	finish(span, err)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
