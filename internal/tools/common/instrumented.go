package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/outlook-mcp/internal/instrumentation"
	"github.com/teemow/outlook-mcp/internal/server"
)

// InstrumentedToolHandler wraps a tool handler with tracing, metrics and
// audit logging. It opens a span per invocation, records the tool metrics
// with the anonymized caller hash, and emits an audit record.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(
	toolName string,
	sc *server.ServerContext,
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return InstrumentedToolHandlerWithOperation(toolName, "", sc, handler)
}

// InstrumentedToolHandlerWithOperation is like InstrumentedToolHandler but
// also records the Graph operation type on the audit record.
func InstrumentedToolHandlerWithOperation(
	toolName string,
	operation string,
	sc *server.ServerContext,
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		if operation != "" {
			invocation.WithOperation(operation)
		}
		if userID, ok := server.UserIDFromContext(ctx); ok {
			invocation.WithUser(userID)
		}
		if folder := StringArg(request.GetArguments(), "folder"); folder != "" {
			invocation.WithFolder(folder)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if err != nil {
				invocation.CompleteWithError(err)
				instrumentation.SetSpanError(span, err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		metrics.RecordToolInvocationWithUser(ctx, toolName, status, invocation.UserHash(), duration)

		if auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}
