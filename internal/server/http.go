package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/outlook-mcp/internal/instrumentation"
)

const (
	// DefaultHTTPAddr is the default listen address for the MCP server.
	DefaultHTTPAddr = ":8080"

	// MCPEndpointPath is the path the streamable HTTP transport is served on.
	MCPEndpointPath = "/mcp"
)

// HTTPServerConfig holds configuration for the MCP HTTP server.
type HTTPServerConfig struct {
	// Addr is the address to bind to (e.g., ":8080").
	Addr string

	// MCPServer is the MCP server to expose over streamable HTTP.
	MCPServer *mcpserver.MCPServer

	// Identity resolves caller credentials before requests reach the MCP
	// handler. Required for the /mcp endpoint.
	Identity *IdentityMiddleware

	// Health provides the probe endpoints.
	Health *HealthChecker

	// Metrics records request metrics for the /mcp endpoint.
	Metrics *instrumentation.Metrics
}

// HTTPServer serves the MCP streamable HTTP transport alongside the health
// endpoints. Credential resolution happens in middleware so tool handlers
// only ever see requests with a live token in context.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
}

// NewHTTPServer creates the MCP HTTP server.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	if config.MCPServer == nil {
		return nil, fmt.Errorf("mcp server is required")
	}
	if config.Identity == nil {
		return nil, fmt.Errorf("identity middleware is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultHTTPAddr
	}

	mux := http.NewServeMux()

	streamable := mcpserver.NewStreamableHTTPServer(config.MCPServer,
		mcpserver.WithEndpointPath(MCPEndpointPath),
	)

	var mcpHandler http.Handler = streamable
	mcpHandler = config.Identity.Wrap(mcpHandler)
	mcpHandler = MetricsMiddleware(config.Metrics, mcpHandler)
	mux.Handle(MCPEndpointPath, mcpHandler)

	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	}

	return &HTTPServer{
		addr: config.Addr,
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Start starts the server in a blocking manner. Call in a goroutine for
// non-blocking operation.
func (s *HTTPServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal starts the server and closes ready once the listener
// accepts connections. Blocking, like Start.
func (s *HTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server listen on %s: %w", s.addr, err)
	}

	slog.Info("starting MCP HTTP server", "addr", s.addr, "endpoint", MCPEndpointPath)
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(listener)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		slog.Info("shutting down MCP HTTP server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.addr
}
