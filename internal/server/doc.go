// Package server provides the MCP server context, identity middleware, and
// the HTTP surfaces of the outlook-mcp sidecar.
//
// # Key Components
//
// ServerContext holds the shared dependencies of a running server: the token
// service, the Microsoft Graph client, metrics and audit logging. Tool
// handlers reach all of them through the context.
//
// IdentityMiddleware resolves the X-User-ID header into a live access token
// before a request reaches the MCP handler. Requests whose stored grant is
// gone, revoked, or undecryptable are rejected with 401 so the client prompts
// the user to reconnect; transient credential failures get 503.
//
// HTTPServer serves the streamable HTTP MCP transport on /mcp together with
// the health probe endpoints. MetricsServer exposes Prometheus metrics on a
// dedicated port so operational data never shares a listener with tool
// traffic.
//
// # Security Model
//
// The sidecar trusts the upstream gateway to authenticate end users; the
// X-User-ID header is the sole identity input. Plaintext access tokens live
// only in request contexts and are never logged or persisted.
package server
