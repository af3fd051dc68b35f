// Package cmd implements the command-line interface for outlook-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio or streamable HTTP
//   - seed: Insert an encrypted credential row for development
//   - keygen: Generate a token encryption key
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
