// Package batch provides helpers for tools that act on one or many items
// per call.
//
// Tool arguments like emailId accept a single string, a JSON array, or a
// JSON array encoded as a string (some MCP clients serialize arrays that
// way). Results are aggregated per item so a partial failure never hides
// the items that succeeded.
package batch
