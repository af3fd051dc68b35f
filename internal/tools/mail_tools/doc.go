// Package mail_tools implements the Outlook mail MCP tools.
//
// Three read-only tools are provided: outlook_list_emails,
// outlook_search_emails and outlook_read_email. All of them resolve the
// caller identity from the request context, fetch mail through the Microsoft
// Graph client, and render plain-text output suitable for an LLM agent.
// outlook_read_email accepts a single ID or an array of IDs; multi-ID calls
// return aggregated per-item results.
//
// Search follows a progressive strategy: a combined KQL search with boolean
// filters first, then individual terms (subject, from, free text), and
// finally the most recent messages of the folder as a last resort.
package mail_tools
