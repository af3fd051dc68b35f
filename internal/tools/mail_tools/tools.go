package mail_tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/outlook-mcp/internal/auth"
	"github.com/teemow/outlook-mcp/internal/graph"
	"github.com/teemow/outlook-mcp/internal/instrumentation"
	"github.com/teemow/outlook-mcp/internal/server"
	"github.com/teemow/outlook-mcp/internal/tools/batch"
	"github.com/teemow/outlook-mcp/internal/tools/common"
)

// RegisterMailTools registers the Outlook mail tools with the MCP server.
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listTool := mcp.NewTool("outlook_list_emails",
		mcp.WithDescription("List emails from a mailbox folder"),
		mcp.WithString("folder",
			mcp.Description("Folder name (inbox, sent, drafts, deleted, junk, archive, or a custom folder name). Defaults to inbox."),
		),
		mcp.WithNumber("count",
			mcp.Description(fmt.Sprintf("Number of emails to retrieve (default: %d, max: %d)", common.DefaultCount, common.MaxCount)),
		),
	)

	s.AddTool(listTool, common.InstrumentedToolHandlerWithOperation(
		"outlook_list_emails", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEmails(ctx, request, sc)
		}))

	searchTool := mcp.NewTool("outlook_search_emails",
		mcp.WithDescription("Search emails with text and boolean filters"),
		mcp.WithString("query",
			mcp.Description("General search text"),
		),
		mcp.WithString("folder",
			mcp.Description("Folder to search (default: inbox)"),
		),
		mcp.WithString("from",
			mcp.Description("Filter by sender email or name"),
		),
		mcp.WithString("subject",
			mcp.Description("Filter by subject"),
		),
		mcp.WithBoolean("hasAttachments",
			mcp.Description("Only emails with attachments"),
		),
		mcp.WithBoolean("unreadOnly",
			mcp.Description("Only unread emails"),
		),
		mcp.WithNumber("count",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", common.DefaultCount, common.MaxCount)),
		),
	)

	s.AddTool(searchTool, common.InstrumentedToolHandlerWithOperation(
		"outlook_search_emails", instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchEmails(ctx, request, sc)
		}))

	readTool := mcp.NewTool("outlook_read_email",
		mcp.WithDescription("Read the full content of one or more emails by ID"),
		mcp.WithString("emailId",
			mcp.Required(),
			mcp.Description("Email ID from outlook_list_emails or outlook_search_emails results. Accepts a single ID or an array of IDs."),
		),
	)

	s.AddTool(readTool, common.InstrumentedToolHandlerWithOperation(
		"outlook_read_email", instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadEmail(ctx, request, sc)
		}))

	return nil
}

// toolError maps a Graph or credential error to a user-facing tool result.
// Error text from upstream never reaches the client verbatim.
func toolError(err error, action string) *mcp.CallToolResult {
	switch {
	case auth.NeedsReconnect(err) || errors.Is(err, graph.ErrUnauthorized):
		return mcp.NewToolResultError("The Outlook connection is no longer valid. Please reconnect the account.")
	case errors.Is(err, graph.ErrUnavailable):
		return mcp.NewToolResultError("Outlook is temporarily unavailable. Please try again shortly.")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
	}
}

// listSelect and detailSelect return the OData $select lists, preferring a
// configured override over the built-in defaults.
func listSelect(sc *server.ServerContext) string {
	if fields := sc.MailListFields(); fields != "" {
		return fields
	}
	return listFields
}

func detailSelect(sc *server.ServerContext) string {
	if fields := sc.MailDetailFields(); fields != "" {
		return fields
	}
	return detailFields
}

func folderArg(args map[string]interface{}) string {
	folder := common.StringArg(args, "folder")
	if folder == "" {
		return "inbox"
	}
	return folder
}

func handleListEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	folder := folderArg(args)
	count := common.CountArg(args, "count")

	_, token, err := sc.Identity(ctx)
	if err != nil {
		return toolError(err, "resolve credentials"), nil
	}

	endpoint := sc.Graph().ResolveFolder(ctx, token, folder)

	messages, err := sc.Graph().ListMessages(ctx, token, endpoint, graph.ListQuery{
		Top:     count,
		OrderBy: "receivedDateTime desc",
		Select:  listSelect(sc),
	}, count)
	if err != nil {
		return toolError(err, "list emails"), nil
	}

	return mcp.NewToolResultText(formatMessageList(messages, folder)), nil
}

func handleSearchEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := common.StringArg(args, "query")
	subject := common.StringArg(args, "subject")
	fromAddress := common.StringArg(args, "from")
	folder := folderArg(args)
	count := common.CountArg(args, "count")

	_, token, err := sc.Identity(ctx)
	if err != nil {
		return toolError(err, "resolve credentials"), nil
	}

	endpoint := sc.Graph().ResolveFolder(ctx, token, folder)

	base := graph.ListQuery{
		Top:     count,
		OrderBy: "receivedDateTime desc",
		Select:  listSelect(sc),
	}

	var searchTerms []string
	if query != "" {
		searchTerms = append(searchTerms, fmt.Sprintf("%q", query))
	}
	if subject != "" {
		searchTerms = append(searchTerms, fmt.Sprintf("subject:%q", subject))
	}
	if fromAddress != "" {
		searchTerms = append(searchTerms, fmt.Sprintf("from:%q", fromAddress))
	}

	var filters []string
	if common.BoolArg(args, "hasAttachments") {
		filters = append(filters, "hasAttachments eq true")
	}
	if common.BoolArg(args, "unreadOnly") {
		filters = append(filters, "isRead eq false")
	}

	// Combined search first
	if len(searchTerms) > 0 || len(filters) > 0 {
		combined := base
		combined.Search = strings.Join(searchTerms, " ")
		combined.Filter = strings.Join(filters, " and ")

		if messages, err := sc.Graph().ListMessages(ctx, token, endpoint, combined, count); err == nil && len(messages) > 0 {
			return mcp.NewToolResultText(formatSearchResults(messages, "combined search")), nil
		}
	}

	// Fall back to individual terms
	fallbacks := []struct {
		name   string
		search string
	}{
		{"subject", searchTerm("subject", subject)},
		{"from", searchTerm("from", fromAddress)},
		{"query", searchTerm("", query)},
	}

	for _, fb := range fallbacks {
		if fb.search == "" {
			continue
		}
		single := base
		single.Search = fb.search
		if messages, err := sc.Graph().ListMessages(ctx, token, endpoint, single, count); err == nil && len(messages) > 0 {
			return mcp.NewToolResultText(formatSearchResults(messages, fb.name+" search")), nil
		}
	}

	// Last resort: recent emails from the folder
	messages, err := sc.Graph().ListMessages(ctx, token, endpoint, base, count)
	if err != nil {
		return toolError(err, "search emails"), nil
	}
	return mcp.NewToolResultText(formatSearchResults(messages, "recent emails fallback")), nil
}

// searchTerm builds a KQL search clause, quoting the value.
func searchTerm(field, value string) string {
	if value == "" {
		return ""
	}
	if field == "" {
		return fmt.Sprintf("%q", value)
	}
	return fmt.Sprintf("%s:%q", field, value)
}

func handleReadEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	emailIDs, err := batch.ParseStringOrArray(args["emailId"], "emailId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	_, token, err := sc.Identity(ctx)
	if err != nil {
		return toolError(err, "resolve credentials"), nil
	}

	if len(emailIDs) == 1 {
		detail, err := readMessage(ctx, sc, token, emailIDs[0])
		if err != nil {
			if isNotFound(err) {
				return mcp.NewToolResultError("Invalid email ID or email not found in your mailbox."), nil
			}
			return toolError(err, "read email"), nil
		}
		return mcp.NewToolResultText(detail), nil
	}

	results := batch.ProcessBatch(emailIDs, func(id string) (string, error) {
		detail, err := readMessage(ctx, sc, token, id)
		if err != nil {
			return "", errors.New(batchErrorMessage(err))
		}
		return detail, nil
	})
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func readMessage(ctx context.Context, sc *server.ServerContext, token, id string) (string, error) {
	msg, err := sc.Graph().GetMessage(ctx, token, id, detailSelect(sc))
	if err != nil {
		return "", err
	}
	return formatMessageDetail(msg), nil
}

func isNotFound(err error) bool {
	var statusErr *graph.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// batchErrorMessage keeps upstream error text out of per-item batch results.
func batchErrorMessage(err error) string {
	switch {
	case auth.NeedsReconnect(err) || errors.Is(err, graph.ErrUnauthorized):
		return "the Outlook connection is no longer valid"
	case errors.Is(err, graph.ErrUnavailable):
		return "Outlook is temporarily unavailable"
	case isNotFound(err):
		return "email not found"
	default:
		return "read failed"
	}
}
