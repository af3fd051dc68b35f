package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/teemow/outlook-mcp/internal/logging"
)

// InboxEndpoint is the messages endpoint for the inbox, used as the
// fallback when a folder cannot be resolved.
const InboxEndpoint = "me/mailFolders/inbox/messages"

// wellKnownFolders maps friendly folder names to their Graph messages
// endpoints.
var wellKnownFolders = map[string]string{
	"inbox":   InboxEndpoint,
	"drafts":  "me/mailFolders/drafts/messages",
	"sent":    "me/mailFolders/sentItems/messages",
	"deleted": "me/mailFolders/deletedItems/messages",
	"junk":    "me/mailFolders/junkemail/messages",
	"archive": "me/mailFolders/archive/messages",
}

// WellKnownFolderNames returns the friendly names accepted without a folder
// lookup, for tool parameter documentation.
func WellKnownFolderNames() []string {
	return []string{"inbox", "drafts", "sent", "deleted", "junk", "archive"}
}

// ResolveFolder maps a folder name to its Graph messages endpoint. Names of
// well-known folders resolve without a network call; anything else is looked
// up by displayName. Unknown folders fall back to the inbox so a mistyped
// name degrades instead of failing the tool call.
func (c *Client) ResolveFolder(ctx context.Context, token, folderName string) string {
	if folderName == "" {
		return InboxEndpoint
	}

	if endpoint, ok := wellKnownFolders[strings.ToLower(folderName)]; ok {
		return endpoint
	}

	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("displayName eq '%s'", escapeODataLiteral(folderName)))

	var folders folderList
	if err := c.Get(ctx, token, "me/mailFolders", params, &folders); err == nil && len(folders.Value) > 0 {
		return "me/mailFolders/" + folders.Value[0].ID + "/messages"
	}

	c.logger.Warn("folder not found, using inbox", logging.Folder(folderName))
	return InboxEndpoint
}

// escapeODataLiteral doubles single quotes per OData string literal rules.
func escapeODataLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
