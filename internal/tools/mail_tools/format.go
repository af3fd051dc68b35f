package mail_tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/teemow/outlook-mcp/internal/graph"
)

// Graph field selections for list and detail views.
const (
	listFields   = "id,subject,from,toRecipients,ccRecipients,receivedDateTime,bodyPreview,hasAttachments,importance,isRead"
	detailFields = "id,subject,from,toRecipients,ccRecipients,bccRecipients,receivedDateTime,bodyPreview,body,hasAttachments,importance,isRead"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML converts HTML content to plain text by removing tags.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}
	return htmlTagPattern.ReplaceAllString(html, "")
}

// formatEmailAddress renders a recipient as "Name (address)", or just the
// address when no display name is set.
func formatEmailAddress(recipient *graph.Recipient) string {
	if recipient == nil {
		return "Unknown"
	}
	name := recipient.EmailAddress.Name
	address := recipient.EmailAddress.Address
	if name != "" {
		return fmt.Sprintf("%s (%s)", name, address)
	}
	return address
}

// formatRecipients renders a recipient list as a comma-separated string.
func formatRecipients(recipients []graph.Recipient) string {
	if len(recipients) == 0 {
		return "None"
	}
	parts := make([]string, len(recipients))
	for i := range recipients {
		parts[i] = formatEmailAddress(&recipients[i])
	}
	return strings.Join(parts, ", ")
}

// formatDate trims a Graph timestamp to "2006-01-02 15:04:05".
func formatDate(receivedDateTime string) string {
	if len(receivedDateTime) > 19 {
		receivedDateTime = receivedDateTime[:19]
	}
	return strings.ReplaceAll(receivedDateTime, "T", " ")
}

func subjectOrPlaceholder(subject string) string {
	if subject == "" {
		return "(no subject)"
	}
	return subject
}

// formatMessageLines renders the numbered message entries shared by the list
// and search outputs.
func formatMessageLines(messages []graph.Message) []string {
	var lines []string
	for i, msg := range messages {
		unread := ""
		if !msg.IsRead {
			unread = "[UNREAD] "
		}

		lines = append(lines,
			fmt.Sprintf("%d. %s%s - From: %s", i+1, unread, formatDate(msg.ReceivedDateTime), formatEmailAddress(msg.From)),
			fmt.Sprintf("   Subject: %s", subjectOrPlaceholder(msg.Subject)),
			fmt.Sprintf("   ID: %s\n", msg.ID),
		)
	}
	return lines
}

// formatMessageList renders the list_emails output.
func formatMessageList(messages []graph.Message, folder string) string {
	if len(messages) == 0 {
		return fmt.Sprintf("No emails found in %s.", folder)
	}

	lines := []string{fmt.Sprintf("Found %d emails in %s:\n", len(messages), folder)}
	lines = append(lines, formatMessageLines(messages)...)
	return strings.Join(lines, "\n")
}

// formatSearchResults renders the search_emails output, naming the search
// strategy that produced the hits.
func formatSearchResults(messages []graph.Message, strategy string) string {
	if len(messages) == 0 {
		return "No emails found matching your search criteria."
	}

	lines := []string{fmt.Sprintf("Found %d emails (via %s):\n", len(messages), strategy)}
	lines = append(lines, formatMessageLines(messages)...)
	return strings.Join(lines, "\n")
}

// formatMessageDetail renders the full read_email output.
func formatMessageDetail(msg *graph.Message) string {
	hasAttachments := "No"
	if msg.HasAttachments {
		hasAttachments = "Yes"
	}

	importance := msg.Importance
	if importance == "" {
		importance = "normal"
	}

	var body string
	if msg.Body != nil {
		if strings.EqualFold(msg.Body.ContentType, "html") {
			body = stripHTML(msg.Body.Content)
		} else {
			body = msg.Body.Content
		}
	}
	if body == "" {
		body = msg.BodyPreview
	}

	lines := []string{
		fmt.Sprintf("From: %s", formatEmailAddress(msg.From)),
		fmt.Sprintf("To: %s", formatRecipients(msg.ToRecipients)),
	}
	if cc := formatRecipients(msg.CcRecipients); cc != "None" {
		lines = append(lines, fmt.Sprintf("CC: %s", cc))
	}
	if bcc := formatRecipients(msg.BccRecipients); bcc != "None" {
		lines = append(lines, fmt.Sprintf("BCC: %s", bcc))
	}
	lines = append(lines,
		fmt.Sprintf("Subject: %s", subjectOrPlaceholder(msg.Subject)),
		fmt.Sprintf("Date: %s", formatDate(msg.ReceivedDateTime)),
		fmt.Sprintf("Importance: %s", importance),
		fmt.Sprintf("Has Attachments: %s", hasAttachments),
		"",
		body,
	)

	return strings.Join(lines, "\n")
}
