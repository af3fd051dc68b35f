package mail_tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/outlook-mcp/internal/graph"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "hello world", "hello world"},
		{"simple tags", "<p>hello</p>", "hello"},
		{"nested tags", "<div><b>bold</b> and <i>italic</i></div>", "bold and italic"},
		{"attributes", `<a href="https://example.com">link</a>`, "link"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}

func TestFormatEmailAddress(t *testing.T) {
	assert.Equal(t, "Unknown", formatEmailAddress(nil))

	withName := &graph.Recipient{EmailAddress: graph.EmailAddress{Name: "Ada Lovelace", Address: "ada@example.com"}}
	assert.Equal(t, "Ada Lovelace (ada@example.com)", formatEmailAddress(withName))

	addressOnly := &graph.Recipient{EmailAddress: graph.EmailAddress{Address: "bare@example.com"}}
	assert.Equal(t, "bare@example.com", formatEmailAddress(addressOnly))
}

func TestFormatRecipients(t *testing.T) {
	assert.Equal(t, "None", formatRecipients(nil))

	recipients := []graph.Recipient{
		{EmailAddress: graph.EmailAddress{Name: "A", Address: "a@example.com"}},
		{EmailAddress: graph.EmailAddress{Address: "b@example.com"}},
	}
	assert.Equal(t, "A (a@example.com), b@example.com", formatRecipients(recipients))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2026-08-20 14:03:59", formatDate("2026-08-20T14:03:59Z"))
	assert.Equal(t, "", formatDate(""))
}

func TestFormatMessageList(t *testing.T) {
	messages := []graph.Message{
		{
			ID:               "m1",
			Subject:          "Weekly report",
			From:             &graph.Recipient{EmailAddress: graph.EmailAddress{Name: "Boss", Address: "boss@example.com"}},
			ReceivedDateTime: "2026-08-20T09:00:00Z",
			IsRead:           false,
		},
		{
			ID:               "m2",
			From:             &graph.Recipient{EmailAddress: graph.EmailAddress{Address: "noreply@example.com"}},
			ReceivedDateTime: "2026-08-19T18:30:00Z",
			IsRead:           true,
		},
	}

	out := formatMessageList(messages, "inbox")
	assert.Contains(t, out, "Found 2 emails in inbox:")
	assert.Contains(t, out, "[UNREAD] 2026-08-20 09:00:00 - From: Boss (boss@example.com)")
	assert.Contains(t, out, "Subject: Weekly report")
	assert.Contains(t, out, "Subject: (no subject)")
	assert.Contains(t, out, "ID: m1")
	assert.NotContains(t, out, "[UNREAD] 2026-08-19")
}

func TestFormatMessageList_Empty(t *testing.T) {
	assert.Equal(t, "No emails found in archive.", formatMessageList(nil, "archive"))
}

func TestFormatSearchResults(t *testing.T) {
	messages := []graph.Message{{ID: "m1", ReceivedDateTime: "2026-08-20T09:00:00Z", IsRead: true}}

	out := formatSearchResults(messages, "combined search")
	assert.Contains(t, out, "Found 1 emails (via combined search):")

	assert.Equal(t, "No emails found matching your search criteria.", formatSearchResults(nil, "combined search"))
}

func TestFormatMessageDetail(t *testing.T) {
	msg := &graph.Message{
		ID:               "m1",
		Subject:          "Quarterly numbers",
		From:             &graph.Recipient{EmailAddress: graph.EmailAddress{Name: "CFO", Address: "cfo@example.com"}},
		ToRecipients:     []graph.Recipient{{EmailAddress: graph.EmailAddress{Address: "me@example.com"}}},
		CcRecipients:     []graph.Recipient{{EmailAddress: graph.EmailAddress{Address: "cc@example.com"}}},
		ReceivedDateTime: "2026-08-20T09:00:00Z",
		HasAttachments:   true,
		Importance:       "high",
		Body:             &graph.ItemBody{ContentType: "html", Content: "<p>See <b>attached</b>.</p>"},
	}

	out := formatMessageDetail(msg)
	assert.Contains(t, out, "From: CFO (cfo@example.com)")
	assert.Contains(t, out, "To: me@example.com")
	assert.Contains(t, out, "CC: cc@example.com")
	assert.NotContains(t, out, "BCC:")
	assert.Contains(t, out, "Subject: Quarterly numbers")
	assert.Contains(t, out, "Importance: high")
	assert.Contains(t, out, "Has Attachments: Yes")
	assert.Contains(t, out, "See attached.")
	assert.NotContains(t, out, "<b>")
}

func TestFormatMessageDetail_PlainBodyAndDefaults(t *testing.T) {
	msg := &graph.Message{
		ID:               "m2",
		ReceivedDateTime: "2026-08-20T09:00:00Z",
		Body:             &graph.ItemBody{ContentType: "text", Content: "plain body"},
	}

	out := formatMessageDetail(msg)
	assert.Contains(t, out, "From: Unknown")
	assert.Contains(t, out, "To: None")
	assert.Contains(t, out, "Subject: (no subject)")
	assert.Contains(t, out, "Importance: normal")
	assert.Contains(t, out, "Has Attachments: No")
	assert.Contains(t, out, "plain body")
}

func TestFormatMessageDetail_BodyPreviewFallback(t *testing.T) {
	msg := &graph.Message{
		ID:               "m3",
		ReceivedDateTime: "2026-08-20T09:00:00Z",
		BodyPreview:      "preview text",
	}

	out := formatMessageDetail(msg)
	assert.Contains(t, out, "preview text")
}
