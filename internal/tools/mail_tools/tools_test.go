package mail_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/outlook-mcp/internal/graph"
	"github.com/teemow/outlook-mcp/internal/server"
	"github.com/teemow/outlook-mcp/internal/tools/batch"
)

// newToolContext builds a server context backed by a fake Graph endpoint and
// a request context carrying a resolved identity.
func newToolContext(t *testing.T, handler http.Handler) (*server.ServerContext, context.Context) {
	t.Helper()

	graphServer := httptest.NewServer(handler)
	t.Cleanup(graphServer.Close)

	client := graph.NewClient(
		graph.WithBaseURL(graphServer.URL),
		graph.WithHTTPClient(graphServer.Client()),
	)

	sc := server.NewServerContext(context.Background(), nil, client, nil)
	ctx := server.WithIdentity(context.Background(), "user-1", "test-token")
	return sc, ctx
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func messageListJSON(messages ...graph.Message) []byte {
	body, _ := json.Marshal(map[string]interface{}{"value": messages})
	return body
}

func TestHandleListEmails(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/mailFolders/inbox/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "receivedDateTime desc", r.URL.Query().Get("$orderby"))
		assert.Equal(t, listFields, r.URL.Query().Get("$select"))

		_, _ = w.Write(messageListJSON(
			graph.Message{ID: "m1", Subject: "first", ReceivedDateTime: "2026-08-20T09:00:00Z", IsRead: true},
			graph.Message{ID: "m2", Subject: "second", ReceivedDateTime: "2026-08-19T09:00:00Z"},
		))
	}))

	result, err := handleListEmails(ctx, toolRequest(nil), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := resultText(t, result)
	assert.Contains(t, out, "Found 2 emails in inbox:")
	assert.Contains(t, out, "Subject: first")
	assert.Contains(t, out, "ID: m2")
}

func TestHandleListEmails_WellKnownFolder(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/mailFolders/sentItems/messages", r.URL.Path)
		_, _ = w.Write(messageListJSON())
	}))

	result, err := handleListEmails(ctx, toolRequest(map[string]interface{}{"folder": "sent"}), sc)
	require.NoError(t, err)

	assert.Contains(t, resultText(t, result), "No emails found in sent.")
}

func TestHandleListEmails_ConfiguredFields(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id,subject", r.URL.Query().Get("$select"))
		_, _ = w.Write(messageListJSON(
			graph.Message{ID: "m1", Subject: "first", ReceivedDateTime: "2026-08-20T09:00:00Z"},
		))
	}))
	sc.SetMailFields("id,subject", "id,subject,body")

	result, err := handleListEmails(ctx, toolRequest(nil), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
}

func TestHandleListEmails_Unauthorized(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	result, err := handleListEmails(ctx, toolRequest(nil), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "reconnect")
}

func TestHandleListEmails_NoIdentity(t *testing.T) {
	sc, _ := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without identity")
	}))

	result, err := handleListEmails(context.Background(), toolRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSearchEmails_CombinedSearch(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"budget" subject:"Q3"`, r.URL.Query().Get("$search"))
		assert.Equal(t, "hasAttachments eq true and isRead eq false", r.URL.Query().Get("$filter"))

		_, _ = w.Write(messageListJSON(
			graph.Message{ID: "m1", Subject: "Q3 budget", ReceivedDateTime: "2026-08-20T09:00:00Z"},
		))
	}))

	result, err := handleSearchEmails(ctx, toolRequest(map[string]interface{}{
		"query":          "budget",
		"subject":        "Q3",
		"hasAttachments": true,
		"unreadOnly":     true,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := resultText(t, result)
	assert.Contains(t, out, "via combined search")
	assert.Contains(t, out, "Subject: Q3 budget")
}

func TestHandleSearchEmails_FallsBackToIndividualTerm(t *testing.T) {
	var searches []string
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		search := r.URL.Query().Get("$search")
		searches = append(searches, search)

		// Only the bare subject search returns hits.
		if search == `subject:"Q3"` && r.URL.Query().Get("$filter") == "" {
			_, _ = w.Write(messageListJSON(
				graph.Message{ID: "m1", Subject: "Q3 budget", ReceivedDateTime: "2026-08-20T09:00:00Z"},
			))
			return
		}
		_, _ = w.Write(messageListJSON())
	}))

	result, err := handleSearchEmails(ctx, toolRequest(map[string]interface{}{
		"query":   "budget",
		"subject": "Q3",
	}), sc)
	require.NoError(t, err)

	out := resultText(t, result)
	assert.Contains(t, out, "via subject search")
	assert.Equal(t, []string{`"budget" subject:"Q3"`, `subject:"Q3"`}, searches)
}

func TestHandleSearchEmails_RecentFallback(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$search") != "" {
			_, _ = w.Write(messageListJSON())
			return
		}
		_, _ = w.Write(messageListJSON(
			graph.Message{ID: "recent", ReceivedDateTime: "2026-08-20T09:00:00Z"},
		))
	}))

	result, err := handleSearchEmails(ctx, toolRequest(map[string]interface{}{"query": "nothing matches"}), sc)
	require.NoError(t, err)

	assert.Contains(t, resultText(t, result), "via recent emails fallback")
}

func TestHandleSearchEmails_NoFiltersListsRecent(t *testing.T) {
	var requests int
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Empty(t, r.URL.Query().Get("$search"))
		_, _ = w.Write(messageListJSON(
			graph.Message{ID: "m1", ReceivedDateTime: "2026-08-20T09:00:00Z"},
		))
	}))

	result, err := handleSearchEmails(ctx, toolRequest(nil), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
	assert.Contains(t, resultText(t, result), "via recent emails fallback")
}

func TestHandleReadEmail(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/messages/msg-1", r.URL.Path)
		assert.Equal(t, detailFields, r.URL.Query().Get("$select"))

		_ = json.NewEncoder(w).Encode(graph.Message{
			ID:               "msg-1",
			Subject:          "hello",
			From:             &graph.Recipient{EmailAddress: graph.EmailAddress{Name: "Sender", Address: "s@example.com"}},
			ToRecipients:     []graph.Recipient{{EmailAddress: graph.EmailAddress{Address: "me@example.com"}}},
			ReceivedDateTime: "2026-08-20T09:00:00Z",
			Body:             &graph.ItemBody{ContentType: "html", Content: "<p>body text</p>"},
		})
	}))

	result, err := handleReadEmail(ctx, toolRequest(map[string]interface{}{"emailId": "msg-1"}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := resultText(t, result)
	assert.Contains(t, out, "From: Sender (s@example.com)")
	assert.Contains(t, out, "Subject: hello")
	assert.Contains(t, out, "body text")
	assert.NotContains(t, out, "<p>")
}

func TestHandleReadEmail_ConfiguredFields(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id,subject,body", r.URL.Query().Get("$select"))
		_ = json.NewEncoder(w).Encode(graph.Message{
			ID:               "msg-1",
			Subject:          "hello",
			ReceivedDateTime: "2026-08-20T09:00:00Z",
		})
	}))
	sc.SetMailFields("id,subject", "id,subject,body")

	result, err := handleReadEmail(ctx, toolRequest(map[string]interface{}{"emailId": "msg-1"}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
}

func TestHandleReadEmail_Batch(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/messages/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(graph.Message{
			ID:               "msg-1",
			Subject:          "hello",
			ReceivedDateTime: "2026-08-20T09:00:00Z",
		})
	}))

	result, err := handleReadEmail(ctx, toolRequest(map[string]interface{}{
		"emailId": []interface{}{"msg-1", "missing"},
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var br batch.BatchResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &br))
	assert.Equal(t, 2, br.Total)
	assert.Equal(t, 1, br.Successful)
	assert.Equal(t, 1, br.Failed)
	require.Len(t, br.Results, 2)
	assert.Contains(t, br.Results[0].Result, "Subject: hello")
	assert.Equal(t, "email not found", br.Results[1].Error)
}

func TestHandleReadEmail_MissingID(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an email id")
	}))

	result, err := handleReadEmail(ctx, toolRequest(nil), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "emailId is required")
}

func TestHandleReadEmail_NotFound(t *testing.T) {
	sc, ctx := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	result, err := handleReadEmail(ctx, toolRequest(map[string]interface{}{"emailId": "missing"}), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Invalid email ID or email not found")
}

func TestSearchTerm(t *testing.T) {
	assert.Equal(t, `"free text"`, searchTerm("", "free text"))
	assert.Equal(t, `subject:"Q3"`, searchTerm("subject", "Q3"))
	assert.Empty(t, searchTerm("subject", ""))
}

func TestRegisterMailTools(t *testing.T) {
	sc, _ := newToolContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	s := mcpserver.NewMCPServer("test", "0.0.1", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterMailTools(s, sc))
}
