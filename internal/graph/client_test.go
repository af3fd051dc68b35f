package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestClient_Get_SendsBearerToken(t *testing.T) {
	var gotAuth, gotAccept string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"value":[]}`))
	})

	var out messageList
	err := client.Get(context.Background(), "access-token", "me/messages", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "Bearer access-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestClient_Get_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.Get(context.Background(), "expired", "me/messages", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_Get_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.Get(context.Background(), "token", "me/messages", nil, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestClient_Get_ErrorNeverContainsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	})

	err := client.Get(context.Background(), "super-secret-token", "me/messages", nil, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-token")
	assert.NotContains(t, err.Error(), "bad request")
}

func TestClient_CircuitBreaker_OpensOnConsecutiveServerErrors(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		err := client.Get(ctx, "token", "me/messages", nil, nil)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr, "call %d should reach the server", i)
	}

	// The breaker is open now; calls fail fast without a request.
	err := client.Get(ctx, "token", "me/messages", nil, nil)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 6, requests)
}

func TestClient_CircuitBreaker_IgnoresUnauthorized(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 10 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"value":[]}`))
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		err := client.Get(ctx, "token", "me/messages", nil, nil)
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	// Auth rejections never open the circuit, so the next call goes through.
	var out messageList
	err := client.Get(ctx, "token", "me/messages", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, 11, requests)
}

func TestClient_ListMessages_SinglePage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("$top"))
		assert.Equal(t, "receivedDateTime desc", r.URL.Query().Get("$orderby"))
		assert.Equal(t, "id,subject", r.URL.Query().Get("$select"))

		_ = json.NewEncoder(w).Encode(messageList{
			Value: []Message{{ID: "m1", Subject: "first"}, {ID: "m2", Subject: "second"}},
		})
	})

	messages, err := client.ListMessages(context.Background(), "token", "me/mailFolders/inbox/messages", ListQuery{
		Top:     10,
		OrderBy: "receivedDateTime desc",
		Select:  "id,subject",
	}, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "second", messages[1].Subject)
}

func TestClient_ListMessages_FollowsNextLink(t *testing.T) {
	var server *httptest.Server
	var pages int
	mux := http.NewServeMux()
	mux.HandleFunc("/me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		pages++
		_ = json.NewEncoder(w).Encode(messageList{
			Value:    []Message{{ID: "m1"}, {ID: "m2"}},
			NextLink: server.URL + "/page2",
		})
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		pages++
		// nextLink requests carry no extra params from the client
		assert.Empty(t, r.URL.Query().Get("$top"))
		_ = json.NewEncoder(w).Encode(messageList{
			Value: []Message{{ID: "m3"}, {ID: "m4"}},
		})
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	messages, err := client.ListMessages(context.Background(), "token", "me/mailFolders/inbox/messages", ListQuery{Top: 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	// Collected messages are truncated to the requested count.
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{messages[0].ID, messages[1].ID, messages[2].ID})
}

func TestClient_ListMessages_StopsWhenCollectionExhausted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(messageList{Value: []Message{{ID: "m1"}}})
	})

	messages, err := client.ListMessages(context.Background(), "token", "me/mailFolders/inbox/messages", ListQuery{Top: 50}, 50)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestClient_ListMessages_ZeroCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for zero count")
	})

	messages, err := client.ListMessages(context.Background(), "token", "me/mailFolders/inbox/messages", ListQuery{}, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestClient_ListMessages_SearchAndFilterParams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"quarterly report"`, r.URL.Query().Get("$search"))
		assert.Equal(t, "hasAttachments eq true and isRead eq false", r.URL.Query().Get("$filter"))
		_ = json.NewEncoder(w).Encode(messageList{Value: []Message{{ID: "m1"}}})
	})

	messages, err := client.ListMessages(context.Background(), "token", "me/mailFolders/inbox/messages", ListQuery{
		Top:    10,
		Search: `"quarterly report"`,
		Filter: "hasAttachments eq true and isRead eq false",
	}, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestClient_GetMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages/msg-1", r.URL.Path)
		assert.Equal(t, "id,subject,body", r.URL.Query().Get("$select"))

		_ = json.NewEncoder(w).Encode(Message{
			ID:      "msg-1",
			Subject: "hello",
			Body:    &ItemBody{ContentType: "text", Content: "plain body"},
		})
	})

	msg, err := client.GetMessage(context.Background(), "token", "msg-1", "id,subject,body")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "hello", msg.Subject)
	require.NotNil(t, msg.Body)
	assert.Equal(t, "plain body", msg.Body.Content)
}

func TestClient_GetMessage_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetMessage(context.Background(), "token", "missing", "id")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestIsCircuitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", ErrUnauthorized, false},
		{"not found", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"too many requests", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"internal error", &StatusError{StatusCode: http.StatusInternalServerError}, true},
		{"transport failure", fmt.Errorf("%w: connection refused", ErrUnavailable), true},
		{"wrapped unauthorized", fmt.Errorf("call failed: %w", ErrUnauthorized), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCircuitError(tt.err))
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{StatusCode: 502}
	assert.Equal(t, "graph: unexpected status 502", err.Error())

	var target *StatusError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
}
