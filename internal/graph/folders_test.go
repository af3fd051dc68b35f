package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFolder_WellKnown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("well-known folders must resolve without a network call")
	})

	tests := []struct {
		folder string
		want   string
	}{
		{"", InboxEndpoint},
		{"inbox", InboxEndpoint},
		{"Inbox", InboxEndpoint},
		{"SENT", "me/mailFolders/sentItems/messages"},
		{"drafts", "me/mailFolders/drafts/messages"},
		{"deleted", "me/mailFolders/deletedItems/messages"},
		{"junk", "me/mailFolders/junkemail/messages"},
		{"archive", "me/mailFolders/archive/messages"},
	}

	for _, tt := range tests {
		t.Run("folder="+tt.folder, func(t *testing.T) {
			got := client.ResolveFolder(context.Background(), "token", tt.folder)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveFolder_CustomByDisplayName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/mailFolders", r.URL.Path)
		assert.Equal(t, "displayName eq 'Project X'", r.URL.Query().Get("$filter"))

		_ = json.NewEncoder(w).Encode(folderList{
			Value: []mailFolder{{ID: "folder-123", DisplayName: "Project X"}},
		})
	})

	got := client.ResolveFolder(context.Background(), "token", "Project X")
	assert.Equal(t, "me/mailFolders/folder-123/messages", got)
}

func TestResolveFolder_UnknownFallsBackToInbox(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(folderList{})
	})

	got := client.ResolveFolder(context.Background(), "token", "Nonexistent")
	assert.Equal(t, InboxEndpoint, got)
}

func TestResolveFolder_LookupErrorFallsBackToInbox(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	got := client.ResolveFolder(context.Background(), "token", "Broken")
	assert.Equal(t, InboxEndpoint, got)
}

func TestEscapeODataLiteral(t *testing.T) {
	assert.Equal(t, "O''Brien''s folder", escapeODataLiteral("O'Brien's folder"))
	assert.Equal(t, "plain", escapeODataLiteral("plain"))
}

func TestWellKnownFolderNames(t *testing.T) {
	names := WellKnownFolderNames()
	require.Len(t, names, 6)
	for _, name := range names {
		_, ok := wellKnownFolders[name]
		assert.True(t, ok, "name %q must map to an endpoint", name)
	}
}
