package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/chillbot/internal/platform"
)

func newTestREST(t *testing.T, h http.HandlerFunc) *REST {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultRESTConfig()
	cfg.BaseURL = srv.URL
	return NewREST("tok", cfg)
}

func TestREST_SendMessage(t *testing.T) {
	var got map[string]any
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/channels/c1/messages", req.URL.Path)
		assert.Equal(t, "Bot tok", req.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		w.Write([]byte(`{"id":"m9"}`))
	})

	require.NoError(t, r.SendMessage(context.Background(), "c1", "<@42> hi"))

	assert.Equal(t, "<@42> hi", got["content"])
	assert.NotContains(t, got, "message_reference")
	assert.Equal(t, []any{"users"}, got["allowed_mentions"].(map[string]any)["parse"])
}

func TestREST_Reply(t *testing.T) {
	var got createMessage
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		w.Write([]byte(`{"id":"m9"}`))
	})

	require.NoError(t, r.Reply(context.Background(), "c1", "m1", "hello"))

	require.NotNil(t, got.MessageReference)
	assert.Equal(t, "m1", got.MessageReference.MessageID)
	require.NotNil(t, got.MessageReference.FailIfNotExists)
	assert.False(t, *got.MessageReference.FailIfNotExists)
	assert.False(t, got.AllowedMentions.RepliedUser)
}

func TestREST_DeleteMessage(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodDelete, req.Method)
		switch req.URL.Path {
		case "/channels/c1/messages/m1":
			w.WriteHeader(http.StatusNoContent)
		case "/channels/c1/messages/forbidden":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Missing Permissions","code":50013}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	assert.NoError(t, r.DeleteMessage(ctx, "c1", "m1"))
	assert.ErrorIs(t, r.DeleteMessage(ctx, "c1", "gone"), platform.ErrNotFound)

	err := r.DeleteMessage(ctx, "c1", "forbidden")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Missing Permissions")
}

func TestREST_FetchMessage(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/channels/c1/messages/m2", req.URL.Path)
		w.Write([]byte(`{
			"id": "m2", "channel_id": "c1",
			"author": {"id": "u1", "username": "sam"},
			"content": "` + "```go\\nx := 1\\n```" + `",
			"mentions": [{"id": "u2"}],
			"message_reference": {"message_id": "m1"},
			"timestamp": "2024-05-01T10:00:00.000000+00:00"
		}`))
	})

	msg, err := r.FetchMessage(context.Background(), "c1", "m2")
	require.NoError(t, err)

	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, "u1", msg.AuthorID)
	assert.Equal(t, "```go\nx := 1\n```", msg.Content)
	assert.Equal(t, []string{"u2"}, msg.Mentions)
	assert.Equal(t, "m1", msg.ReferenceID)
	assert.Equal(t, 2024, msg.Timestamp.Year())
}

func TestREST_History(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/channels/c1/messages", req.URL.Path)
		assert.Equal(t, "10", req.URL.Query().Get("limit"))
		w.Write([]byte(`[
			{"id": "3", "channel_id": "c1", "author": {"id": "u1"}, "content": "c"},
			{"id": "2", "channel_id": "c1", "author": {"id": "b", "bot": true}, "content": "b"},
			{"id": "1", "channel_id": "c1", "author": {"id": "u1"}, "content": "a"}
		]`))
	})

	msgs, err := r.History(context.Background(), "c1", 10)
	require.NoError(t, err)

	require.Len(t, msgs, 3)
	assert.Equal(t, "3", msgs[0].ID)
	assert.True(t, msgs[1].AuthorBot)
	assert.Equal(t, "a", msgs[2].Content)
}

func TestREST_HasPermission(t *testing.T) {
	var guildCalls atomic.Int32
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/guilds/g1":
			guildCalls.Add(1)
			w.Write([]byte(`{
				"id": "g1", "owner_id": "owner",
				"roles": [
					{"id": "g1", "permissions": "1024"},
					{"id": "mods", "permissions": "8192"},
					{"id": "admins", "permissions": "8"}
				]
			}`))
		case "/guilds/g1/members/mod":
			w.Write([]byte(`{"roles": ["mods"]}`))
		case "/guilds/g1/members/admin":
			w.Write([]byte(`{"roles": ["admins"]}`))
		case "/guilds/g1/members/plain":
			w.Write([]byte(`{"roles": []}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	tests := []struct {
		user string
		want bool
	}{
		{"owner", true},
		{"mod", true},
		{"admin", true},
		{"plain", false},
		{"stranger", false},
	}
	for _, tt := range tests {
		got, err := r.HasPermission(ctx, "g1", tt.user, platform.PermManageMessages)
		require.NoError(t, err, tt.user)
		assert.Equal(t, tt.want, got, tt.user)
	}

	assert.Equal(t, int32(1), guildCalls.Load(), "guild should be cached")

	got, err := r.HasPermission(ctx, "", "mod", platform.PermManageMessages)
	require.NoError(t, err)
	assert.False(t, got, "no permissions outside a guild")

	_, err = r.HasPermission(ctx, "g1", "mod", platform.Permission("launch_rockets"))
	assert.Error(t, err)
}
