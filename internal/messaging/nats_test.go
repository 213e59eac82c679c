package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/chillbot/internal/moderation"
)

func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg, nil)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestIncidentRoundTrip(t *testing.T) {
	c := newTestClient(t)

	got := make(chan moderation.Incident, 1)
	require.NoError(t, c.SubscribeIncidents(func(inc moderation.Incident) {
		got <- inc
	}))
	require.NoError(t, c.Flush())

	sent := moderation.Incident{
		ID: "inc-1", ChannelID: "c1", MessageID: "m1", UserID: "u1",
		Reason: moderation.ReasonBannedWord, Warnings: 3, Flagged: true, Ts: 1700000000,
	}
	require.NoError(t, c.PublishIncident(sent))

	select {
	case inc := <-got:
		assert.Equal(t, sent, inc)
	case <-time.After(2 * time.Second):
		t.Fatal("incident not delivered")
	}
}

func TestSubscribeIncidents_DropsMalformed(t *testing.T) {
	c := newTestClient(t)

	got := make(chan moderation.Incident, 2)
	require.NoError(t, c.SubscribeIncidents(func(inc moderation.Incident) {
		got <- inc
	}))
	require.NoError(t, c.Flush())

	require.NoError(t, c.Publish(SubjectIncident, []byte("{not json")))
	require.NoError(t, c.PublishIncident(moderation.Incident{ID: "ok"}))

	select {
	case inc := <-got:
		assert.Equal(t, "ok", inc.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid incident not delivered")
	}
}
