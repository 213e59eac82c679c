package moderation

import (
	"time"

	"github.com/google/uuid"

	"github.com/whisper/chillbot/internal/platform"
)

// Incident is published to moderation.incident whenever a message is
// deleted with a warning, and archived by the auditor.
type Incident struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
	Term      string `json:"term,omitempty"`
	Warnings  int    `json:"warnings"`
	Flagged   bool   `json:"flagged"`
	Ts        int64  `json:"ts"`
}

// NewIncident builds the incident record for a decision on msg.
func NewIncident(msg platform.Message, d Decision) Incident {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Incident{
		ID:        uuid.New().String(),
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    msg.AuthorID,
		Reason:    d.Reason,
		Term:      d.Term,
		Warnings:  d.Warnings,
		Flagged:   d.Flag,
		Ts:        ts.Unix(),
	}
}
