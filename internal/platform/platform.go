// Package platform describes the chat platform the bot runs on: the shape of
// an inbound message and the handful of operations the bot performs against
// the platform. Adapters (Discord, the in-memory console platform) implement
// Platform; the moderation and routing logic only ever sees these types.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by FetchMessage when the message does not exist.
var ErrNotFound = errors.New("platform: message not found")

// Permission is a moderation capability checked before privileged commands.
type Permission string

// PermManageMessages gates the warns query command.
const PermManageMessages Permission = "manage_messages"

// Message is an inbound chat message.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string // empty for direct messages
	AuthorID    string
	AuthorBot   bool
	Content     string
	Mentions    []string // user IDs mentioned in the message
	ReferenceID string   // ID of the message this one replies to, if any
	Timestamp   time.Time
}

// IsDirect reports whether the message was sent in a direct-message channel.
func (m Message) IsDirect() bool {
	return m.GuildID == ""
}

// MentionsUser reports whether userID is in the message's mention list.
func (m Message) MentionsUser(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// Platform is the set of chat-platform operations the bot uses. Every
// operation is best-effort from the bot's point of view: callers log
// failures and carry on.
type Platform interface {
	// DeleteMessage removes a message from a channel.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// SendMessage posts content to a channel.
	SendMessage(ctx context.Context, channelID, content string) error

	// Reply posts content to a channel as a reply to messageID without
	// pinging its author.
	Reply(ctx context.Context, channelID, messageID, content string) error

	// FetchMessage looks up a single message by ID.
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)

	// History returns up to limit of the most recent messages in a channel,
	// newest first.
	History(ctx context.Context, channelID string, limit int) ([]Message, error)

	// HasPermission reports whether userID holds perm in guildID.
	HasPermission(ctx context.Context, guildID, userID string, perm Permission) (bool, error)
}
