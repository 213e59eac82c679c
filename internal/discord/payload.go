// Package discord connects chillbot to Discord: a gateway client over a
// single websocket for inbound events, and a small REST client that
// implements platform.Platform for everything the bot does in response.
package discord

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/whisper/chillbot/internal/platform"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Gateway intents.
const (
	intentGuilds         = 1 << 0
	intentGuildMessages  = 1 << 9
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15

	defaultIntents = intentGuilds | intentGuildMessages | intentDirectMessages | intentMessageContent
)

// Dispatch event names.
const (
	eventReady         = "READY"
	eventResumed       = "RESUMED"
	eventMessageCreate = "MESSAGE_CREATE"
)

// payload is the gateway envelope. D is decoded later according to Op and T.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// newPayload marshals d into an envelope ready to write.
func newPayload(op int, d any) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("discord: marshal op %d: %w", op, err)
	}
	return json.Marshal(payload{Op: op, D: raw})
}

func decodePayload(data []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("discord: decode payload: %w", err)
	}
	return p, nil
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

type identifyData struct {
	Token      string            `json:"token"`
	Intents    int               `json:"intents"`
	Properties map[string]string `json:"properties"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             user   `json:"user"`
}

// REST and dispatch objects.

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

type messageReference struct {
	MessageID       string `json:"message_id,omitempty"`
	ChannelID       string `json:"channel_id,omitempty"`
	FailIfNotExists *bool  `json:"fail_if_not_exists,omitempty"`
}

type message struct {
	ID               string            `json:"id"`
	ChannelID        string            `json:"channel_id"`
	GuildID          string            `json:"guild_id,omitempty"`
	Author           user              `json:"author"`
	Content          string            `json:"content"`
	Mentions         []user            `json:"mentions,omitempty"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// toPlatform converts a Discord message. REST lookups do not carry the
// guild ID, so the caller may pass the one it already knows.
func (m message) toPlatform(guildID string) platform.Message {
	out := platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		AuthorBot: m.Author.Bot,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if out.GuildID == "" {
		out.GuildID = guildID
	}
	for _, u := range m.Mentions {
		out.Mentions = append(out.Mentions, u.ID)
	}
	if m.MessageReference != nil {
		out.ReferenceID = m.MessageReference.MessageID
	}
	return out
}

type allowedMentions struct {
	Parse       []string `json:"parse"`
	RepliedUser bool     `json:"replied_user"`
}

type createMessage struct {
	Content          string            `json:"content"`
	AllowedMentions  allowedMentions   `json:"allowed_mentions"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
}

type role struct {
	ID          string `json:"id"`
	Permissions string `json:"permissions"` // decimal bitfield
}

type guild struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Roles   []role `json:"roles"`
}

type member struct {
	Roles []string `json:"roles"`
}
