package platform

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Operation names accepted by Memory.FailNext.
const (
	OpDelete     = "delete"
	OpSend       = "send"
	OpReply      = "reply"
	OpFetch      = "fetch"
	OpHistory    = "history"
	OpPermission = "permission"
)

// Outbound is a message the bot sent through a Memory platform.
type Outbound struct {
	ChannelID string
	ReplyTo   string // empty for plain sends
	Content   string
}

// Memory is an in-process Platform. Channel history is kept in a
// MessageBuffer; outbound messages are recorded and optionally forwarded to
// a callback. It backs the console mode and the bot's tests.
type Memory struct {
	botID   string
	buffer  *MessageBuffer
	onSend  func(Outbound)
	mu      sync.Mutex
	byID    map[string]Message
	deleted map[string]bool
	perms   map[string]bool // guildID + ":" + userID + ":" + perm
	sent    []Outbound
	fail    map[string]error
	nextID  int
}

// NewMemory creates a Memory platform. Messages the bot sends are authored by
// botID and show up in channel history like any other message.
func NewMemory(botID string, historySize int) *Memory {
	return &Memory{
		botID:   botID,
		buffer:  NewMessageBuffer(historySize),
		byID:    make(map[string]Message),
		deleted: make(map[string]bool),
		perms:   make(map[string]bool),
		fail:    make(map[string]error),
	}
}

// OnSend registers a callback invoked for every outbound message.
func (m *Memory) OnSend(fn func(Outbound)) {
	m.mu.Lock()
	m.onSend = fn
	m.mu.Unlock()
}

// Post records an inbound message as the platform would before delivering
// it to the bot, assigning an ID and timestamp when missing.
func (m *Memory) Post(msg Message) Message {
	m.mu.Lock()
	if msg.ID == "" {
		m.nextID++
		msg.ID = "m" + strconv.Itoa(m.nextID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.byID[msg.ID] = msg
	m.mu.Unlock()

	m.buffer.Add(msg)
	return msg
}

// Grant gives userID perm in guildID.
func (m *Memory) Grant(guildID, userID string, perm Permission) {
	m.mu.Lock()
	m.perms[guildID+":"+userID+":"+string(perm)] = true
	m.mu.Unlock()
}

// FailNext makes the next call of op return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	m.fail[op] = err
	m.mu.Unlock()
}

// Sent returns a copy of every outbound message so far.
func (m *Memory) Sent() []Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outbound, len(m.sent))
	copy(out, m.sent)
	return out
}

// Deleted reports whether messageID was deleted.
func (m *Memory) Deleted(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted[messageID]
}

func (m *Memory) takeFailure(op string) error {
	err := m.fail[op]
	delete(m.fail, op)
	return err
}

// DeleteMessage implements Platform.
func (m *Memory) DeleteMessage(_ context.Context, _ string, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpDelete); err != nil {
		return err
	}
	if _, ok := m.byID[messageID]; !ok {
		return ErrNotFound
	}
	m.deleted[messageID] = true
	return nil
}

// SendMessage implements Platform.
func (m *Memory) SendMessage(_ context.Context, channelID, content string) error {
	return m.record(OpSend, Outbound{ChannelID: channelID, Content: content})
}

// Reply implements Platform.
func (m *Memory) Reply(_ context.Context, channelID, messageID, content string) error {
	return m.record(OpReply, Outbound{ChannelID: channelID, ReplyTo: messageID, Content: content})
}

func (m *Memory) record(op string, out Outbound) error {
	m.mu.Lock()
	if err := m.takeFailure(op); err != nil {
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, out)
	m.nextID++
	msg := Message{
		ID:          "m" + strconv.Itoa(m.nextID),
		ChannelID:   out.ChannelID,
		AuthorID:    m.botID,
		AuthorBot:   true,
		Content:     out.Content,
		ReferenceID: out.ReplyTo,
		Timestamp:   time.Now(),
	}
	m.byID[msg.ID] = msg
	onSend := m.onSend
	m.mu.Unlock()

	m.buffer.Add(msg)
	if onSend != nil {
		onSend(out)
	}
	return nil
}

// FetchMessage implements Platform.
func (m *Memory) FetchMessage(_ context.Context, _ string, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpFetch); err != nil {
		return nil, err
	}
	msg, ok := m.byID[messageID]
	if !ok || m.deleted[messageID] {
		return nil, ErrNotFound
	}
	return &msg, nil
}

// History implements Platform. Deleted messages are skipped.
func (m *Memory) History(_ context.Context, channelID string, limit int) ([]Message, error) {
	m.mu.Lock()
	if err := m.takeFailure(OpHistory); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	deleted := make(map[string]bool, len(m.deleted))
	for id := range m.deleted {
		deleted[id] = true
	}
	m.mu.Unlock()

	var out []Message
	for _, msg := range m.buffer.Latest(channelID, 0) {
		if deleted[msg.ID] {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// HasPermission implements Platform.
func (m *Memory) HasPermission(_ context.Context, guildID, userID string, perm Permission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpPermission); err != nil {
		return false, err
	}
	return m.perms[guildID+":"+userID+":"+string(perm)], nil
}
