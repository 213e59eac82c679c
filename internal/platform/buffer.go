package platform

import "sync"

// DefaultBufferMessages is the number of recent messages retained per
// channel by a MessageBuffer created with a non-positive size.
const DefaultBufferMessages = 50

// MessageBuffer stores the last N messages per channel in memory.
// It is goroutine-safe and uses a ring buffer internally.
type MessageBuffer struct {
	mu      sync.RWMutex
	size    int
	buffers map[string]*ringBuffer // channelID -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of Message.
type ringBuffer struct {
	items []Message
	pos   int
	count int
}

// NewMessageBuffer creates an empty MessageBuffer keeping size messages per
// channel.
func NewMessageBuffer(size int) *MessageBuffer {
	if size <= 0 {
		size = DefaultBufferMessages
	}
	return &MessageBuffer{
		size:    size,
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends a message to its channel's ring buffer. If the buffer is full,
// the oldest message is overwritten.
func (mb *MessageBuffer) Add(msg Message) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	rb, ok := mb.buffers[msg.ChannelID]
	if !ok {
		rb = &ringBuffer{items: make([]Message, mb.size)}
		mb.buffers[msg.ChannelID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % mb.size
	if rb.count < mb.size {
		rb.count++
	}
}

// Get returns the buffered messages for a channel in chronological order
// (oldest first). Returns an empty slice if the channel has no buffer.
func (mb *MessageBuffer) Get(channelID string) []Message {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	rb, ok := mb.buffers[channelID]
	if !ok {
		return []Message{}
	}

	result := make([]Message, rb.count)
	// The oldest message is at position (pos - count) mod size.
	start := (rb.pos - rb.count + mb.size) % mb.size
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%mb.size]
	}
	return result
}

// Latest returns up to limit messages for a channel, newest first.
func (mb *MessageBuffer) Latest(channelID string, limit int) []Message {
	all := mb.Get(channelID)
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	result := make([]Message, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result
}
