package chat

import "sync"

// MaxBufferMessages is the number of recent messages retained per chat.
const MaxBufferMessages = 5

// BufferedMessage represents a single message stored in the ring buffer.
type BufferedMessage struct {
	From string `json:"from"` // sender's user ID
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// MessageBuffer stores the last N messages per chat in memory. Nothing is
// ever written to disk; buffers exist only to attach recent context to
// moderation flags and die with the chat. It is goroutine-safe and uses a
// ring buffer internally.
type MessageBuffer struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // chat ID -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of BufferedMessage.
type ringBuffer struct {
	items []BufferedMessage
	pos   int
	count int
}

// NewMessageBuffer creates a new empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends a message to the chat's ring buffer. If the buffer is full,
// the oldest message is overwritten.
func (mb *MessageBuffer) Add(chatID string, msg BufferedMessage) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	rb, ok := mb.buffers[chatID]
	if !ok {
		rb = &ringBuffer{
			items: make([]BufferedMessage, MaxBufferMessages),
		}
		mb.buffers[chatID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxBufferMessages
	if rb.count < MaxBufferMessages {
		rb.count++
	}
}

// Get returns the last N messages for a chat in chronological order
// (oldest first). Returns an empty slice if the chat has no buffer.
func (mb *MessageBuffer) Get(chatID string) []BufferedMessage {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	rb, ok := mb.buffers[chatID]
	if !ok {
		return nil
	}

	out := make([]BufferedMessage, 0, rb.count)
	start := rb.pos - rb.count
	if start < 0 {
		start += MaxBufferMessages
	}
	for i := 0; i < rb.count; i++ {
		out = append(out, rb.items[(start+i)%MaxBufferMessages])
	}
	return out
}

// Delete drops the buffer for a chat. Called when the chat ends so ended
// conversations leave no trace in memory.
func (mb *MessageBuffer) Delete(chatID string) {
	mb.mu.Lock()
	delete(mb.buffers, chatID)
	mb.mu.Unlock()
}
