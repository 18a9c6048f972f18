package bot

import (
	"sync"

	"github.com/kryten-bot/kryten/pkg/kryten/llm"
)

// ConversationStore keeps a rolling per-chat window of conversation
// turns. Each chat holds at most 2*maxExchanges messages; when full, the
// oldest user/assistant pair is evicted together.
type ConversationStore struct {
	mu           sync.Mutex
	maxExchanges int
	chats        map[int64][]llm.Message
}

// NewConversationStore creates a store keeping maxExchanges exchanges
// per chat.
func NewConversationStore(maxExchanges int) *ConversationStore {
	if maxExchanges <= 0 {
		maxExchanges = 20
	}
	return &ConversationStore{
		maxExchanges: maxExchanges,
		chats:        make(map[int64][]llm.Message),
	}
}

// Append adds a user turn and the assistant's reply to a chat's history.
func (c *ConversationStore) Append(chatID int64, user, assistant llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := append(c.chats[chatID], user, assistant)
	if len(h) > 2*c.maxExchanges {
		h = h[len(h)-2*c.maxExchanges:]
	}
	c.chats[chatID] = h
}

// Snapshot returns a copy of a chat's history. The caller may append to
// the result without affecting the stored window.
func (c *ConversationStore) Snapshot(chatID int64) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.chats[chatID]
	out := make([]llm.Message, len(h))
	copy(out, h)
	return out
}
