package chatclient

import (
	"sync"

	"chatapp/internal/models"
)

// ConversationState is the client-local cache of the currently open
// conversation. It is the only client-side message state: events for
// conversations that are not open are dropped outright, not queued or
// badge-counted.
type ConversationState struct {
	mu       sync.Mutex
	selfID   string
	peerID   string
	messages []models.Message
}

func NewConversationState(selfID string) *ConversationState {
	return &ConversationState{selfID: selfID}
}

// Open replaces the cache wholesale with a fresh conversation fetch.
// The server returns messages the owner already soft-deleted; hiding
// those is this side's job.
func (s *ConversationState) Open(peerID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = peerID
	s.messages = nil
	for _, msg := range messages {
		if msg.DeletedFor(s.selfID) {
			continue
		}
		s.messages = append(s.messages, msg)
	}
}

// Close forgets the open conversation and its cache.
func (s *ConversationState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = ""
	s.messages = nil
}

func (s *ConversationState) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// ApplyNewMessage appends a pushed message if it belongs to the open
// conversation, and ignores it otherwise.
func (s *ConversationState) ApplyNewMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerID == "" {
		return
	}
	if msg.SenderID != s.peerID && msg.ReceiverID != s.peerID {
		return
	}
	s.messages = append(s.messages, msg)
}

// ApplyMessageDeleted removes a message by identity, unconditionally.
func (s *ConversationState) ApplyMessageDeleted(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, msg := range s.messages {
		if msg.ID.Hex() != messageID {
			kept = append(kept, msg)
		}
	}
	s.messages = kept
}

// Append records a message the owner just sent, after the server
// acknowledged it.
func (s *ConversationState) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Clear empties the cache after a successful chat clear.
func (s *ConversationState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Messages returns a snapshot of the cached conversation.
func (s *ConversationState) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
