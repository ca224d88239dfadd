// Package conversation holds the ordered message history of the active chat.
package conversation

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/google/uuid"
)

// Store owns the ordered message history of one conversation. Insertion order is the chronological
// turn order. Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message

	now func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// AppendUser appends a user message at the tail. Content that is empty after trimming is ignored,
// in which case AppendUser reports false.
func (s *Store) AppendUser(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, s.newMessage(models.RoleUser, content))
	return true
}

// BeginOrExtendAssistant merges the cumulative text of a streaming response into the conversation.
// If the tail message belongs to the assistant its content is replaced with cumulative, otherwise a
// new assistant message is appended. Calling it again with the same value changes nothing.
func (s *Store) BeginOrExtendAssistant(cumulative string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 && s.messages[n-1].Role == models.RoleAssistant {
		s.messages[n-1].Content = cumulative
		return s.messages[n-1]
	}

	msg := s.newMessage(models.RoleAssistant, cumulative)
	s.messages = append(s.messages, msg)
	return msg
}

// Clear removes every message.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
}

// Snapshot returns a copy of the messages in order.
func (s *Store) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.messages)
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages)
}

// Last returns the tail message, reporting false if the conversation is empty.
func (s *Store) Last() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func (s *Store) newMessage(role models.Role, content string) models.Message {
	return models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
}
