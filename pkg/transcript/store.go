// Package transcript holds the ordered in-memory log of one conversation.
package transcript

import (
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// NormalizeRole maps server-side role names onto the three known roles.
// Anything unrecognized is treated as an assistant turn.
func NormalizeRole(r string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(r))) {
	case RoleUser:
		return RoleUser
	case RoleSystem:
		return RoleSystem
	default:
		return RoleAssistant
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store is append-only: entries are never reordered or mutated, and the log
// only shrinks through Reset or a wholesale Hydrate.
type Store struct {
	mu       sync.RWMutex
	messages []Message
}

func NewStore() *Store {
	return &Store{}
}

// Hydrate replaces the log with msgs, keeping their order.
func (s *Store) Hydrate(msgs []Message) {
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = cp
}

// Append adds m at the tail and returns its index.
func (s *Store) Append(m Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return len(s.messages) - 1
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) At(i int) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[i], true
}

// Messages returns a copy of the log.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Message, len(s.messages))
	copy(cp, s.messages)
	return cp
}

// LastUserQuery returns the content of the most recent user turn.
func (s *Store) LastUserQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return s.messages[i].Content
		}
	}
	return ""
}
