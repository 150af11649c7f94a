/*
This file implements the in-process conversation memory used by the turn
engine.

Conversations are keyed by the composite "{thread_id}_{user_id}" so a thread
id alone can never resolve another user's state. Each conversation carries two
locks: turnMu, held by the engine for the whole turn to serialize turns on the
same conversation, and mu, guarding the history and timestamps so that Stats
and the cleanup goroutine can read them while a turn is in flight. A
background goroutine evicts conversations idle beyond the configured maximum
age.
*/
package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

// ConversationKey builds the composite memory key for one (thread, user) pair.
func ConversationKey(threadID, userID string) string {
	return fmt.Sprintf("%s_%s", threadID, userID)
}

// Conversation holds the message history for one (thread, user) pair.
type Conversation struct {
	Key     string
	Created time.Time

	turnMu sync.Mutex

	mu       sync.Mutex
	messages []llms.MessageContent
	updated  time.Time
}

// Lock acquires the conversation for one turn.
func (c *Conversation) Lock() { c.turnMu.Lock() }

// Unlock releases the conversation after a turn.
func (c *Conversation) Unlock() { c.turnMu.Unlock() }

// Append adds messages to the history.
func (c *Conversation) Append(messages ...llms.MessageContent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, messages...)
	c.updated = time.Now()
}

// History returns a copy of the message history.
func (c *Conversation) History() []llms.MessageContent {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]llms.MessageContent, len(c.messages))
	copy(history, c.messages)
	return history
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = time.Now()
}

func (c *Conversation) lastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updated
}

// ConversationStore manages all live conversations with automatic expiry of
// idle ones.
type ConversationStore struct {
	conversations   map[string]*Conversation
	mutex           sync.RWMutex
	maxAge          time.Duration
	cleanupInterval time.Duration
	logger          *logrus.Logger
}

// NewConversationStore creates a store and starts its background cleanup
// goroutine.
func NewConversationStore(maxAge, cleanupInterval time.Duration, logger *logrus.Logger) *ConversationStore {
	store := &ConversationStore{
		conversations:   make(map[string]*Conversation),
		maxAge:          maxAge,
		cleanupInterval: cleanupInterval,
		logger:          logger,
	}

	go store.cleanupExpired()

	return store
}

// GetOrCreate returns the conversation for the given (thread, user) pair,
// creating an empty one on first use.
func (m *ConversationStore) GetOrCreate(threadID, userID string) *Conversation {
	key := ConversationKey(threadID, userID)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	conversation, exists := m.conversations[key]
	if !exists {
		conversation = &Conversation{
			Key:     key,
			Created: time.Now(),
			updated: time.Now(),
		}
		m.conversations[key] = conversation
		m.logger.WithField("conversationKey", key).Info("Created new conversation")
	} else {
		conversation.touch()
	}

	return conversation
}

// Delete removes one conversation from memory. Returns whether it existed.
func (m *ConversationStore) Delete(threadID, userID string) bool {
	key := ConversationKey(threadID, userID)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, exists := m.conversations[key]
	if exists {
		delete(m.conversations, key)
		m.logger.WithField("conversationKey", key).Info("Conversation deleted")
	}
	return exists
}

// cleanupExpired runs as a background goroutine removing conversations idle
// beyond maxAge.
func (m *ConversationStore) cleanupExpired() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mutex.Lock()
		now := time.Now()
		expired := make([]string, 0)

		for key, conversation := range m.conversations {
			if now.Sub(conversation.lastUpdated()) > m.maxAge {
				expired = append(expired, key)
			}
		}

		for _, key := range expired {
			delete(m.conversations, key)
		}

		if len(expired) > 0 {
			m.logger.WithFields(logrus.Fields{
				"expiredConversations":   len(expired),
				"remainingConversations": len(m.conversations),
				"cleanupInterval":        m.cleanupInterval,
			}).Info("Cleaned up idle conversations")
		}

		m.mutex.Unlock()
	}
}

// Stats returns operational counts for the status endpoint.
func (m *ConversationStore) Stats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	totalMessages := 0
	for _, conversation := range m.conversations {
		totalMessages += conversation.Len()
	}

	return map[string]interface{}{
		"totalConversations": len(m.conversations),
		"totalMessages":      totalMessages,
	}
}
