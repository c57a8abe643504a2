// Package store persists conversation transcripts.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// Conversation is one session's saved transcript.
type Conversation struct {
	SessionID string
	UserID    string
	Agent     string
	Messages  []core.Message
	StartedAt time.Time
	UpdatedAt time.Time
}

// Conversations is an in-memory transcript store. Sessions write to it as
// turns complete; it survives the websocket connection but not the process.
type Conversations struct {
	mu   sync.RWMutex
	byID map[string]*Conversation
}

// NewConversations creates an empty store.
func NewConversations() *Conversations {
	return &Conversations{byID: make(map[string]*Conversation)}
}

// Append records a message under the session, creating the conversation on
// first write.
func (c *Conversations) Append(sessionID, userID, agent string, msg core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.byID[sessionID]
	if !ok {
		conv = &Conversation{
			SessionID: sessionID,
			UserID:    userID,
			Agent:     agent,
			StartedAt: time.Now(),
		}
		c.byID[sessionID] = conv
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()
}

// Get returns a conversation by session id.
func (c *Conversations) Get(sessionID string) (*Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.byID[sessionID]
	return conv, ok
}

// ByUser returns a user's conversations, most recently updated first.
func (c *Conversations) ByUser(userID string) []*Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var convs []*Conversation
	for _, conv := range c.byID {
		if conv.UserID == userID {
			convs = append(convs, conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs
}
