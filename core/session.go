package core

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a session's history.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, At: time.Now()}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, At: time.Now()}
}

// Session is one user's conversational context. It is owned exclusively by
// the gateway connection that created it and destroyed on disconnect; turns
// within a session are processed as a single logical sequence, so no locking
// is needed.
type Session struct {
	ID     string
	UserID string

	// ActiveAgent selects which top-level capability handles this session.
	// Empty means the router agent.
	ActiveAgent string

	History   []Message
	TurnCount int

	refs map[string]string
}

// NewSession creates a session bound to a fixed user identity. The user id is
// injected once here and never re-derived from message text.
func NewSession(id, userID, activeAgent string) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		ActiveAgent: activeAgent,
		refs:        make(map[string]string),
	}
}

// Append records a turn in the session history.
func (s *Session) Append(msg Message) {
	s.History = append(s.History, msg)
	if msg.Role == RoleUser {
		s.TurnCount++
	}
}

// Remember stores an entity identifier (goal_id, schedule_id, meeting_id,
// advisor_type) carried across turns. Identifiers are opaque and scoped to
// this user.
func (s *Session) Remember(key, value string) {
	s.refs[key] = value
}

// Recall returns a previously carried identifier.
func (s *Session) Recall(key string) (string, bool) {
	v, ok := s.refs[key]
	return v, ok
}

// Forget drops a carried identifier, e.g. after the record it named was
// cancelled.
func (s *Session) Forget(key string) {
	delete(s.refs, key)
}
