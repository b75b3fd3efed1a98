package types

import (
	"time"
)

// Sender roles. Automated responses carry RoleAdmin with Automated set.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Conversation is the persisted record of an end-user exchange. The ID is
// the public, client-visible identifier; there is no separate internal key.
// Conversations are never deleted by this subsystem.
type Conversation struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	ClientInfo string    `json:"client_info,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is a single persisted chat message. Immutable once created.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Automated      bool      `json:"automated"`
	CreatedAt      time.Time `json:"created_at"`
}

// ActiveView is the in-memory summary of a conversation's live state.
// Owned by the registry; never persisted. Rebuilt lazily after restart
// when a conversation sees traffic again.
type ActiveView struct {
	ConversationID string    `json:"conversation_id"`
	Label          string    `json:"label"`
	Preview        string    `json:"preview"`
	LastActivity   time.Time `json:"last_activity"`
	Active         bool      `json:"active"`
}

// Turn is one role-tagged history entry passed to the responder gateway.
// Role is the two-value tag expected by chat-completions APIs: "user" for
// end-user messages, "assistant" for everything else.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationSummary pairs a stored conversation with its most recent
// message, for the merged persisted+active listing.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	LastContent  string       `json:"last_content"`
	LastActivity time.Time    `json:"last_activity"`
}
