package interfaces

import (
	"context"

	"relaychat/pkg/types"
)

// MessageStore is the durable persistence boundary for conversations and
// messages. Implementations serialize their own writes; callers add no
// transactional wrapping on top.
type MessageStore interface {
	// CreateConversation inserts a conversation if its id is unknown.
	// Creating an id that already exists is not an error.
	CreateConversation(ctx context.Context, conv *types.Conversation) error

	// GetConversation returns ErrConversationNotFound for unknown ids.
	GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error)

	// ListConversations returns every stored conversation, newest first.
	ListConversations(ctx context.Context) ([]*types.Conversation, error)

	// ListSummaries returns every stored conversation with its latest
	// message content and activity time, most recently active first.
	ListSummaries(ctx context.Context) ([]*types.ConversationSummary, error)

	// SaveMessage persists a message exactly once.
	SaveMessage(ctx context.Context, msg *types.Message) error

	// ListMessages returns a conversation's messages in insertion order.
	// Unknown conversations yield an empty slice, not an error.
	ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error)

	// RecentMessages returns up to limit of the newest messages in a
	// conversation, oldest of the window first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
