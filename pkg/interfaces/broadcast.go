package interfaces

// AdminNotifier pushes registry-state changes to every connected
// administrator. Delivery is best-effort and at-most-once per connected
// administrator per call; nothing is queued for absent administrators.
type AdminNotifier interface {
	// ConversationList pushes a full registry snapshot to all admins.
	ConversationList()
	// NewMessage nudges admins about fresh content in a conversation.
	NewMessage(conversationID, content string)
	// AutoModeChanged announces an automated-response mode toggle.
	AutoModeChanged(conversationID string, enabled bool)
}

// RoomBroadcaster delivers an event to the live members of a conversation
// room. A connection id in exceptConnID is skipped; "" delivers to the
// whole room. Delivery to a closed member is a no-op.
type RoomBroadcaster interface {
	BroadcastRoom(conversationID, event string, payload any, exceptConnID string)
}
