package ws

import "encoding/json"

// Inbound event names.
const (
	EventSessionInit             = "session_init"
	EventUserMessage             = "user_message"
	EventAdminMessage            = "admin_message"
	EventAdminIdentify           = "admin_identify"
	EventAdminJoinRoom           = "admin_join_room"
	EventAdminLeaveRoom          = "admin_leave_room"
	EventListActiveConversations = "list_active_conversations"
	EventListAllConversations    = "list_all_conversations"
	EventListMessages            = "list_messages"
	EventToggleAutoMode          = "toggle_auto_mode"
)

// Outbound event names.
const (
	EventAck                  = "ack"
	EventMessage              = "message"
	EventConversationList     = "conversation_list"
	EventAllConversationsList = "all_conversations_list"
	EventMessageHistory       = "message_history"
	EventAutoModeChanged      = "auto_mode_changed"
	EventNewMessageNotice     = "new_message_notice"
)

// Envelope frames every websocket message in both directions. ID carries
// an optional client-chosen correlation value; when present on an inbound
// event that supports acknowledgment, the server echoes it on an "ack".
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionInitPayload opens or resumes a conversation.
type SessionInitPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	ClientInfo     string `json:"client_info,omitempty"`
}

// SessionInitAck acknowledges session_init with the bound (or minted)
// conversation identifier.
type SessionInitAck struct {
	ConversationID string `json:"conversation_id"`
}

// ChatPayload carries user_message and admin_message content.
type ChatPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

// RoomPayload identifies a conversation room for join/leave/list_messages.
type RoomPayload struct {
	ConversationID string `json:"conversation_id"`
}

// AutoModePayload toggles automated-response mode.
type AutoModePayload struct {
	ConversationID string `json:"conversation_id"`
	Enabled        bool   `json:"enabled"`
}

// NewMessageNotice is the lightweight admin nudge sent alongside the full
// room fan-out.
type NewMessageNotice struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}
