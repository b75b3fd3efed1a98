package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relaychat/internal/identity"
	"relaychat/internal/registry"
	"relaychat/pkg/interfaces"
	"relaychat/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks belong to the deployment's proxy layer.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Timeouts configures per-connection heartbeat behavior.
type Timeouts struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	BufferSize   int
}

// Handler upgrades websocket requests and dispatches inbound envelopes.
// Events on one connection are processed sequentially by its read loop,
// which is what preserves per-sender submission order through the intake
// pipeline.
type Handler struct {
	router   *Router
	registry *registry.Registry
	store    interfaces.MessageStore
	intake   interfaces.IntakePipeline
	notifier interfaces.AdminNotifier
	timeouts Timeouts
	logger   *zap.Logger
}

// NewHandler wires the websocket endpoint.
func NewHandler(
	router *Router,
	reg *registry.Registry,
	store interfaces.MessageStore,
	intake interfaces.IntakePipeline,
	notifier interfaces.AdminNotifier,
	timeouts Timeouts,
	logger *zap.Logger,
) *Handler {
	if timeouts.PingInterval <= 0 {
		timeouts.PingInterval = 30 * time.Second
	}
	if timeouts.ReadTimeout <= 0 {
		timeouts.ReadTimeout = 60 * time.Second
	}
	if timeouts.BufferSize <= 0 {
		timeouts.BufferSize = 100
	}
	return &Handler{
		router:   router,
		registry: reg,
		store:    store,
		intake:   intake,
		notifier: notifier,
		timeouts: timeouts,
		logger:   logger.With(zap.String("component", "ws")),
	}
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(raw, h.timeouts.BufferSize)
	h.logger.Info("connection opened",
		zap.String("conn_id", conn.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go h.handleConnection(conn, r.RemoteAddr)
}

func (h *Handler) handleConnection(conn *Connection, remoteAddr string) {
	defer h.teardown(conn)

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.timeouts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.timeouts.ReadTimeout))
	})

	ticker := time.NewTicker(h.timeouts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read failed", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Malformed client events are dropped, never answered.
			h.logger.Debug("malformed envelope dropped", zap.String("conn_id", conn.ID()))
			continue
		}

		h.dispatch(conn, remoteAddr, &env)
	}
}

// teardown destroys routing state synchronously on disconnect. An
// in-flight submission for this connection keeps running; its fan-out
// simply no longer reaches this member.
func (h *Handler) teardown(conn *Connection) {
	conversationID, wasBound := h.router.Drop(conn)
	_ = conn.Close()

	if wasBound {
		h.registry.MarkInactive(conversationID)
		h.notifier.ConversationList()
	}

	h.logger.Info("connection closed", zap.String("conn_id", conn.ID()))
}

func (h *Handler) dispatch(conn *Connection, remoteAddr string, env *Envelope) {
	ctx := context.Background()

	switch env.Event {
	case EventSessionInit:
		h.handleSessionInit(ctx, conn, remoteAddr, env)
	case EventUserMessage:
		h.handleUserMessage(ctx, conn, env)
	case EventAdminMessage:
		h.handleAdminMessage(ctx, conn, env)
	case EventAdminIdentify:
		h.router.SetAdmin(conn)
	case EventAdminJoinRoom:
		h.handleJoinRoom(conn, env)
	case EventAdminLeaveRoom:
		h.handleLeaveRoom(conn, env)
	case EventListActiveConversations:
		h.sendConversationList(conn)
	case EventListAllConversations:
		h.sendAllConversations(ctx, conn)
	case EventListMessages:
		h.sendMessageHistory(ctx, conn, env)
	case EventToggleAutoMode:
		h.handleToggleAutoMode(conn, env)
	default:
		h.logger.Debug("unknown event dropped",
			zap.String("conn_id", conn.ID()),
			zap.String("event", env.Event),
		)
	}
}

// handleSessionInit opens or resumes a conversation for an end-user
// connection. A fresh identifier is minted when none is presented, and
// unknown presented identifiers are re-created rather than rejected.
// Binding is first-wins: a second session_init still acknowledges a valid
// identifier but never rebinds the connection.
func (h *Handler) handleSessionInit(ctx context.Context, conn *Connection, remoteAddr string, env *Envelope) {
	var payload SessionInitPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
	}

	conversationID := payload.ConversationID
	if conversationID == "" {
		conversationID = identity.New()
	}

	if err := h.store.CreateConversation(ctx, &types.Conversation{
		ID:         conversationID,
		RemoteAddr: remoteAddr,
		ClientInfo: payload.ClientInfo,
		CreatedAt:  time.Now(),
	}); err != nil {
		h.logger.Error("conversation create failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	_, created := h.registry.Ensure(conversationID)

	if err := h.router.Bind(conn, conversationID); err != nil {
		h.logger.Debug("rebind rejected", zap.String("conn_id", conn.ID()))
	} else {
		h.registry.MarkActive(conversationID)
	}

	if created {
		h.notifier.ConversationList()
	}

	if env.ID != "" {
		if err := conn.SendAck(env.ID, SessionInitAck{ConversationID: conversationID}); err != nil {
			h.logger.Debug("ack not delivered", zap.String("conn_id", conn.ID()), zap.Error(err))
		}
	}
}

func (h *Handler) handleUserMessage(ctx context.Context, conn *Connection, env *Envelope) {
	conversationID, bound := h.router.Binding(conn)
	if !bound {
		return
	}

	var payload ChatPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}

	if err := h.intake.Submit(ctx, conversationID, types.RoleUser, payload.Content, conn.ID()); err != nil {
		h.logger.Error("user submission failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func (h *Handler) handleAdminMessage(ctx context.Context, conn *Connection, env *Envelope) {
	if conn.Role() != RoleAdmin {
		return
	}

	var payload ChatPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}
	if payload.ConversationID == "" {
		return
	}

	if err := h.intake.Submit(ctx, payload.ConversationID, types.RoleAdmin, payload.Content, conn.ID()); err != nil {
		h.logger.Error("admin submission failed",
			zap.String("conversation_id", payload.ConversationID),
			zap.Error(err),
		)
	}
}

func (h *Handler) handleJoinRoom(conn *Connection, env *Envelope) {
	var payload RoomPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.ConversationID == "" {
		return
	}
	if err := h.router.JoinRoom(conn, payload.ConversationID); err != nil {
		h.logger.Debug("join room rejected", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

func (h *Handler) handleLeaveRoom(conn *Connection, env *Envelope) {
	var payload RoomPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.ConversationID == "" {
		return
	}
	h.router.LeaveRoom(conn, payload.ConversationID)
}

func (h *Handler) sendConversationList(conn *Connection) {
	if err := conn.Send(EventConversationList, h.registry.Snapshot()); err != nil {
		h.logger.Debug("conversation list not delivered", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

// sendAllConversations merges persisted conversations with live registry
// state: stored rows provide the catalog, the registry overlays current
// activity where it has a view.
func (h *Handler) sendAllConversations(ctx context.Context, conn *Connection) {
	summaries, err := h.store.ListSummaries(ctx)
	if err != nil {
		h.logger.Error("summary listing failed", zap.Error(err))
		return
	}

	live := make(map[string]types.ActiveView)
	for _, view := range h.registry.Snapshot() {
		live[view.ConversationID] = view
	}

	views := make([]types.ActiveView, 0, len(summaries))
	for _, s := range summaries {
		if view, ok := live[s.Conversation.ID]; ok {
			views = append(views, view)
			continue
		}
		views = append(views, types.ActiveView{
			ConversationID: s.Conversation.ID,
			Label:          registry.LabelFor(s.Conversation.ID),
			Preview:        types.PreviewFor(s.LastContent, types.RoleUser),
			LastActivity:   s.LastActivity,
			Active:         false,
		})
	}

	if err := conn.Send(EventAllConversationsList, views); err != nil {
		h.logger.Debug("all conversations not delivered", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

func (h *Handler) sendMessageHistory(ctx context.Context, conn *Connection, env *Envelope) {
	var payload RoomPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.ConversationID == "" {
		return
	}

	messages, err := h.store.ListMessages(ctx, payload.ConversationID)
	if err != nil {
		h.logger.Error("history listing failed",
			zap.String("conversation_id", payload.ConversationID),
			zap.Error(err),
		)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	if err := conn.Send(EventMessageHistory, messages); err != nil {
		h.logger.Debug("history not delivered", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

func (h *Handler) handleToggleAutoMode(conn *Connection, env *Envelope) {
	if conn.Role() != RoleAdmin {
		return
	}

	var payload AutoModePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.ConversationID == "" {
		return
	}

	h.registry.SetAutoMode(payload.ConversationID, payload.Enabled)
	h.notifier.AutoModeChanged(payload.ConversationID, payload.Enabled)
}
