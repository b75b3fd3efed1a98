package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Router owns every connection binding: which connections are
// administrators, which conversation each end-user connection is bound to,
// and which rooms each connection is observing. Pure routing state;
// persistence and validation live elsewhere.
type Router struct {
	mu     sync.RWMutex
	admins map[string]*Connection            // connID -> connection
	rooms  map[string]map[string]*Connection // conversationID -> connID -> connection
	bound  map[string]string                 // connID -> conversationID (end-users only)
	logger *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		admins: make(map[string]*Connection),
		rooms:  make(map[string]map[string]*Connection),
		bound:  make(map[string]string),
		logger: logger.With(zap.String("component", "router")),
	}
}

// Bind attaches an end-user connection to exactly one conversation and
// joins its room. Binding happens once per connection; a second attempt
// returns ErrAlreadyBound and leaves the first binding in place.
func (r *Router) Bind(conn *Connection, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bound[conn.ID()]; exists {
		return ErrAlreadyBound
	}

	conn.SetRole(RoleEndUser)
	r.bound[conn.ID()] = conversationID
	r.joinRoomLocked(conn, conversationID)

	r.logger.Info("connection bound",
		zap.String("conn_id", conn.ID()),
		zap.String("conversation_id", conversationID),
	)
	return nil
}

// Binding returns the conversation an end-user connection is bound to.
func (r *Router) Binding(conn *Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conversationID, exists := r.bound[conn.ID()]
	return conversationID, exists
}

// SetAdmin marks a connection as an administrator. Administrators receive
// registry broadcasts immediately but observe no rooms until they join.
func (r *Router) SetAdmin(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn.SetRole(RoleAdmin)
	r.admins[conn.ID()] = conn

	r.logger.Info("administrator identified", zap.String("conn_id", conn.ID()))
}

// JoinRoom adds an administrator connection to a conversation room.
func (r *Router) JoinRoom(conn *Connection, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, isAdmin := r.admins[conn.ID()]; !isAdmin {
		return ErrNotAdmin
	}

	r.joinRoomLocked(conn, conversationID)
	return nil
}

// LeaveRoom removes a connection from a conversation room. Idempotent.
func (r *Router) LeaveRoom(conn *Connection, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveRoomLocked(conn.ID(), conversationID)
}

func (r *Router) joinRoomLocked(conn *Connection, conversationID string) {
	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Connection)
		r.rooms[conversationID] = room
	}
	room[conn.ID()] = conn
}

func (r *Router) leaveRoomLocked(connID, conversationID string) {
	if room, exists := r.rooms[conversationID]; exists {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, conversationID)
		}
	}
}

// Drop removes a connection from the administrator set, every room it
// observed, and its binding. Returns the bound conversation id for
// end-user connections so the caller can mark it inactive. Idempotent.
func (r *Router) Drop(conn *Connection) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	delete(r.admins, connID)

	for conversationID := range r.rooms {
		r.leaveRoomLocked(connID, conversationID)
	}

	conversationID, wasBound := r.bound[connID]
	delete(r.bound, connID)

	return conversationID, wasBound
}

// BroadcastRoom delivers an event to every member of a conversation room,
// skipping exceptConnID when non-empty. User-authored messages pass their
// origin to avoid self-echo; administrator and automated messages pass ""
// so every observer converges on the persisted transcript. Delivery
// failures are logged and do not stop delivery to remaining members.
func (r *Router) BroadcastRoom(conversationID, event string, payload any, exceptConnID string) {
	r.mu.RLock()
	members := make([]*Connection, 0, len(r.rooms[conversationID]))
	for connID, conn := range r.rooms[conversationID] {
		if exceptConnID != "" && connID == exceptConnID {
			continue
		}
		members = append(members, conn)
	}
	r.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(event, payload); err != nil {
			r.logger.Debug("room delivery skipped",
				zap.String("conn_id", conn.ID()),
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}
}

// NotifyAdmins delivers an event to every administrator connection,
// regardless of room membership. Best-effort, at-most-once per admin.
func (r *Router) NotifyAdmins(event string, payload any) {
	r.mu.RLock()
	admins := make([]*Connection, 0, len(r.admins))
	for _, conn := range r.admins {
		admins = append(admins, conn)
	}
	r.mu.RUnlock()

	for _, conn := range admins {
		if err := conn.Send(event, payload); err != nil {
			r.logger.Debug("admin delivery skipped",
				zap.String("conn_id", conn.ID()),
				zap.Error(err),
			)
		}
	}
}

// RoomMembers returns the connections currently observing a conversation,
// minus exceptConnID when non-empty.
func (r *Router) RoomMembers(conversationID, exceptConnID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Connection, 0, len(r.rooms[conversationID]))
	for connID, conn := range r.rooms[conversationID] {
		if exceptConnID != "" && connID == exceptConnID {
			continue
		}
		members = append(members, conn)
	}
	return members
}

// Stats reports routing state for the health endpoint.
func (r *Router) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"admin_connections": len(r.admins),
		"bound_users":       len(r.bound),
		"open_rooms":        len(r.rooms),
	}
}
