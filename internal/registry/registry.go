// Package registry holds the in-memory authoritative view of active
// conversations: their last-activity summaries and per-conversation
// automated-response flags.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"relaychat/pkg/types"
)

// Registry is safe for concurrent use from any number of connection
// handlers. Views are retained for the life of the process once created;
// disconnects flip the activity flag but never evict. That is an accepted
// memory bound: the view set grows with distinct conversations seen since
// startup, not with traffic.
type Registry struct {
	mu       sync.RWMutex
	views    map[string]*types.ActiveView
	order    []string // conversation ids in first-activation order
	autoMode map[string]bool
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		views:    make(map[string]*types.ActiveView),
		autoMode: make(map[string]bool),
		logger:   logger.With(zap.String("component", "registry")),
	}
}

// Ensure returns the view for a conversation, creating it active with a
// placeholder preview when unknown. Existing views are returned untouched;
// only a live end-user binding (MarkActive) flips the activity flag back
// on. The second return reports whether a view was created; callers use it
// to signal "new conversation" to the administrator broadcast.
func (r *Registry) Ensure(conversationID string) (types.ActiveView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if view, exists := r.views[conversationID]; exists {
		return *view, false
	}

	view := &types.ActiveView{
		ConversationID: conversationID,
		Label:          LabelFor(conversationID),
		Preview:        "New conversation",
		LastActivity:   time.Now(),
		Active:         true,
	}
	r.views[conversationID] = view
	r.order = append(r.order, conversationID)

	r.logger.Info("conversation activated", zap.String("conversation_id", conversationID))
	return *view, true
}

// MarkActive flips a known conversation's activity flag on. Idempotent;
// unknown ids are ignored.
func (r *Registry) MarkActive(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if view, exists := r.views[conversationID]; exists {
		view.Active = true
	}
}

// MarkInactive flips the activity flag off, preserving the last known
// preview. Idempotent; unknown ids are ignored.
func (r *Registry) MarkInactive(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if view, exists := r.views[conversationID]; exists {
		view.Active = false
	}
}

// UpdatePreview truncates text to the role's preview bound and refreshes
// the activity timestamp. Silently a no-op for conversations the registry
// does not know; preview updates must never fail a submission.
func (r *Registry) UpdatePreview(conversationID, text, actorRole string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	view, exists := r.views[conversationID]
	if !exists {
		return
	}

	view.Preview = types.PreviewFor(text, actorRole)
	view.LastActivity = time.Now()
}

// SetAutoMode toggles automated-response mode for a conversation.
func (r *Registry) SetAutoMode(conversationID string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if enabled {
		r.autoMode[conversationID] = true
	} else {
		delete(r.autoMode, conversationID)
	}

	r.logger.Info("auto mode toggled",
		zap.String("conversation_id", conversationID),
		zap.Bool("enabled", enabled),
	)
}

// IsAutoMode reports whether automated responses are enabled for a
// conversation.
func (r *Registry) IsAutoMode(conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.autoMode[conversationID]
}

// Snapshot returns a copy of every view in first-activation order. Views
// are copied under the lock, so a snapshot never exposes a
// partially-constructed entry.
func (r *Registry) Snapshot() []types.ActiveView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]types.ActiveView, 0, len(r.order))
	for _, id := range r.order {
		if view, exists := r.views[id]; exists {
			snapshot = append(snapshot, *view)
		}
	}
	return snapshot
}

// Stats reports view counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := 0
	for _, view := range r.views {
		if view.Active {
			active++
		}
	}

	return map[string]int{
		"tracked_conversations": len(r.views),
		"active_conversations":  active,
		"auto_mode_enabled":     len(r.autoMode),
	}
}

// LabelFor derives a short display label from the public identifier.
func LabelFor(conversationID string) string {
	short := conversationID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Visitor " + short
}
