// Package intake validates, normalizes, deduplicates, and sequences
// inbound chat submissions before storage and fan-out.
package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"relaychat/internal/registry"
	"relaychat/internal/ws"
	"relaychat/pkg/interfaces"
	"relaychat/pkg/types"
)

// FallbackResponse is persisted in place of a generated reply whenever the
// responder gateway fails. End-users never see the underlying error.
const FallbackResponse = "Sorry, I'm having trouble responding right now. A team member will follow up with you shortly."

const (
	// dedupeWindow suppresses byte-identical resubmissions from retrying
	// clients. Legitimate repeats after the window pass through.
	defaultDedupeWindow = 5 * time.Second

	// guardTTL bounds how long an in-flight claim can outlive a release
	// that never ran.
	defaultGuardTTL = 30 * time.Second

	// historyWindow is the number of prior messages handed to the
	// responder as conversational context.
	historyWindow = 6
)

type dedupeEntry struct {
	content string
	at      time.Time
}

// Pipeline implements interfaces.IntakePipeline.
type Pipeline struct {
	store     interfaces.MessageStore
	rooms     interfaces.RoomBroadcaster
	registry  *registry.Registry
	responder interfaces.Responder
	notifier  interfaces.AdminNotifier
	logger    *zap.Logger

	guard        *inflightGuard
	dedupeWindow time.Duration
	dedupeMu     sync.Mutex
	lastAccepted map[string]dedupeEntry // conversationID -> previous accepted user content
}

// NewPipeline wires the intake pipeline.
func NewPipeline(
	store interfaces.MessageStore,
	rooms interfaces.RoomBroadcaster,
	reg *registry.Registry,
	responder interfaces.Responder,
	notifier interfaces.AdminNotifier,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:        store,
		rooms:        rooms,
		registry:     reg,
		responder:    responder,
		notifier:     notifier,
		logger:       logger.With(zap.String("component", "intake")),
		guard:        newInflightGuard(defaultGuardTTL),
		dedupeWindow: defaultDedupeWindow,
		lastAccepted: make(map[string]dedupeEntry),
	}
}

// Submit runs one submission through the full pipeline: normalize, dedupe
// (end-user only), in-flight guard (end-user only), persist, fan out,
// preview update, and, when automated-response mode is on, the responder
// step. The user's message is durably accepted before the responder is
// consulted, so transcripts always read user-then-response.
func (p *Pipeline) Submit(ctx context.Context, conversationID, role, rawContent, originConnID string) error {
	content := types.NormalizeContent(rawContent)
	if content == "" {
		return nil
	}

	if role != types.RoleUser {
		_, err := p.persistAndFanOut(ctx, conversationID, role, content, false, originConnID)
		return err
	}

	msg, err := p.acceptUserMessage(ctx, conversationID, content, originConnID)
	if err != nil || msg == nil {
		return err
	}

	if p.registry.IsAutoMode(conversationID) {
		p.respond(ctx, conversationID, content, msg.ID)
	}

	return nil
}

// acceptUserMessage brackets dedupe, the in-flight guard, and persistence
// for an end-user submission. The guard covers persistence only; it is
// released before the responder step runs, so a legitimate repeat past the
// dedupe window is accepted even while a slow generation is in flight.
// A nil message with a nil error means the submission was dropped as a
// duplicate.
func (p *Pipeline) acceptUserMessage(ctx context.Context, conversationID, content, originConnID string) (*types.Message, error) {
	if p.isDuplicate(conversationID, content) {
		p.logger.Debug("duplicate submission dropped",
			zap.String("conversation_id", conversationID),
		)
		return nil, nil
	}

	key := guardKey(conversationID, content)
	if !p.guard.acquire(key) {
		p.logger.Debug("in-flight duplicate dropped",
			zap.String("conversation_id", conversationID),
		)
		return nil, nil
	}
	defer p.guard.release(key)

	msg, err := p.persistAndFanOut(ctx, conversationID, types.RoleUser, content, false, originConnID)
	if err != nil {
		return nil, err
	}

	p.recordAccepted(conversationID, content)
	return msg, nil
}

// persistAndFanOut persists one message and delivers it. User-authored
// messages skip their origin connection (the client renders its own send
// optimistically); administrator and automated messages reach the whole
// room so every observer converges on the persisted transcript.
func (p *Pipeline) persistAndFanOut(ctx context.Context, conversationID, role, content string, automated bool, originConnID string) (*types.Message, error) {
	// Tolerant re-creation: the store row or the in-memory view may have
	// been lost (restart, stale client identifier). Neither is an error.
	if _, created := p.registry.Ensure(conversationID); created {
		p.notifier.ConversationList()
	}
	if err := p.store.CreateConversation(ctx, &types.Conversation{
		ID:        conversationID,
		CreatedAt: time.Now(),
	}); err != nil {
		p.logger.Warn("tolerant conversation create failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	msg := &types.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Automated:      automated,
		CreatedAt:      time.Now(),
	}

	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	except := ""
	if role == types.RoleUser {
		except = originConnID
	}
	p.rooms.BroadcastRoom(conversationID, ws.EventMessage, msg, except)

	p.registry.UpdatePreview(conversationID, content, role)
	p.notifier.ConversationList()
	if role == types.RoleUser && !automated {
		p.notifier.NewMessage(conversationID, content)
	}

	return msg, nil
}

// respond generates and delivers the automated reply. Responder failures
// are converted to the fixed fallback message; nothing here affects the
// success already reported for the triggering submission.
func (p *Pipeline) respond(ctx context.Context, conversationID, prompt, promptMessageID string) {
	history, err := p.history(ctx, conversationID, promptMessageID)
	if err != nil {
		p.logger.Warn("history fetch for responder failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	reply, err := p.responder.Generate(ctx, prompt, history)
	if err != nil {
		p.logger.Warn("responder failed, using fallback",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		reply = FallbackResponse
	}

	reply = types.NormalizeContent(reply)
	if reply == "" {
		reply = FallbackResponse
	}

	if _, err := p.persistAndFanOut(ctx, conversationID, types.RoleAdmin, reply, true, ""); err != nil {
		p.logger.Error("automated response not persisted",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// history returns up to historyWindow prior messages, oldest first, with
// the triggering message itself excluded, mapped to the responder's
// two-value role tags.
func (p *Pipeline) history(ctx context.Context, conversationID, excludeMessageID string) ([]types.Turn, error) {
	messages, err := p.store.RecentMessages(ctx, conversationID, historyWindow+1)
	if err != nil {
		return nil, err
	}

	turns := make([]types.Turn, 0, historyWindow)
	for _, msg := range messages {
		if msg.ID == excludeMessageID {
			continue
		}
		turnRole := "assistant"
		if msg.Role == types.RoleUser {
			turnRole = "user"
		}
		turns = append(turns, types.Turn{Role: turnRole, Content: msg.Content})
	}
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}

	return turns, nil
}

func (p *Pipeline) isDuplicate(conversationID, content string) bool {
	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()

	entry, exists := p.lastAccepted[conversationID]
	return exists && entry.content == content && time.Since(entry.at) < p.dedupeWindow
}

func (p *Pipeline) recordAccepted(conversationID, content string) {
	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()

	p.lastAccepted[conversationID] = dedupeEntry{content: content, at: time.Now()}
}

func guardKey(conversationID, content string) string {
	return conversationID + "\x00" + content
}
