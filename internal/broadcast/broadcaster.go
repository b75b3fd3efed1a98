// Package broadcast pushes registry-state changes to every connected
// administrator through a single coordinating goroutine.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"relaychat/internal/registry"
	"relaychat/internal/ws"
)

var (
	ErrAlreadyRunning = errors.New("broadcaster is already running")
	ErrNotRunning     = errors.New("broadcaster is not running")
)

type notice struct {
	event    string
	payload  any
	snapshot bool
}

// Broadcaster implements interfaces.AdminNotifier. Notices queue on a
// buffered channel and a single goroutine delivers them, so snapshot
// payloads are resolved at delivery time and callers never block on slow
// admin connections. A full queue drops the notice: delivery is
// best-effort and at-most-once by contract.
type Broadcaster struct {
	notices  chan notice
	shutdown chan struct{}
	router   *ws.Router
	registry *registry.Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
}

// NewBroadcaster wires the broadcaster.
func NewBroadcaster(router *ws.Router, reg *registry.Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		notices:  make(chan notice, 256),
		shutdown: make(chan struct{}),
		router:   router,
		registry: reg,
		logger:   logger.With(zap.String("component", "broadcast")),
	}
}

// Start begins notice processing.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
	return nil
}

// Stop shuts down notice processing. Queued notices are discarded; admins
// re-pull the snapshot on their next request anyway.
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return ErrNotRunning
	}
	b.running = false

	select {
	case <-b.shutdown:
	default:
		close(b.shutdown)
	}
	return nil
}

// ConversationList queues a full registry snapshot push to all admins.
func (b *Broadcaster) ConversationList() {
	b.enqueue(notice{event: ws.EventConversationList, snapshot: true})
}

// NewMessage queues a lightweight nudge about fresh conversation content.
func (b *Broadcaster) NewMessage(conversationID, content string) {
	b.enqueue(notice{
		event:   ws.EventNewMessageNotice,
		payload: ws.NewMessageNotice{ConversationID: conversationID, Content: content},
	})
}

// AutoModeChanged queues an automated-response mode toggle announcement.
func (b *Broadcaster) AutoModeChanged(conversationID string, enabled bool) {
	b.enqueue(notice{
		event:   ws.EventAutoModeChanged,
		payload: ws.AutoModePayload{ConversationID: conversationID, Enabled: enabled},
	})
}

func (b *Broadcaster) enqueue(n notice) {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return
	}

	select {
	case b.notices <- n:
	default:
		b.logger.Warn("notice queue full, dropping", zap.String("event", n.event))
	}
}

func (b *Broadcaster) run(ctx context.Context) {
	for {
		select {
		case n := <-b.notices:
			payload := n.payload
			if n.snapshot {
				payload = b.registry.Snapshot()
			}
			b.router.NotifyAdmins(n.event, payload)

		case <-b.shutdown:
			return

		case <-ctx.Done():
			return
		}
	}
}
