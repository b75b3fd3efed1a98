package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relaychat/internal/registry"
	"relaychat/internal/ws"
)

func newTestBroadcaster() *Broadcaster {
	logger := zap.NewNop()
	return NewBroadcaster(ws.NewRouter(logger), registry.NewRegistry(logger), logger)
}

func TestStartTwiceFails(t *testing.T) {
	b := newTestBroadcaster()

	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop() }()

	assert.ErrorIs(t, b.Start(context.Background()), ErrAlreadyRunning)
}

func TestStopWithoutStartFails(t *testing.T) {
	b := newTestBroadcaster()
	assert.ErrorIs(t, b.Stop(), ErrNotRunning)
}

func TestStopTwiceFails(t *testing.T) {
	b := newTestBroadcaster()

	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Stop())
	assert.ErrorIs(t, b.Stop(), ErrNotRunning)
}

func TestEnqueueWhenStoppedIsSafe(t *testing.T) {
	b := newTestBroadcaster()

	b.ConversationList()
	b.NewMessage("conv-1", "hello")
	b.AutoModeChanged("conv-1", true)

	assert.Empty(t, b.notices, "notices before start are discarded")
}

func TestNoticesQueueWhileRunning(t *testing.T) {
	b := newTestBroadcaster()
	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop() }()

	// No admins are connected; delivery is a no-op but must not panic
	// or block the caller.
	for i := 0; i < 10; i++ {
		b.ConversationList()
		b.NewMessage("conv-1", "hello")
	}
}
