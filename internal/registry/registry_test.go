package registry

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relaychat/pkg/types"
)

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop())
}

func TestEnsureCreatesOnce(t *testing.T) {
	r := newTestRegistry()

	view, created := r.Ensure("conv-1")
	require.True(t, created, "first activation should report creation")
	assert.True(t, view.Active)
	assert.Equal(t, "Visitor conv-1", view.Label)
	assert.Equal(t, "New conversation", view.Preview)

	_, created = r.Ensure("conv-1")
	assert.False(t, created, "second activation must not re-create")
}

func TestEnsureLeavesDisconnectedViewInactive(t *testing.T) {
	r := newTestRegistry()
	r.Ensure("conv-1")
	r.MarkInactive("conv-1")

	// An admin replying into a disconnected conversation touches the view
	// but must not pass it off as connected.
	view, created := r.Ensure("conv-1")
	assert.False(t, created)
	assert.False(t, view.Active)
	assert.False(t, r.Snapshot()[0].Active)

	r.MarkActive("conv-1")
	assert.True(t, r.Snapshot()[0].Active, "reactivation stays the bind path's job")
}

func TestSnapshotInsertionOrder(t *testing.T) {
	r := newTestRegistry()

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		r.Ensure(id)
	}

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 3)
	for i, id := range ids {
		assert.Equal(t, id, snapshot[i].ConversationID)
	}
}

func TestUpdatePreviewTruncation(t *testing.T) {
	r := newTestRegistry()
	r.Ensure("conv-1")

	long := strings.Repeat("u", 80)
	r.UpdatePreview("conv-1", long, types.RoleUser)
	view := r.Snapshot()[0]
	assert.Equal(t, strings.Repeat("u", 50)+"...", view.Preview)

	r.UpdatePreview("conv-1", long, types.RoleAdmin)
	view = r.Snapshot()[0]
	assert.Equal(t, strings.Repeat("u", 40)+"...", view.Preview)
}

func TestUpdatePreviewUnknownConversationIsNoOp(t *testing.T) {
	r := newTestRegistry()

	// Must not panic and must not create a view.
	r.UpdatePreview("ghost", "text", types.RoleUser)
	assert.Empty(t, r.Snapshot())
}

func TestMarkInactivePreservesPreview(t *testing.T) {
	r := newTestRegistry()
	r.Ensure("conv-1")
	r.UpdatePreview("conv-1", "last words", types.RoleUser)

	r.MarkInactive("conv-1")

	view := r.Snapshot()[0]
	assert.False(t, view.Active)
	assert.Equal(t, "last words", view.Preview, "inactive transition must keep the preview")

	r.MarkActive("conv-1")
	assert.True(t, r.Snapshot()[0].Active)
}

func TestAutoMode(t *testing.T) {
	r := newTestRegistry()

	assert.False(t, r.IsAutoMode("conv-1"))

	r.SetAutoMode("conv-1", true)
	assert.True(t, r.IsAutoMode("conv-1"))

	r.SetAutoMode("conv-1", false)
	assert.False(t, r.IsAutoMode("conv-1"))
}

func TestConcurrentMutationAndSnapshot(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", n%5)
			r.Ensure(id)
			r.UpdatePreview(id, strings.Repeat("z", 100), types.RoleUser)
			r.SetAutoMode(id, n%2 == 0)
			for _, view := range r.Snapshot() {
				// Every visible view must be fully formed.
				assert.NotEmpty(t, view.ConversationID)
				assert.NotEmpty(t, view.Label)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Snapshot(), 5)
}

func TestStats(t *testing.T) {
	r := newTestRegistry()
	r.Ensure("a")
	r.Ensure("b")
	r.MarkInactive("b")
	r.SetAutoMode("a", true)

	stats := r.Stats()
	assert.Equal(t, 2, stats["tracked_conversations"])
	assert.Equal(t, 1, stats["active_conversations"])
	assert.Equal(t, 1, stats["auto_mode_enabled"])
}
