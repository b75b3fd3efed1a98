package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter() *Router {
	return NewRouter(zap.NewNop())
}

// testConn builds a connection whose writer goroutine is stopped so the
// router's membership bookkeeping can be exercised without a socket.
func testConn(t *testing.T) *Connection {
	t.Helper()
	c := NewConnection(nil, 1)
	_ = c.Close()
	return c
}

func TestBindFirstWins(t *testing.T) {
	r := newTestRouter()
	conn := testConn(t)

	require.NoError(t, r.Bind(conn, "conv-a"))
	assert.Equal(t, RoleEndUser, conn.Role())

	err := r.Bind(conn, "conv-b")
	assert.ErrorIs(t, err, ErrAlreadyBound)

	conversationID, bound := r.Binding(conn)
	require.True(t, bound)
	assert.Equal(t, "conv-a", conversationID, "first binding must survive a rebind attempt")
}

func TestBindJoinsOwnRoom(t *testing.T) {
	r := newTestRouter()
	conn := testConn(t)

	require.NoError(t, r.Bind(conn, "conv-a"))

	members := r.RoomMembers("conv-a", "")
	require.Len(t, members, 1)
	assert.Equal(t, conn.ID(), members[0].ID())
}

func TestJoinRoomRequiresAdmin(t *testing.T) {
	r := newTestRouter()
	user := testConn(t)
	admin := testConn(t)

	require.NoError(t, r.Bind(user, "conv-a"))
	assert.ErrorIs(t, r.JoinRoom(user, "conv-b"), ErrNotAdmin)

	r.SetAdmin(admin)
	require.NoError(t, r.JoinRoom(admin, "conv-a"))
	assert.Len(t, r.RoomMembers("conv-a", ""), 2)
}

func TestLeaveRoomIsIdempotent(t *testing.T) {
	r := newTestRouter()
	admin := testConn(t)

	r.SetAdmin(admin)
	require.NoError(t, r.JoinRoom(admin, "conv-a"))

	r.LeaveRoom(admin, "conv-a")
	r.LeaveRoom(admin, "conv-a")
	r.LeaveRoom(admin, "never-joined")

	assert.Empty(t, r.RoomMembers("conv-a", ""))
}

func TestRoomMembersExceptFiltering(t *testing.T) {
	r := newTestRouter()
	user := testConn(t)
	admin := testConn(t)

	require.NoError(t, r.Bind(user, "conv-a"))
	r.SetAdmin(admin)
	require.NoError(t, r.JoinRoom(admin, "conv-a"))

	members := r.RoomMembers("conv-a", user.ID())
	require.Len(t, members, 1)
	assert.Equal(t, admin.ID(), members[0].ID())

	assert.Len(t, r.RoomMembers("conv-a", ""), 2, "empty except filters nobody")
}

func TestDropCleansEverything(t *testing.T) {
	r := newTestRouter()
	user := testConn(t)
	admin := testConn(t)

	require.NoError(t, r.Bind(user, "conv-a"))
	r.SetAdmin(admin)
	require.NoError(t, r.JoinRoom(admin, "conv-a"))
	require.NoError(t, r.JoinRoom(admin, "conv-b"))

	conversationID, wasBound := r.Drop(user)
	require.True(t, wasBound)
	assert.Equal(t, "conv-a", conversationID)

	_, bound := r.Binding(user)
	assert.False(t, bound)

	_, wasBound = r.Drop(admin)
	assert.False(t, wasBound, "administrators carry no binding")

	stats := r.Stats()
	assert.Equal(t, 0, stats["admin_connections"])
	assert.Equal(t, 0, stats["bound_users"])
	assert.Equal(t, 0, stats["open_rooms"], "empty rooms are reaped")
}

func TestDropIsIdempotent(t *testing.T) {
	r := newTestRouter()
	user := testConn(t)

	require.NoError(t, r.Bind(user, "conv-a"))

	_, wasBound := r.Drop(user)
	assert.True(t, wasBound)
	_, wasBound = r.Drop(user)
	assert.False(t, wasBound)
}

func TestStatsCountsState(t *testing.T) {
	r := newTestRouter()
	user := testConn(t)
	admin := testConn(t)

	require.NoError(t, r.Bind(user, "conv-a"))
	r.SetAdmin(admin)

	stats := r.Stats()
	assert.Equal(t, 1, stats["admin_connections"])
	assert.Equal(t, 1, stats["bound_users"])
	assert.Equal(t, 1, stats["open_rooms"])
}
