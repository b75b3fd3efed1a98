package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relaychat/pkg/types"
)

type fakeStore struct {
	conversations []*types.Conversation
	messages      map[string][]*types.Message
	healthErr     error
}

func (f *fakeStore) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	return nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) ListConversations(ctx context.Context) ([]*types.Conversation, error) {
	return f.conversations, nil
}

func (f *fakeStore) ListSummaries(ctx context.Context) ([]*types.ConversationSummary, error) {
	return nil, nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *types.Message) error { return nil }

func (f *fakeStore) ListMessages(ctx context.Context, id string) ([]*types.Message, error) {
	return f.messages[id], nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, id string, limit int) ([]*types.Message, error) {
	return nil, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeStore) Close() error                          { return nil }

type fakeStats map[string]int

func (f fakeStats) Stats() map[string]int { return f }

func newTestServer(store *fakeStore) *Server {
	return NewServer(store, fakeStats{"bound_users": 2}, fakeStats{"active": 1}, zap.NewNop())
}

func TestListConversationsWithMessages(t *testing.T) {
	store := &fakeStore{
		conversations: []*types.Conversation{
			{ID: "conv-1", CreatedAt: time.Now()},
		},
		messages: map[string][]*types.Message{
			"conv-1": {{ID: "msg-1", ConversationID: "conv-1", Role: types.RoleUser, Content: "hello"}},
		},
	}
	server := newTestServer(store)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var result []ConversationWithMessages
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "conv-1", result[0].Conversation.ID)
	require.Len(t, result[0].Messages, 1)
	assert.Equal(t, "hello", result[0].Messages[0].Content)
}

func TestListConversationsEmpty(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestConversationMessages(t *testing.T) {
	store := &fakeStore{
		messages: map[string][]*types.Message{
			"conv-1": {{ID: "msg-1", ConversationID: "conv-1", Role: types.RoleAdmin, Content: "hi"}},
		},
	}
	server := newTestServer(store)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var messages []*types.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Content)
}

func TestConversationMessagesUnknownIDIsEmptyArray(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/no-such/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestConversationMessagesBadPath(t *testing.T) {
	server := newTestServer(&fakeStore{})

	for _, path := range []string{
		"/api/conversations/conv-1",
		"/api/conversations/conv-1/other",
		"/api/conversations//messages",
	} {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/conversations", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusMethodNotAllowed, errResp.Code)
}

func TestOptionsPreflight(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/conversations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestHealthHealthy(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Database)
	assert.Equal(t, 2, health.Router["bound_users"])
	assert.Equal(t, 1, health.Registry["active"])
}

func TestHealthDegraded(t *testing.T) {
	server := newTestServer(&fakeStore{healthErr: errors.New("database locked")})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "database locked", health.Database)
}
