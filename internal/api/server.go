// Package api serves the read-side HTTP surface: historical conversation
// browsing backed purely by the message store. No core logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"relaychat/pkg/interfaces"
	"relaychat/pkg/types"
)

// StatsSource decouples the server from the concrete router and registry.
type StatsSource interface {
	Stats() map[string]int
}

// Server handles HTTP requests with JSON and CORS middleware applied to
// every route.
type Server struct {
	store         interfaces.MessageStore
	routerStats   StatsSource
	registryStats StatsSource
	mux           *http.ServeMux
	logger        *zap.Logger
}

// NewServer wires routes.
func NewServer(store interfaces.MessageStore, routerStats, registryStats StatsSource, logger *zap.Logger) *Server {
	s := &Server{
		store:         store,
		routerStats:   routerStats,
		registryStats: registryStats,
		mux:           http.NewServeMux(),
		logger:        logger.With(zap.String("component", "api")),
	}

	s.mux.Handle("/api/conversations", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleConversations))))
	s.mux.Handle("/api/conversations/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleConversationMessages))))
	s.mux.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleHealth))))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ConversationWithMessages is the listing shape for the admin history view.
type ConversationWithMessages struct {
	Conversation *types.Conversation `json:"conversation"`
	Messages     []*types.Message    `json:"messages"`
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Router    map[string]int `json:"router"`
	Registry  map[string]int `json:"registry"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// handleConversations lists every stored conversation with its messages.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("conversation listing failed", zap.Error(err))
		s.sendError(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}

	result := make([]ConversationWithMessages, 0, len(conversations))
	for _, conv := range conversations {
		messages, err := s.store.ListMessages(r.Context(), conv.ID)
		if err != nil {
			s.logger.Error("message listing failed",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
			s.sendError(w, "Failed to list messages", http.StatusInternalServerError)
			return
		}
		result = append(result, ConversationWithMessages{Conversation: conv, Messages: messages})
	}

	s.sendJSON(w, result)
}

// handleConversationMessages returns one conversation's messages by public
// identifier. Unknown identifiers yield an empty array, not an error.
func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "messages" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	conversationID := parts[0]

	messages, err := s.store.ListMessages(r.Context(), conversationID)
	if err != nil && !errors.Is(err, interfaces.ErrConversationNotFound) {
		s.logger.Error("message listing failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		s.sendError(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	s.sendJSON(w, messages)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	database := "connected"
	if err := s.store.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		database = err.Error()
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  database,
		Router:    s.routerStats.Stats(),
		Registry:  s.registryStats.Stats(),
	}

	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.sendJSON(w, resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.sendJSON(w, ErrorResponse{Error: message, Code: code})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
