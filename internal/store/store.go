package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"relaychat/pkg/interfaces"
	"relaychat/pkg/types"
)

// Manager implements interfaces.MessageStore on SQLite.
//
// All writes flow through a single goroutine; SQLite allows only one
// writer and funneling writes avoids busy-timeout churn under concurrent
// submissions. Reads go straight to the pool.
type Manager struct {
	db       *sql.DB
	logger   *zap.Logger
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Options configures the store connection.
type Options struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
}

// NewManager opens the database, applies pragmas, creates the schema if
// missing, and starts the write loop.
func NewManager(opts Options, logger *zap.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", opts.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m := &Manager{
		db:       db,
		logger:   logger.With(zap.String("component", "store")),
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeCh:
			err := op.fn(m.db)
			if err != nil {
				// Retry once after a pause; SQLite write failures here
				// are almost always transient lock contention.
				m.logger.Warn("write failed, retrying", zap.Error(err))
				time.Sleep(5 * time.Second)
				err = op.fn(m.db)
				if err != nil {
					m.logger.Error("write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(fn func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeCh <- writeOp{fn: fn, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// CreateConversation inserts a conversation row, tolerating ids that
// already exist. Clients may present identifiers the store has never seen
// (or has lost); re-creation is expected, not an error.
func (m *Manager) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR IGNORE INTO conversations (id, remote_addr, client_info, created_at)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			conv.ID,
			conv.RemoteAddr,
			conv.ClientInfo,
			conv.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		return nil
	})
}

// GetConversation returns interfaces.ErrConversationNotFound for unknown ids.
func (m *Manager) GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error) {
	query := `
		SELECT id, remote_addr, client_info, created_at
		FROM conversations
		WHERE id = ?
	`

	var conv types.Conversation
	err := m.db.QueryRowContext(ctx, query, conversationID).Scan(
		&conv.ID,
		&conv.RemoteAddr,
		&conv.ClientInfo,
		&conv.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	return &conv, nil
}

// ListConversations returns all stored conversations, newest first.
func (m *Manager) ListConversations(ctx context.Context) ([]*types.Conversation, error) {
	query := `
		SELECT id, remote_addr, client_info, created_at
		FROM conversations
		ORDER BY created_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversations := []*types.Conversation{}
	for rows.Next() {
		var conv types.Conversation
		if err := rows.Scan(&conv.ID, &conv.RemoteAddr, &conv.ClientInfo, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	return conversations, nil
}

// ListSummaries returns every conversation with its latest message content
// and activity timestamp, most recently active first. Conversations with
// no messages fall back to their creation time and an empty preview.
func (m *Manager) ListSummaries(ctx context.Context) ([]*types.ConversationSummary, error) {
	query := `
		SELECT c.id, c.remote_addr, c.client_info, c.created_at,
			COALESCE((SELECT msg.content FROM messages msg
				WHERE msg.conversation_id = c.id
				ORDER BY msg.created_at DESC LIMIT 1), ''),
			COALESCE((SELECT msg.created_at FROM messages msg
				WHERE msg.conversation_id = c.id
				ORDER BY msg.created_at DESC LIMIT 1), c.created_at)
		FROM conversations c
		ORDER BY 6 DESC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []*types.ConversationSummary{}
	for rows.Next() {
		var s types.ConversationSummary
		if err := rows.Scan(
			&s.Conversation.ID,
			&s.Conversation.RemoteAddr,
			&s.Conversation.ClientInfo,
			&s.Conversation.CreatedAt,
			&s.LastContent,
			&s.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	return summaries, nil
}

// SaveMessage persists one message.
func (m *Manager) SaveMessage(ctx context.Context, msg *types.Message) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO messages (id, conversation_id, role, content, automated, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			msg.ID,
			msg.ConversationID,
			msg.Role,
			msg.Content,
			msg.Automated,
			msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// ListMessages returns a conversation's messages in insertion order.
func (m *Manager) ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, automated, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

// RecentMessages returns up to limit of the newest messages, oldest of
// the window first.
func (m *Manager) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, automated, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query is newest-first; callers want chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]*types.Message, error) {
	messages := []*types.Message{}
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.Automated,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// HealthCheck validates connectivity and that the schema is present.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	for _, table := range []string{"conversations", "messages"} {
		var name string
		err := m.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			return fmt.Errorf("required table %s missing: %w", table, err)
		}
	}

	return nil
}

// Close drains the write loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
