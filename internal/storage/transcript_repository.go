package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Conversation is the durable header of a chat
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	ModelID   string    `db:"model_id" json:"model"`
	Provider  string    `db:"provider" json:"provider"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Message is one persisted chat message
type Message struct {
	ID              string           `db:"id" json:"id"`
	ConversationID  string           `db:"conversation_id" json:"-"`
	Role            string           `db:"role" json:"role"`
	Content         string           `db:"content" json:"content"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	ToolInvocations []ToolInvocation `db:"-" json:"toolInvocations,omitempty"`
}

// ToolInvocation is a tool call attached to an assistant message
type ToolInvocation struct {
	ID        string  `db:"id" json:"toolCallId"`
	MessageID string  `db:"message_id" json:"-"`
	Position  int     `db:"position" json:"-"`
	ToolName  string  `db:"tool_name" json:"toolName"`
	Arguments JSONMap `db:"arguments" json:"args"`
	Result    JSONMap `db:"result" json:"result,omitempty"`
}

// Turn is everything one completed chat request adds to a conversation.
// Messages already stored (same id) are left untouched.
type Turn struct {
	ConversationID string
	Title          string // used only when the conversation is new
	ModelID        string
	Provider       string
	Messages       []Message
	At             time.Time
}

// TranscriptRepository handles conversation and message persistence
type TranscriptRepository struct {
	db *DB
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// SaveTurn writes a turn in one transaction: the conversation is created or
// its updated_at refreshed, then messages and their tool invocations are inserted.
func (r *TranscriptRepository) SaveTurn(ctx context.Context, turn Turn) error {
	if turn.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	at := turn.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsertConversation := tx.Rebind(`
		INSERT INTO conversations (id, title, model_id, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			model_id = excluded.model_id,
			provider = excluded.provider,
			updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, upsertConversation,
		turn.ConversationID, turn.Title, turn.ModelID, turn.Provider, at, at); err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	insertMessage := tx.Rebind(`
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	insertInvocation := tx.Rebind(`
		INSERT INTO tool_invocations (id, message_id, position, tool_name, arguments, result)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id, id) DO NOTHING
	`)

	for _, msg := range turn.Messages {
		created := msg.CreatedAt
		if created.IsZero() {
			created = at
		}
		res, err := tx.ExecContext(ctx, insertMessage, msg.ID, turn.ConversationID, msg.Role, msg.Content, created.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		for i, inv := range msg.ToolInvocations {
			if _, err := tx.ExecContext(ctx, insertInvocation,
				inv.ID, msg.ID, i, inv.ToolName, inv.Arguments, inv.Result); err != nil {
				return fmt.Errorf("failed to insert tool invocation %s: %w", inv.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}

	r.db.conversationCache.Delete(turn.ConversationID)
	return nil
}

// GetConversation retrieves a conversation header by ID
func (r *TranscriptRepository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if cached, ok := r.db.conversationCache.Get(id); ok {
		c := *cached
		return &c, nil
	}

	var conv Conversation
	query := r.db.conn.Rebind(`
		SELECT id, title, model_id, provider, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`)
	if err := r.db.conn.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	cached := conv
	r.db.conversationCache.Set(id, &cached)
	return &conv, nil
}

// ListConversations returns the most recently updated conversations first
func (r *TranscriptRepository) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.db.conn.Rebind(`
		SELECT id, title, model_id, provider, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, id
		LIMIT ?
	`)
	convs := []Conversation{}
	if err := r.db.conn.SelectContext(ctx, &convs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// ListMessages returns the messages of a conversation in order, with their
// tool invocations attached
func (r *TranscriptRepository) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if _, err := r.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	msgs := []Message{}
	query := r.db.conn.Rebind(`
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`)
	if err := r.db.conn.SelectContext(ctx, &msgs, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var invs []ToolInvocation
	query = r.db.conn.Rebind(`
		SELECT t.id, t.message_id, t.position, t.tool_name, t.arguments, t.result
		FROM tool_invocations t
		JOIN messages m ON m.id = t.message_id
		WHERE m.conversation_id = ?
		ORDER BY t.message_id, t.position
	`)
	if err := r.db.conn.SelectContext(ctx, &invs, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list tool invocations: %w", err)
	}

	byMessage := make(map[string][]ToolInvocation, len(invs))
	for _, inv := range invs {
		byMessage[inv.MessageID] = append(byMessage[inv.MessageID], inv)
	}
	for i := range msgs {
		msgs[i].ToolInvocations = byMessage[msgs[i].ID]
	}

	return msgs, nil
}

// DeleteConversation removes a conversation and everything attached to it
func (r *TranscriptRepository) DeleteConversation(ctx context.Context, id string) error {
	query := r.db.conn.Rebind(`DELETE FROM conversations WHERE id = ?`)
	res, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	r.db.conversationCache.Delete(id)

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}
