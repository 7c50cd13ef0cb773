package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements both stores on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ ConversationStore = (*Postgres)(nil)
	_ DocumentStore     = (*Postgres)(nil)
)

// NewPostgres wraps an existing pool. The caller owns the pool's lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	conv := Conversation{ID: uuid.NewString(), UserID: userID, Title: title}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, user_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		conv.ID, userID, title,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return &conv, nil
}

func (p *Postgres) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (p *Postgres) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id = $1
		 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteConversation(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	msg := Message{ID: uuid.NewString(), ConversationID: conversationID, Role: role, Content: content}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		msg.ID, conversationID, role, content,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := p.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
		return nil, fmt.Errorf("touching conversation %s: %w", conversationID, err)
	}
	return &msg, nil
}

func (p *Postgres) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AppendTurn inserts both messages in one transaction so a failure cannot
// leave a question without its answer.
func (p *Postgres) AppendTurn(ctx context.Context, conversationID, question, answer string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range []struct{ role, content string }{
		{RoleUser, question},
		{RoleAssistant, answer},
	} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, role, content)
			 VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), conversationID, m.role, m.content); err != nil {
			return fmt.Errorf("inserting %s message: %w", m.role, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("touching conversation %s: %w", conversationID, err)
	}

	return tx.Commit(ctx)
}

func (p *Postgres) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO documents (id, user_id, filename, content_type, size_bytes, file_path, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		doc.ID, doc.UserID, doc.Filename, doc.ContentType, doc.SizeBytes, doc.FilePath, doc.Status,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (p *Postgres) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, filename, content_type, size_bytes, file_path,
		        status, coalesce(error, ''), chunk_count, created_at, updated_at
		 FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.ContentType, &doc.SizeBytes,
		&doc.FilePath, &doc.Status, &doc.Error, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", id, err)
	}
	return &doc, nil
}

func (p *Postgres) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, user_id, filename, content_type, size_bytes, file_path,
		        status, coalesce(error, ''), chunk_count, created_at, updated_at
		 FROM documents WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.ContentType, &doc.SizeBytes,
			&doc.FilePath, &doc.Status, &doc.Error, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateDocumentStatus(ctx context.Context, id, status, errMsg string, chunkCount int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE documents
		 SET status = $2, error = nullif($3, ''), chunk_count = $4, updated_at = now()
		 WHERE id = $1`,
		id, status, errMsg, chunkCount)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteDocument(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
