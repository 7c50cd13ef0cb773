// Package store persists conversations, messages, and document records.
//
// Two implementations back the same interfaces: Postgres (pgx) for
// production and Memory for tests and local development.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Document processing statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Conversation is a chat thread owned by a user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one utterance in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document is the record of an uploaded file and its processing state.
// Error is set only when Status is failed; ChunkCount only once completed.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	FilePath    string    `json:"-"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, conversationID, role, content string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// AppendTurn stores a user message and the assistant's reply as one
	// atomic unit.
	AppendTurn(ctx context.Context, conversationID, question, answer string) error
}

// DocumentStore persists document records.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, userID string) ([]Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status, errMsg string, chunkCount int) error
	DeleteDocument(ctx context.Context, id string) error
}
