package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process implementation of both stores.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]Message // keyed by conversation id
	documents     map[string]Document
	now           func() time.Time
}

var (
	_ ConversationStore = (*Memory)(nil)
	_ DocumentStore     = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		documents:     make(map[string]Document),
		now:           time.Now,
	}
}

func (m *Memory) CreateConversation(_ context.Context, userID, title string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv
	return &conv, nil
}

func (m *Memory) GetConversation(_ context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &conv, nil
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Conversation
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *Memory) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) AddMessage(_ context.Context, conversationID, role, content string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.addMessageLocked(conversationID, role, content)
}

func (m *Memory) addMessageLocked(conversationID, role, content string) (*Message, error) {
	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      m.now().UTC(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	conv.UpdatedAt = msg.CreatedAt
	m.conversations[conversationID] = conv
	return &msg, nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	msgs := m.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) AppendTurn(_ context.Context, conversationID, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.addMessageLocked(conversationID, RoleUser, question); err != nil {
		return err
	}
	_, err := m.addMessageLocked(conversationID, RoleAssistant, answer)
	return err
}

func (m *Memory) CreateDocument(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := m.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	m.documents[doc.ID] = *doc
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (m *Memory) ListDocuments(_ context.Context, userID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.documents {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateDocumentStatus(_ context.Context, id, status, errMsg string, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return ErrNotFound
	}

	doc.Status = status
	doc.Error = errMsg
	doc.ChunkCount = chunkCount
	doc.UpdatedAt = m.now().UTC()
	m.documents[id] = doc
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return ErrNotFound
	}
	delete(m.documents, id)
	return nil
}
