// Package chat orchestrates a conversation turn: resolve the conversation,
// retrieve context for the question, generate the answer (batch or
// streamed), and persist both sides of the exchange.
package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docsage/docsage/internal/ai"
	"github.com/docsage/docsage/internal/cache"
	"github.com/docsage/docsage/internal/retrieval"
	"github.com/docsage/docsage/internal/store"
)

// titleMaxLength bounds conversation titles derived from the first message.
const titleMaxLength = 50

// retrievalTTL is how long a query's retrieval result stays cached.
const retrievalTTL = time.Hour

// historyLimit is how many trailing messages feed the prompt history.
const historyLimit = 10

// ContextProvider supplies the retrieval context for a query.
type ContextProvider interface {
	GetContext(ctx context.Context, userID, query string, k int, documentIDs []string) (string, []retrieval.Source, error)
}

// StreamFunc receives answer chunks as they are generated, together with
// the id of the conversation they belong to. The id is resolved before the
// first chunk, so it is stable across a whole stream even when the turn
// starts a new conversation.
type StreamFunc func(ctx context.Context, conversationID, chunk string) error

// Result is the outcome of one conversation turn.
type Result struct {
	Conversation     *store.Conversation
	UserMessage      *store.Message
	AssistantMessage *store.Message
	Sources          []retrieval.Source
}

// Service runs conversation turns.
type Service struct {
	convs     store.ConversationStore
	retriever ContextProvider
	generator ai.Generator
	cache     cache.Cache
	topK      int
	logger    *slog.Logger
}

// NewService creates a chat service. cache may be nil to disable retrieval
// caching; a non-positive topK falls back to retrieval.DefaultTopK.
func NewService(convs store.ConversationStore, retriever ContextProvider, generator ai.Generator, c cache.Cache, topK int, logger *slog.Logger) *Service {
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		convs:     convs,
		retriever: retriever,
		generator: generator,
		cache:     c,
		topK:      topK,
		logger:    logger,
	}
}

// Message processes one turn and persists both messages atomically once the
// full answer exists. An empty conversationID starts a new conversation
// titled after the message.
func (s *Service) Message(ctx context.Context, userID, content, conversationID string, documentIDs []string) (*Result, error) {
	s.logger.Info("chat message started", "user_id", userID, "conversation_id", conversationID)

	conv, err := s.resolveConversation(ctx, userID, conversationID, content)
	if err != nil {
		return nil, err
	}

	contextText, sources, err := s.retrieveContext(ctx, userID, content, documentIDs)
	if err != nil {
		return nil, err
	}

	history, err := s.history(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, ai.Request{
		Context:  contextText,
		History:  history,
		Question: content,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	if err := s.convs.AppendTurn(ctx, conv.ID, content, answer); err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	s.logger.Info("chat message completed", "user_id", userID, "conversation_id", conv.ID)
	return &Result{
		Conversation:     conv,
		UserMessage:      &store.Message{ConversationID: conv.ID, Role: store.RoleUser, Content: content},
		AssistantMessage: &store.Message{ConversationID: conv.ID, Role: store.RoleAssistant, Content: answer},
		Sources:          sources,
	}, nil
}

// MessageStream processes one turn with a streamed answer. The user message
// is persisted before generation starts; the assistant message only after
// the stream completes, so an aborted stream leaves no partial answer.
func (s *Service) MessageStream(ctx context.Context, userID, content, conversationID string, documentIDs []string, callback StreamFunc) (*Result, error) {
	s.logger.Info("chat stream started", "user_id", userID, "conversation_id", conversationID)

	conv, err := s.resolveConversation(ctx, userID, conversationID, content)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.convs.AddMessage(ctx, conv.ID, store.RoleUser, content)
	if err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	contextText, sources, err := s.retrieveContext(ctx, userID, content, documentIDs)
	if err != nil {
		return nil, err
	}

	history, err := s.history(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.GenerateStream(ctx, ai.Request{
		Context:  contextText,
		History:  history,
		Question: content,
	}, func(ctx context.Context, chunk string) error {
		return callback(ctx, conv.ID, chunk)
	})
	if err != nil {
		return nil, fmt.Errorf("generating streamed answer: %w", err)
	}

	assistantMsg, err := s.convs.AddMessage(ctx, conv.ID, store.RoleAssistant, answer)
	if err != nil {
		return nil, fmt.Errorf("persisting assistant message: %w", err)
	}

	s.logger.Info("chat stream completed", "user_id", userID, "conversation_id", conv.ID)
	return &Result{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Sources:          sources,
	}, nil
}

// resolveConversation returns the user's existing conversation or starts a
// new one titled after the first message.
func (s *Service) resolveConversation(ctx context.Context, userID, conversationID, content string) (*store.Conversation, error) {
	if conversationID == "" {
		return s.convs.CreateConversation(ctx, userID, deriveTitle(content))
	}

	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

// retrieveContext returns cached retrieval output when available, computing
// and caching it otherwise. Cached entries are unfiltered; the document
// filter applies to sources on both paths so a filtered request can reuse
// an unfiltered entry.
func (s *Service) retrieveContext(ctx context.Context, userID, query string, documentIDs []string) (string, []retrieval.Source, error) {
	type cached struct {
		Context string             `json:"context"`
		Sources []retrieval.Source `json:"sources"`
	}

	key := retrievalCacheKey(userID, query)

	if s.cache != nil {
		var hit cached
		err := s.cache.Get(ctx, key, &hit)
		if err == nil {
			return hit.Context, filterSources(hit.Sources, documentIDs), nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("retrieval cache read failed", "error", err)
		}
	}

	contextText, sources, err := s.retriever.GetContext(ctx, userID, query, s.topK, nil)
	if err != nil {
		return "", nil, fmt.Errorf("retrieving context: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cached{Context: contextText, Sources: sources}, retrievalTTL); err != nil {
			s.logger.Warn("retrieval cache write failed", "error", err)
		}
	}

	return contextText, filterSources(sources, documentIDs), nil
}

func retrievalCacheKey(userID, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("retrieval:%s:%s", userID, hex.EncodeToString(sum[:]))
}

func filterSources(sources []retrieval.Source, documentIDs []string) []retrieval.Source {
	if len(documentIDs) == 0 {
		return sources
	}

	allowed := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = struct{}{}
	}

	out := make([]retrieval.Source, 0, len(sources))
	for _, src := range sources {
		if _, ok := allowed[src.DocumentID]; ok {
			out = append(out, src)
		}
	}
	return out
}

// history returns the prompt history: the user's questions from the last
// ten messages, oldest first.
func (s *Service) history(ctx context.Context, conversationID string) ([]ai.Turn, error) {
	msgs, err := s.convs.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}

	var turns []ai.Turn
	for _, msg := range msgs {
		if msg.Role == store.RoleUser {
			turns = append(turns, ai.Turn{Question: msg.Content})
		}
	}
	return turns, nil
}

// deriveTitle shortens the first message into a conversation title.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxLength {
		return content
	}
	return string(runes[:titleMaxLength]) + "..."
}

// CreateConversation starts an empty conversation with an explicit title.
func (s *Service) CreateConversation(ctx context.Context, userID, title string) (*store.Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}
	return s.convs.CreateConversation(ctx, userID, title)
}

// GetConversation returns the user's conversation or store.ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently
// updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	return s.convs.ListConversations(ctx, userID)
}

// ListMessages returns the full message history of the user's conversation.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]store.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.convs.ListMessages(ctx, conversationID)
}

// DeleteConversation removes the user's conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.convs.DeleteConversation(ctx, conversationID)
}
