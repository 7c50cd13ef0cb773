package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/docsage/docsage/internal/chat"
	"github.com/docsage/docsage/internal/retrieval"
	"github.com/docsage/docsage/internal/store"
)

// ChatHandler handles chat and conversation endpoints.
type ChatHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat/message", h.message)
	mux.HandleFunc("POST /api/v1/chat/stream", h.stream)
	mux.HandleFunc("GET /api/v1/chat/conversations", h.listConversations)
	mux.HandleFunc("POST /api/v1/chat/conversations", h.createConversation)
	mux.HandleFunc("GET /api/v1/chat/conversations/{id}", h.conversationMessages)
	mux.HandleFunc("DELETE /api/v1/chat/conversations/{id}", h.deleteConversation)
}

type chatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
}

type chatResponse struct {
	Message        string             `json:"message"`
	ConversationID string             `json:"conversation_id"`
	Sources        []retrieval.Source `json:"sources"`
}

func (h *ChatHandler) message(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	result, err := h.svc.Message(r.Context(), user, req.Message, req.ConversationID, req.DocumentIDs)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Message:        result.AssistantMessage.Content,
		ConversationID: result.Conversation.ID,
		Sources:        sourcesOrEmpty(result.Sources),
	})
}

// streamEvent is one SSE payload. Type is "chunk" while tokens arrive,
// "done" when the answer is complete, or "error".
type streamEvent struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Tells nginx not to buffer the stream.
	w.Header().Set("X-Accel-Buffering", "no")

	send := func(ev streamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := h.svc.MessageStream(r.Context(), user, req.Message, req.ConversationID, req.DocumentIDs,
		func(_ context.Context, conversationID, chunk string) error {
			return send(streamEvent{Type: "chunk", Content: chunk, ConversationID: conversationID})
		})
	if err != nil {
		h.logger.Error("chat stream failed", "user_id", user, "error", err)
		_ = send(streamEvent{Type: "error", Error: "failed to generate response"})
		return
	}

	_ = send(streamEvent{Type: "done", ConversationID: result.Conversation.ID})
}

type createConversationRequest struct {
	Title string `json:"title,omitempty"`
}

func (h *ChatHandler) createConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	conv, err := h.svc.CreateConversation(r.Context(), user, req.Title)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ChatHandler) listConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	convs, err := h.svc.ListConversations(r.Context(), user)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type conversationMessagesResponse struct {
	Conversation *store.Conversation `json:"conversation"`
	Messages     []store.Message     `json:"messages"`
}

func (h *ChatHandler) conversationMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	conv, err := h.svc.GetConversation(r.Context(), user, id)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	msgs, err := h.svc.ListMessages(r.Context(), user, id)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	writeJSON(w, http.StatusOK, conversationMessagesResponse{
		Conversation: conv,
		Messages:     msgs,
	})
}

func (h *ChatHandler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteConversation(r.Context(), user, r.PathValue("id")); err != nil {
		h.writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	h.logger.Error("chat request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "failed to process chat request")
}

func sourcesOrEmpty(sources []retrieval.Source) []retrieval.Source {
	if sources == nil {
		return []retrieval.Source{}
	}
	return sources
}
