package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/docsage/docsage/internal/document"
	"github.com/docsage/docsage/internal/store"
)

// maxUploadSize caps multipart uploads at 50 MiB.
const maxUploadSize = 50 << 20

// DocumentHandler handles document endpoints.
type DocumentHandler struct {
	svc    *document.Service
	logger *slog.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(svc *document.Service, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents/upload", h.upload)
	mux.HandleFunc("GET /api/v1/documents", h.list)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.get)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.delete)
}

func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("reading upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read upload")
		return
	}

	doc, err := h.svc.Upload(r.Context(), user, header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		if errors.Is(err, document.ErrUnsupportedType) {
			writeError(w, http.StatusBadRequest, "unsupported_type", err.Error())
			return
		}
		h.logger.Error("document upload failed", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to upload document")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	docs, err := h.svc.List(r.Context(), user)
	if err != nil {
		h.logger.Error("listing documents failed", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		h.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), user, r.PathValue("id")); err != nil {
		h.writeDocumentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) writeDocumentError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	h.logger.Error("document request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "failed to process document request")
}
