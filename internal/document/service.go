// Package document runs the ingestion pipeline: validate an upload, store
// the file, extract its text, chunk it, embed the chunks, and add the
// vectors to the owner's index. The document record tracks progress
// through the pending, processing, completed, and failed statuses.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/docsage/docsage/internal/ai"
	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/store"
	"github.com/docsage/docsage/internal/vectorindex"
)

// Sentinel errors for upload validation and processing.
var (
	// ErrUnsupportedType indicates the file extension has no parser.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmptyDocument indicates parsing and chunking produced no text.
	ErrEmptyDocument = errors.New("no text content found in document")
)

// Indexer is the slice of the vector index registry ingestion needs.
type Indexer interface {
	GetOrCreate(userID string) (*vectorindex.Index, error)
}

// Service orchestrates document ingestion and deletion.
type Service struct {
	docs      store.DocumentStore
	indexes   Indexer
	embedder  ai.Embedder
	splitter  chunker.Splitter
	uploadDir string
	logger    *slog.Logger
}

// NewService creates the ingestion service. Uploaded files land under
// uploadDir/<userID>/.
func NewService(docs store.DocumentStore, indexes Indexer, embedder ai.Embedder, splitter chunker.Splitter, uploadDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:      docs,
		indexes:   indexes,
		embedder:  embedder,
		splitter:  splitter,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Upload validates, stores, and processes an uploaded file. The returned
// record reflects the outcome: completed with a chunk count, or failed
// with the processing error recorded. Processing failures do not fail the
// upload itself.
func (s *Service) Upload(ctx context.Context, userID, filename, contentType string, content []byte) (*store.Document, error) {
	s.logger.Info("document upload started", "user_id", userID, "filename", filename)

	fileType, ok := FileType(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}

	path, err := s.saveFile(userID, filename, content)
	if err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}

	doc := &store.Document{
		UserID:      userID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		FilePath:    path,
		Status:      store.StatusProcessing,
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("creating document record: %w", err)
	}

	chunkCount, procErr := s.process(ctx, userID, doc.ID, path, fileType)
	if procErr != nil {
		s.logger.Error("document processing failed",
			"user_id", userID, "document_id", doc.ID, "error", procErr)
		if err := s.docs.UpdateDocumentStatus(ctx, doc.ID, store.StatusFailed, procErr.Error(), 0); err != nil {
			return nil, fmt.Errorf("recording processing failure: %w", err)
		}
	} else {
		s.logger.Info("document processed",
			"user_id", userID, "document_id", doc.ID, "chunks", chunkCount)
		if err := s.docs.UpdateDocumentStatus(ctx, doc.ID, store.StatusCompleted, "", chunkCount); err != nil {
			return nil, fmt.Errorf("recording completion: %w", err)
		}
	}

	return s.docs.GetDocument(ctx, doc.ID)
}

// process extracts, chunks, embeds, and indexes the file's text,
// returning the chunk count.
func (s *Service) process(ctx context.Context, userID, documentID, path, fileType string) (int, error) {
	text, err := Parse(path, fileType)
	if err != nil {
		return 0, err
	}

	chunks := s.splitter.Chunk(chunker.Normalize(text))
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	idx, err := s.indexes.GetOrCreate(userID)
	if err != nil {
		return 0, fmt.Errorf("opening index: %w", err)
	}

	documentIDs := make([]string, len(chunks))
	for i := range documentIDs {
		documentIDs[i] = documentID
	}

	if _, err := idx.Add(ctx, vectors, chunks, documentIDs); err != nil {
		return 0, fmt.Errorf("indexing vectors: %w", err)
	}

	return len(chunks), nil
}

// saveFile writes the upload under the user's directory with a
// collision-proof name.
func (s *Service) saveFile(userID, filename string, content []byte) (string, error) {
	dir := filepath.Join(s.uploadDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s_%s",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
		filepath.Base(filename))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Get returns the user's document or store.ErrNotFound. Ownership is part
// of identity: another user's document id behaves like a missing one.
func (s *Service) Get(ctx context.Context, userID, documentID string) (*store.Document, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]store.Document, error) {
	return s.docs.ListDocuments(ctx, userID)
}

// Delete removes the document record and, best effort, its vectors and
// stored file. Vector or file cleanup failures are logged but never block
// the record's deletion.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}

	if idx, err := s.indexes.GetOrCreate(userID); err != nil {
		s.logger.Warn("vector deletion skipped",
			"document_id", documentID, "error", err)
	} else if _, err := idx.DeleteByDocument(ctx, documentID); err != nil {
		s.logger.Warn("vector deletion failed",
			"document_id", documentID, "error", err)
	}

	if err := s.docs.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document record: %w", err)
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("file deletion failed",
				"file_path", doc.FilePath, "error", err)
		}
	}

	return nil
}
