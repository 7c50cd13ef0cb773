package vectorindex

import (
	"log/slog"
	"path/filepath"
	"sync"
)

// Registry hands out one Index per user, loading it from disk on first
// access and keeping it cached for the process lifetime.
type Registry struct {
	mu      sync.Mutex
	indexes map[string]*Index

	baseDir   string
	dimension int
	embed     EmbedFunc
	logger    *slog.Logger
}

// NewRegistry creates a registry rooted at baseDir. Each user's index lives
// in baseDir/<userID>/.
func NewRegistry(baseDir string, dimension int, embed EmbedFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		indexes:   make(map[string]*Index),
		baseDir:   baseDir,
		dimension: dimension,
		embed:     embed,
		logger:    logger,
	}
}

// GetOrCreate returns the user's index, loading or initializing it on first
// access. Subsequent calls return the same instance.
func (r *Registry) GetOrCreate(userID string) (*Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.indexes[userID]; ok {
		return idx, nil
	}

	idx, err := Open(userID, filepath.Join(r.baseDir, userID), r.dimension, r.embed, r.logger)
	if err != nil {
		return nil, err
	}

	r.indexes[userID] = idx
	return idx, nil
}

// Evict drops the user's index from the in-memory cache, reporting whether
// one was cached. Artifacts on disk are untouched; the next GetOrCreate
// reloads them.
func (r *Registry) Evict(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.indexes[userID]
	delete(r.indexes, userID)
	return ok
}
