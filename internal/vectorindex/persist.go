package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Storage artifact names inside a user's index directory.
const (
	vectorsFile  = "index.bin"
	metadataFile = "metadata.json"
	lockFile     = ".index.lock"
)

// save writes both artifacts atomically enough for a crash between the two
// writes to be caught by the count check in load. A file lock guards against
// a second process writing the same directory. Caller holds the write lock.
func (idx *Index) save() error {
	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	lock := flock.New(filepath.Join(idx.dir, lockFile))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquiring index lock: %w", err)
	}
	defer lock.Unlock()

	if err := idx.writeVectors(); err != nil {
		return err
	}
	return idx.writeMetadata()
}

func (idx *Index) writeVectors() error {
	buf := make([]byte, 8+len(idx.vectors)*idx.dimension*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(idx.dimension))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(idx.vectors)))

	off := 8
	for _, vec := range idx.vectors {
		for _, f := range vec {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
			off += 4
		}
	}

	path := filepath.Join(idx.dir, vectorsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing vectors file: %w", err)
	}
	return nil
}

func (idx *Index) writeMetadata() error {
	data, err := json.Marshal(idx.metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	path := filepath.Join(idx.dir, metadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing metadata file: %w", err)
	}
	return nil
}

// load reads both artifacts back. A missing vectors file means a fresh
// index. Any structural problem — short file, dimension mismatch, vector
// and metadata counts disagreeing — is returned as an error so the caller
// can reset to empty.
func (idx *Index) load() error {
	lock := flock.New(filepath.Join(idx.dir, lockFile))
	if err := lock.RLock(); err == nil {
		defer lock.Unlock()
	}

	buf, err := os.ReadFile(filepath.Join(idx.dir, vectorsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading vectors: %w", err)
	}
	if len(buf) < 8 {
		return fmt.Errorf("vectors file truncated: %d bytes", len(buf))
	}

	dim := int(binary.LittleEndian.Uint32(buf[0:4]))
	count := int(binary.LittleEndian.Uint32(buf[4:8]))
	if dim != idx.dimension {
		return fmt.Errorf("stored dimension %d does not match configured %d", dim, idx.dimension)
	}
	if want := 8 + count*dim*4; len(buf) != want {
		return fmt.Errorf("vectors file has %d bytes, want %d for %d vectors", len(buf), want, count)
	}

	vectors := make([][]float32, count)
	off := 8
	for i := range vectors {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		vectors[i] = vec
	}

	data, err := os.ReadFile(filepath.Join(idx.dir, metadataFile))
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}

	var metadata []Segment
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("decoding metadata: %w", err)
	}
	if len(metadata) != count {
		return fmt.Errorf("metadata has %d segments, vectors file has %d", len(metadata), count)
	}

	idx.vectors = vectors
	idx.metadata = metadata
	return nil
}
