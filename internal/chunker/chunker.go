// Package chunker splits extracted document text into bounded-size segments
// for embedding and indexing.
//
// Two strategies are available:
//   - recursive: splits on an ordered list of separators, packing parts
//     greedily up to the size limit (the default).
//   - semantic: splits on sentence boundaries and keeps a short overlap
//     between consecutive chunks.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Strategy selects the splitting algorithm.
type Strategy string

const (
	// StrategyRecursive is the default separator-based splitter.
	StrategyRecursive Strategy = "recursive"

	// StrategySemantic splits on sentence boundaries with overlap.
	StrategySemantic Strategy = "semantic"
)

// Default chunking parameters, matching the ingestion pipeline defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinSentences = 2
)

// ErrInvalidChunkSize indicates a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Splitter turns raw text into a finite sequence of chunks.
// Each call re-splits from scratch; implementations keep no per-call state.
type Splitter interface {
	Chunk(text string) []string
}

// Config holds chunking parameters.
type Config struct {
	Strategy     Strategy // empty = recursive
	ChunkSize    int      // maximum chunk length in bytes (0 = DefaultChunkSize)
	ChunkOverlap int      // overlap between chunks (semantic strategy only)
	MinSentences int      // semantic strategy: minimum sentences per chunk
}

// New constructs the splitter selected by cfg.Strategy.
// Unknown strategies are a construction-time error, not a runtime fallback.
func New(cfg Config) (Splitter, error) {
	switch cfg.Strategy {
	case "", StrategyRecursive:
		return NewRecursive(cfg)
	case StrategySemantic:
		return NewSemantic(cfg)
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", cfg.Strategy)
	}
}

// Recursive is the default separator-based splitter.
//
// It tries separators in order (paragraph break, line break, sentence
// punctuation, clause punctuation, space) and greedily packs the resulting
// parts into chunks of at most ChunkSize bytes. The empty separator is the
// last resort: a hard cut at the size limit, which guarantees termination.
type Recursive struct {
	chunkSize    int
	chunkOverlap int // declared for parity with the semantic strategy; the recursive path does not apply it
	separators   []string
}

// defaultSeparators orders split points from strongest to weakest boundary.
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " ", ""}

// NewRecursive creates a recursive splitter.
func NewRecursive(cfg Config) (*Recursive, error) {
	size := cfg.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}

	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}

	return &Recursive{
		chunkSize:    size,
		chunkOverlap: overlap,
		separators:   defaultSeparators,
	}, nil
}

// Chunk splits text into chunks of at most ChunkSize bytes.
// Empty or whitespace-only input yields an empty sequence.
func (c *Recursive) Chunk(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var chunks []string
	c.split(text, &chunks)

	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// split appends chunks of text to out, recursing into oversized parts.
func (c *Recursive) split(text string, out *[]string) {
	if len(text) <= c.chunkSize {
		*out = append(*out, text)
		return
	}

	for _, sep := range c.separators {
		if sep == "" {
			// Hard cut at the size limit, backing up to a rune boundary so
			// multi-byte characters are never split.
			cut := c.chunkSize
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = c.chunkSize
			}
			*out = append(*out, text[:cut])
			if rest := text[cut:]; rest != "" {
				c.split(rest, out)
			}
			return
		}

		if !strings.Contains(text, sep) {
			continue
		}

		parts := strings.Split(text, sep)
		current := ""

		for _, part := range parts {
			test := part
			if current != "" {
				test = current + sep + part
			}

			if len(test) <= c.chunkSize {
				current = test
				continue
			}

			if current != "" {
				*out = append(*out, current)
			}
			if len(part) > c.chunkSize {
				c.split(part, out)
				current = ""
			} else {
				current = part
			}
		}

		if current != "" {
			*out = append(*out, current)
		}
		return
	}
}

var (
	runWhitespaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesRe    = regexp.MustCompile(`\n[ \t]*\n[\s]*`)
)

// Normalize collapses runs of whitespace to single spaces, collapses
// multiple blank lines to exactly one blank line, and trims the result.
func Normalize(text string) string {
	text = runWhitespaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
