package chunker

import (
	"fmt"
	"strings"
)

// Semantic splits text on sentence boundaries instead of fixed separators.
//
// Sentences accumulate into a running chunk until either the size limit is
// reached or a "complete thought" heuristic holds: at least MinSentences
// sentences and the last one ends in terminal punctuation. On emission the
// last two sentences are retained as overlap context for the next chunk when
// their combined length fits within ChunkOverlap.
type Semantic struct {
	chunkSize    int
	chunkOverlap int
	minSentences int
}

// NewSemantic creates a semantic splitter.
func NewSemantic(cfg Config) (*Semantic, error) {
	size := cfg.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}

	overlap := cfg.ChunkOverlap
	if overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap < 0 {
		overlap = 0
	}

	minSentences := cfg.MinSentences
	if minSentences <= 0 {
		minSentences = DefaultMinSentences
	}

	return &Semantic{
		chunkSize:    size,
		chunkOverlap: overlap,
		minSentences: minSentences,
	}, nil
}

// Chunk splits text while keeping sentence boundaries intact.
func (c *Semantic) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []string
	var current []string

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		current = append(current, sentence)

		joined := strings.Join(current, " ")
		if len(joined) >= c.chunkSize || c.isCompleteThought(current) {
			chunks = append(chunks, joined)

			// Retain the last two sentences as overlap context when they fit.
			overlap := current[max(0, len(current)-2):]
			if len(strings.Join(overlap, " ")) <= c.chunkOverlap {
				current = append([]string(nil), overlap...)
			} else {
				current = nil
			}
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// isCompleteThought reports whether the accumulated sentences can be emitted
// early: enough of them, and the last one ends a sentence.
func (c *Semantic) isCompleteThought(sentences []string) bool {
	if len(sentences) < c.minSentences {
		return false
	}
	last := strings.TrimSpace(sentences[len(sentences)-1])
	return strings.HasSuffix(last, ".") || strings.HasSuffix(last, "!") || strings.HasSuffix(last, "?")
}

// splitSentences splits text after terminal punctuation followed by
// whitespace, or at newlines. The punctuation stays with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && isSpace(runes[i+1]) {
				sentences = append(sentences, string(runes[start:i+1]))
				i++
				for i < len(runes) && isSpace(runes[i]) {
					i++
				}
				start = i
				i--
			}
		case '\n':
			if i > start {
				sentences = append(sentences, string(runes[start:i]))
			}
			for i < len(runes) && isSpace(runes[i]) {
				i++
			}
			start = i
			i--
		}
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
