package chunker

import (
	"regexp"
	"strings"
)

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// ChunkByParagraphs splits text on paragraph breaks, packing whole
// paragraphs up to the size limit. Paragraphs that exceed the limit on
// their own fall back to the recursive splitter.
func (c *Recursive) ChunkByParagraphs(text string) []string {
	if text == "" {
		return nil
	}

	paragraphs := paragraphRe.Split(text, -1)

	var chunks []string
	current := ""

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(current)+len(para)+2 <= c.chunkSize {
			current += para + "\n\n"
			continue
		}

		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}

		if len(para) > c.chunkSize {
			chunks = append(chunks, c.Chunk(para)...)
			current = ""
		} else {
			current = para + "\n\n"
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks
}
