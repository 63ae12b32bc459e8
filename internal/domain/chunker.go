package domain

import (
	"regexp"
	"strings"
)

// DefaultMaxWords is the passage size used when a chunker is built without an explicit limit.
const DefaultMaxWords = 300

var paragraphBoundary = regexp.MustCompile(`\n\s*\n`)

// Chunker defines the interface for splitting document text into passages.
type Chunker interface {
	Chunk(body string) []string
	MaxWords() int
}

type wordWindowChunker struct {
	maxWords int
}

// NewChunker creates a paragraph chunker that caps every passage at maxWords words.
// A non-positive maxWords falls back to DefaultMaxWords.
func NewChunker(maxWords int) Chunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &wordWindowChunker{maxWords: maxWords}
}

func (c *wordWindowChunker) MaxWords() int {
	return c.maxWords
}

func (c *wordWindowChunker) Chunk(body string) []string {
	return ChunkTextToPassages(body, c.maxWords)
}

// ChunkTextToPassages splits text on blank lines into paragraphs and returns them in order.
// Paragraphs of at most maxWords words are kept verbatim (trimmed). Longer paragraphs are
// cut into consecutive windows of exactly maxWords words joined by single spaces; the
// final window may be shorter.
func ChunkTextToPassages(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var passages []string
	for _, part := range paragraphBoundary.Split(normalized, -1) {
		para := strings.TrimSpace(part)
		if para == "" {
			continue
		}

		words := strings.Fields(para)
		if len(words) <= maxWords {
			passages = append(passages, para)
			continue
		}
		for i := 0; i < len(words); i += maxWords {
			end := min(i+maxWords, len(words))
			passages = append(passages, strings.Join(words[i:end], " "))
		}
	}
	return passages
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
