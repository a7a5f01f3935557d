// Package retrieval answers tool-call lookups against a small reference
// manual using keyword overlap.
package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	EmptyQueryResult   = "No relevant information found for an empty query."
	NoKeywordsResult   = "No relevant information found for the provided query."
	NoMatchResult      = "I couldn't find specific information on that topic in the manual."
	matchResultPattern = "From the manual: \"%s\""
)

//go:embed sample_manual.txt
var sampleManual string

var (
	paragraphSeparator = regexp.MustCompile(`\n\s*\n`)
	wordPattern        = regexp.MustCompile(`\w+`)
)

// Index is a chunked document ready for search. It is immutable after
// construction and safe for concurrent use.
type Index struct {
	chunks []chunk
}

type chunk struct {
	text  string
	words map[string]struct{}
}

// NewIndex splits document into paragraphs separated by blank lines.
func NewIndex(document string) *Index {
	paragraphs := paragraphSeparator.Split(strings.TrimSpace(document), -1)

	index := &Index{chunks: make([]chunk, 0, len(paragraphs))}
	for _, paragraph := range paragraphs {
		index.chunks = append(index.chunks, chunk{text: paragraph, words: wordSet(paragraph)})
	}
	return index
}

// SampleManual indexes the built-in water damage and mold section of the
// property inspection manual.
func SampleManual() *Index {
	return NewIndex(sampleManual)
}

// LoadManual indexes a manual from disk.
func LoadManual(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manual: %w", err)
	}
	return NewIndex(string(data)), nil
}

// Search returns the paragraph sharing the most distinct words with query.
// The first paragraph wins ties. It never fails: empty and unmatched queries
// produce fixed sentences instead.
func (i *Index) Search(query string) string {
	logger.Debug("performing manual search", "query", query)

	if query == "" {
		return EmptyQueryResult
	}

	queryWords := wordSet(query)
	if len(queryWords) == 0 {
		return NoKeywordsResult
	}

	bestChunk := ""
	maxScore := -1
	for _, c := range i.chunks {
		score := 0
		for word := range queryWords {
			if _, ok := c.words[word]; ok {
				score++
			}
		}
		if score > maxScore {
			maxScore = score
			bestChunk = c.text
		}
	}

	if maxScore <= 0 {
		logger.Debug("no relevant manual section found", "query", query)
		return NoMatchResult
	}

	logger.Debug("found manual section", "query", query, "score", maxScore)
	return fmt.Sprintf(matchResultPattern, bestChunk)
}

func wordSet(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
