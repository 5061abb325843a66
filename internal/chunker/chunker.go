// Package chunker groups parsed items into size-bounded, topic-tagged chunks,
// each destined for one embedding vector.
package chunker

import (
	"fmt"
	"strings"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/classify"
	"github.com/starford/mimir/internal/parser"
)

// TokenCeiling caps the approximate token weight of one chunk regardless of
// the configured item count. Tokens are estimated at one per four bytes of
// UTF-8 text, the usual rough cut for English prose.
const (
	TokenCeiling  = 1200
	bytesPerToken = 4
)

// Chunk is a contiguous run of items. Chunks from one parse tile the item
// sequence exactly: contiguous, non-overlapping, nothing dropped. The ID is
// deterministic ("docID:index") so re-chunking unchanged input reproduces
// identical keys and re-indexing stays an upsert, not an append.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Topic      string `json:"topic"`
	StartSeq   int    `json:"start_seq"`
	EndSeq     int    `json:"end_seq"` // inclusive
	Text       string `json:"text"`
	Tokens     int    `json:"tokens"`
}

// Options configures Split.
type Options struct {
	// Size is the maximum number of items per chunk. Must be positive.
	Size int
	// Classifier tags chunks with a topic from the caller's closed set;
	// nil leaves every chunk unclassified.
	Classifier classify.Classifier
}

// Split greedily accumulates items in sequence order, closing a chunk when
// the item count reaches opts.Size or the estimated token weight would cross
// TokenCeiling, whichever comes first. An item is never split: a single
// oversize item still becomes its own chunk, and the last chunk may run
// short. Boundaries and IDs are a pure function of (docID, items, opts.Size).
func Split(docID string, items []parser.Item, topics []string, opts Options) ([]Chunk, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d: %w", opts.Size, apperr.ErrInvalidConfig)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	start, tokens := 0, 0
	for i, it := range items {
		w := estimateTokens(itemText(it))
		if i > start && (i-start >= opts.Size || tokens+w > TokenCeiling) {
			chunks = append(chunks, build(docID, items[start:i], len(chunks), topics, opts.Classifier))
			start, tokens = i, 0
		}
		tokens += w
	}
	chunks = append(chunks, build(docID, items[start:], len(chunks), topics, opts.Classifier))
	return chunks, nil
}

// ChunkID returns the deterministic ID of the index-th chunk of a document.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s:%d", docID, index)
}

func build(docID string, items []parser.Item, index int, topics []string, cls classify.Classifier) Chunk {
	texts := make([]string, len(items))
	votes := make(map[string]int, len(items))
	tokens := 0
	for i, it := range items {
		text := itemText(it)
		texts[i] = text
		tokens += estimateTokens(text)
		if cls != nil {
			votes[cls.Classify(it.Text, topics)]++
		}
	}
	return Chunk{
		ID:         ChunkID(docID, index),
		DocumentID: docID,
		Topic:      majority(votes, topics),
		StartSeq:   items[0].Seq,
		EndSeq:     items[len(items)-1].Seq,
		Text:       strings.Join(texts, "\n"),
		Tokens:     tokens,
	}
}

// itemText renders an item for embedding, keeping the speaker attribution
// retrieval answers often need.
func itemText(it parser.Item) string {
	if it.Speaker != "" {
		return it.Speaker + ": " + it.Text
	}
	return it.Text
}

// majority picks the most voted topic. Ties resolve to the earlier topic in
// the caller's order, and any real topic beats the unclassified sentinel.
func majority(votes map[string]int, topics []string) string {
	best, bestVotes := classify.Unclassified, 0
	for _, topic := range topics {
		if n := votes[topic]; n > bestVotes {
			best, bestVotes = topic, n
		}
	}
	return best
}

// estimateTokens approximates the token weight of text, rounding up.
func estimateTokens(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}
