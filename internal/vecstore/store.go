// Package vecstore persists chunk vectors in per-owner namespaces and serves
// cosine similarity queries over them.
package vecstore

import "context"

// DefaultTopK is the result cap applied when a query does not set one.
const DefaultTopK = 8

// Record is one stored chunk vector. (OwnerID, ChunkID) is the identity:
// upserting the same pair replaces the previous row, so deterministic chunk
// IDs make re-indexing idempotent.
type Record struct {
	OwnerID    string
	DocumentID string
	ChunkID    string
	Topic      string
	StartSeq   int
	EndSeq     int
	Text       string
	Vector     []float32
}

// Match is one similarity hit. Score is the cosine similarity of unit
// vectors, higher is closer.
type Match struct {
	OwnerID    string  `json:"-"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Topic      string  `json:"topic"`
	StartSeq   int     `json:"start_seq"`
	EndSeq     int     `json:"end_seq"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Query describes one similarity search. Only the owner's namespace is ever
// visible. Empty Topic and empty Documents mean no filter on that axis.
type Query struct {
	OwnerID   string
	Vector    []float32
	TopK      int
	Topic     string
	Documents []string
}

// Store is the vector persistence contract.
type Store interface {
	// Upsert inserts or replaces records by (owner, chunk) identity.
	Upsert(ctx context.Context, recs []Record) error
	// DeleteDocument removes every chunk of one document in one namespace.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	// DeleteChunks removes the listed chunk IDs from one namespace.
	// Unknown IDs are ignored.
	DeleteChunks(ctx context.Context, ownerID string, chunkIDs []string) error
	// DeleteNamespace removes everything an owner has stored.
	DeleteNamespace(ctx context.Context, ownerID string) error
	// DocumentChunkIDs lists the stored chunk IDs of one document, sorted.
	DocumentChunkIDs(ctx context.Context, ownerID, documentID string) ([]string, error)
	// Query returns up to TopK matches ordered by descending score.
	Query(ctx context.Context, q Query) ([]Match, error)
	Close() error
}

// dot multiplies two vectors, tolerating a length mismatch by ignoring the
// tail of the longer one.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
