// Package vecindex drives the embed-and-store half of the pipeline: it
// batches chunks, calls the embedding provider, writes vectors into the
// store, and reconciles stale rows left over from earlier versions.
package vecindex

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/chunker"
	"github.com/starford/mimir/internal/embed"
	"github.com/starford/mimir/internal/vecstore"
)

// Defaults applied by New when Options leaves a field zero.
const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 250 * time.Millisecond
)

// Options tunes batching and retry behavior.
type Options struct {
	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int
	// Concurrency caps in-flight batches.
	Concurrency int
	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries int
	// RetryDelay is the initial backoff, doubled per attempt.
	RetryDelay time.Duration
}

// Report describes the outcome of an indexing run. A run with failures is
// not an error: the caller keeps FailedChunkIDs and retries just those.
type Report struct {
	DocumentID     string   `json:"document_id"`
	ChunkCount     int      `json:"chunk_count"`
	Indexed        int      `json:"indexed"`
	FailedChunkIDs []string `json:"failed_chunk_ids,omitempty"`
}

// Failed reports whether any chunk was left unindexed.
func (r Report) Failed() bool { return len(r.FailedChunkIDs) > 0 }

// Manager coordinates the embedding provider and the vector store.
type Manager struct {
	provider embed.Provider
	store    vecstore.Store
	logger   *slog.Logger
	opts     Options
}

// New creates a Manager, filling zero Options fields with defaults.
func New(provider embed.Provider, store vecstore.Store, logger *slog.Logger, opts Options) *Manager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Manager{provider: provider, store: store, logger: logger, opts: opts}
}

// IndexDocument replaces a document's presence in the owner's namespace with
// the given chunks. New rows are upserted first, then rows belonging to no
// current chunk are deleted, so a failed run never leaves the document less
// indexed than before. An empty chunk set clears the document's old rows.
// Per-batch embedding or storage failures land in the report, not the error.
func (m *Manager) IndexDocument(ctx context.Context, ownerID, documentID string, chunks []chunker.Chunk) (Report, error) {
	existing, err := m.store.DocumentChunkIDs(ctx, ownerID, documentID)
	if err != nil {
		return Report{}, err
	}

	report := m.indexChunks(ctx, ownerID, documentID, chunks)

	current := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		current[c.ID] = struct{}{}
	}
	var stale []string
	for _, id := range existing {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		err := m.withRetry(ctx, "delete stale chunks", func() error {
			return m.store.DeleteChunks(ctx, ownerID, stale)
		})
		if err != nil {
			return report, err
		}
		m.logger.Debug("vecindex: removed stale chunks",
			slog.String("document", documentID), slog.Int("count", len(stale)))
	}
	return report, nil
}

// IndexChunks embeds and stores the given chunks without touching anything
// else in the document. It backs targeted retries of previously failed
// chunks.
func (m *Manager) IndexChunks(ctx context.Context, ownerID, documentID string, chunks []chunker.Chunk) (Report, error) {
	return m.indexChunks(ctx, ownerID, documentID, chunks), ctx.Err()
}

func (m *Manager) indexChunks(ctx context.Context, ownerID, documentID string, chunks []chunker.Chunk) Report {
	report := Report{DocumentID: documentID, ChunkCount: len(chunks)}
	if len(chunks) == 0 {
		return report
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for start := 0; start < len(chunks); start += m.opts.BatchSize {
		batch := chunks[start:min(start+m.opts.BatchSize, len(chunks))]
		g.Go(func() error {
			if err := m.indexBatch(gctx, ownerID, batch); err != nil {
				m.logger.Warn("vecindex: batch failed",
					slog.String("document", documentID),
					slog.Int("size", len(batch)),
					slog.String("error", err.Error()))
				mu.Lock()
				for _, c := range batch {
					failed = append(failed, c.ID)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	// Batch failures are collected into the report, never returned.
	_ = g.Wait()

	sort.Strings(failed)
	report.FailedChunkIDs = failed
	report.Indexed = report.ChunkCount - len(failed)
	return report
}

func (m *Manager) indexBatch(ctx context.Context, ownerID string, batch []chunker.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	var vectors [][]float32
	err := m.withRetry(ctx, "embed batch", func() error {
		var err error
		vectors, err = m.provider.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return err
	}

	recs := make([]vecstore.Record, len(batch))
	for i, c := range batch {
		recs[i] = vecstore.Record{
			OwnerID:    ownerID,
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Topic:      c.Topic,
			StartSeq:   c.StartSeq,
			EndSeq:     c.EndSeq,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}
	return m.withRetry(ctx, "upsert batch", func() error {
		return m.store.Upsert(ctx, recs)
	})
}

// DeleteDocument removes every vector of one document.
func (m *Manager) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	return m.withRetry(ctx, "delete document", func() error {
		return m.store.DeleteDocument(ctx, ownerID, documentID)
	})
}

// DeleteNamespace removes every vector an owner has.
func (m *Manager) DeleteNamespace(ctx context.Context, ownerID string) error {
	return m.withRetry(ctx, "delete namespace", func() error {
		return m.store.DeleteNamespace(ctx, ownerID)
	})
}

// SearchOptions narrows a similarity search.
type SearchOptions struct {
	TopK      int
	Topic     string
	Documents []string
}

// Search embeds the query text and returns the closest chunks in the
// owner's namespace.
func (m *Manager) Search(ctx context.Context, ownerID, query string, opts SearchOptions) ([]vecstore.Match, error) {
	var vectors [][]float32
	err := m.withRetry(ctx, "embed query", func() error {
		var err error
		vectors, err = m.provider.Embed(ctx, []string{query})
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.store.Query(ctx, vecstore.Query{
		OwnerID:   ownerID,
		Vector:    vectors[0],
		TopK:      opts.TopK,
		Topic:     opts.Topic,
		Documents: opts.Documents,
	})
}

// withRetry runs fn up to MaxRetries+1 times, backing off between attempts.
// Only provider and backend failures are retried; anything else, including
// context cancellation, fails immediately.
func (m *Manager) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := m.opts.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			m.logger.Debug("vecindex: retrying", slog.String("op", op), slog.Int("attempt", attempt+1))
			if err := sleepCtx(ctx, m.opts.RetryDelay<<(attempt-1)); err != nil {
				return err
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(lastErr) {
			break
		}
	}
	return lastErr
}

func retryable(err error) bool {
	return errors.Is(err, apperr.ErrEmbedding) || errors.Is(err, apperr.ErrIndexBackend)
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
