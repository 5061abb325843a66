// Package docservice coordinates the document store, the blob archive, and
// the vector index behind one service surface. It owns the rules the
// projections must obey: drafts stay out of the index, the searchable flag
// gates retrieval, and the store always wins over the index.
package docservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/blob"
	"github.com/starford/mimir/internal/checksum"
	"github.com/starford/mimir/internal/classify"
	"github.com/starford/mimir/internal/docstore"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/vecindex"
	"github.com/starford/mimir/internal/vecstore"
)

// Defaults applied when the caller and the service config leave a knob
// unset.
const (
	DefaultChunkSize = 5
	DefaultTitle     = "Untitled"
)

// Config carries the pipeline settings the service falls back to.
type Config struct {
	ChunkSize int
	Topics    []string
}

// Service coordinates document, blob, and vector operations.
type Service struct {
	store      docstore.Store
	vectors    *vecindex.Manager
	blobs      blob.Store
	classifier classify.Classifier
	logger     *slog.Logger
	cfg        Config
	notify     func(ownerID, kind, documentID string)

	mu    sync.Mutex
	locks map[string]*sync.Mutex // envelope ID -> per-envelope lock
}

// NewService creates a document service.
func NewService(store docstore.Store, vectors *vecindex.Manager, blobs blob.Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Service{
		store:      store,
		vectors:    vectors,
		blobs:      blobs,
		classifier: classify.Keyword{},
		logger:     logger,
		cfg:        cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

// OnDocumentEvent registers a callback fired after each mutation with one
// of the kinds created, updated, published, indexed, partial, or deleted.
// The callback runs on the mutating goroutine and must not block.
func (s *Service) OnDocumentEvent(fn func(ownerID, kind, documentID string)) {
	s.notify = fn
}

func (s *Service) emit(ownerID, kind, documentID string) {
	if s.notify != nil {
		s.notify(ownerID, kind, documentID)
	}
}

// lock serializes mutations of one envelope. The returned func releases it.
func (s *Service) lock(envelopeID string) func() {
	s.mu.Lock()
	l, ok := s.locks[envelopeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[envelopeID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Service) dropLock(envelopeID string) {
	s.mu.Lock()
	delete(s.locks, envelopeID)
	s.mu.Unlock()
}

// CreateInput describes a new envelope.
type CreateInput struct {
	WorkspaceID string
	Title       string
	Category    string
	Searchable  *bool
}

// CreateDocument creates an empty envelope. It starts as a draft: no
// version, no publish pointer, nothing indexed.
func (s *Service) CreateDocument(_ context.Context, ownerID string, in CreateInput) (*models.Envelope, error) {
	if in.Title == "" {
		in.Title = DefaultTitle
	}
	if in.Category == "" {
		in.Category = models.CategoryKnowledge
	}
	if in.Category != models.CategoryKnowledge && in.Category != models.CategoryRaw {
		return nil, fmt.Errorf("docservice: unknown category %q: %w", in.Category, apperr.ErrInvalidConfig)
	}
	searchable := true
	if in.Searchable != nil {
		searchable = *in.Searchable
	}

	now := time.Now().UTC()
	env := &models.Envelope{
		ID:          uuid.New().String(),
		WorkspaceID: in.WorkspaceID,
		OwnerID:     ownerID,
		Title:       in.Title,
		Category:    in.Category,
		Searchable:  searchable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEnvelope(env); err != nil {
		return nil, err
	}
	s.emit(ownerID, "created", env.ID)
	return env, nil
}

// GetDocument returns one envelope.
func (s *Service) GetDocument(_ context.Context, ownerID, id string) (*models.Envelope, error) {
	return s.store.GetEnvelope(ownerID, id)
}

// ListDocuments returns one page of envelopes plus the total count.
func (s *Service) ListDocuments(_ context.Context, ownerID string, limit, offset int, category string) ([]models.Envelope, int, error) {
	envs, total, err := s.store.ListEnvelopes(ownerID, limit, offset, category)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(envs), total, nil
}

// RenameDocument updates an envelope's title.
func (s *Service) RenameDocument(_ context.Context, ownerID, id, title string) (*models.Envelope, error) {
	if err := s.store.UpdateTitle(ownerID, id, title); err != nil {
		return nil, err
	}
	s.emit(ownerID, "updated", id)
	return s.store.GetEnvelope(ownerID, id)
}

// SaveVersion appends an immutable version to an envelope. Saved versions
// are drafts until published and never touch the index.
func (s *Service) SaveVersion(_ context.Context, ownerID, envelopeID, content string, metadata map[string]string) (*models.Version, error) {
	v := &models.Version{
		ID:         uuid.New().String(),
		EnvelopeID: envelopeID,
		Content:    content,
		Metadata:   metadata,
		Checksum:   checksum.Sum([]byte(content)),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateVersion(ownerID, v); err != nil {
		return nil, err
	}
	s.emit(ownerID, "updated", envelopeID)
	return v, nil
}

// GetVersion returns one version with content.
func (s *Service) GetVersion(_ context.Context, ownerID, envelopeID, versionID string) (*models.Version, error) {
	return s.store.GetVersion(ownerID, envelopeID, versionID)
}

// ListVersions returns version metadata newest first.
func (s *Service) ListVersions(_ context.Context, ownerID, envelopeID string) ([]models.VersionMetadata, error) {
	list, err := s.store.ListVersions(ownerID, envelopeID)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(list), nil
}

// PublishedVersion returns the currently published version.
func (s *Service) PublishedVersion(_ context.Context, ownerID, envelopeID string) (*models.Version, error) {
	return s.store.PublishedVersion(ownerID, envelopeID)
}

// SetSearchable flips the retrieval gate. Turning it off removes the
// document's chunks from the index; turning it back on re-indexes the
// published version. The flag is idempotent: setting the current value does
// nothing.
func (s *Service) SetSearchable(ctx context.Context, ownerID, envelopeID string, searchable bool) (*IngestResult, error) {
	defer s.lock(envelopeID)()

	env, err := s.store.GetEnvelope(ownerID, envelopeID)
	if err != nil {
		return nil, err
	}
	if env.Searchable == searchable {
		return nil, nil
	}
	if err := s.store.SetSearchable(ownerID, envelopeID, searchable); err != nil {
		return nil, err
	}
	s.emit(ownerID, "updated", envelopeID)

	if !searchable {
		s.clearIndex(ctx, ownerID, envelopeID)
		return nil, nil
	}
	if !env.Published() {
		return nil, nil
	}
	version, err := s.store.PublishedVersion(ownerID, envelopeID)
	if err != nil {
		return nil, err
	}
	return s.runPipeline(ctx, ownerID, envelopeID, version.Content, IngestOptions{})
}

// DeleteDocument removes an envelope with all its versions, then clears
// the document's chunks from the index. The store delete is authoritative;
// index cleanup is best-effort and logged. Leftover vectors never surface,
// as Search only queries the store's current searchable set.
func (s *Service) DeleteDocument(ctx context.Context, ownerID, envelopeID string) error {
	defer s.lock(envelopeID)()

	if _, err := s.store.GetEnvelope(ownerID, envelopeID); err != nil {
		return err
	}
	if err := s.store.DeleteEnvelope(ownerID, envelopeID); err != nil {
		return err
	}
	s.clearIndex(ctx, ownerID, envelopeID)
	s.dropLock(envelopeID)
	s.emit(ownerID, "deleted", envelopeID)
	return nil
}

// clearIndex drops a document's chunks, logging failures instead of
// returning them: the store mutation that triggered the cleanup has already
// happened and is not rolled back over a projection.
func (s *Service) clearIndex(ctx context.Context, ownerID, documentID string) {
	if err := s.vectors.DeleteDocument(ctx, ownerID, documentID); err != nil {
		s.logger.Warn("docservice: delete chunks failed",
			slog.String("owner", ownerID), slog.String("document", documentID),
			slog.String("error", err.Error()))
	}
}

// SearchOptions narrows retrieval.
type SearchOptions struct {
	TopK      int
	Topic     string
	Documents []string
}

// Search runs similarity retrieval over the owner's searchable documents.
// The searchable gate is enforced twice: unsearchable documents have no
// chunks in the index, and the query is additionally restricted to the
// currently searchable envelope set.
func (s *Service) Search(ctx context.Context, ownerID, query string, opts SearchOptions) ([]vecstore.Match, error) {
	allowed, err := s.store.SearchableEnvelopeIDs(ownerID)
	if err != nil {
		return nil, err
	}
	if len(opts.Documents) > 0 {
		allowed = intersect(allowed, opts.Documents)
	}
	if len(allowed) == 0 {
		return []vecstore.Match{}, nil
	}
	matches, err := s.vectors.Search(ctx, ownerID, query, vecindex.SearchOptions{
		TopK:      opts.TopK,
		Topic:     opts.Topic,
		Documents: allowed,
	})
	if err != nil {
		return nil, err
	}
	return nonNilSlice(matches), nil
}

// EraseOwner removes everything an owner has: envelopes, versions, vectors,
// and archived sources. The store is authoritative; projection cleanup is
// best-effort and logged, since a later ingest for the owner starts from an
// empty namespace anyway.
func (s *Service) EraseOwner(ctx context.Context, ownerID string) (int, error) {
	ids, err := s.store.DeleteOwner(ownerID)
	if err != nil {
		return 0, err
	}
	if err := s.vectors.DeleteNamespace(ctx, ownerID); err != nil {
		s.logger.Warn("docservice: erase namespace failed",
			slog.String("owner", ownerID), slog.String("error", err.Error()))
	}
	if err := s.blobs.DeleteOwner(ownerID); err != nil {
		s.logger.Warn("docservice: erase blobs failed",
			slog.String("owner", ownerID), slog.String("error", err.Error()))
	}
	for _, id := range ids {
		s.dropLock(id)
		s.emit(ownerID, "deleted", id)
	}
	return len(ids), nil
}

// ListSources returns the owner's archived source files.
func (s *Service) ListSources(_ context.Context, ownerID string) ([]blob.Info, error) {
	infos, err := s.blobs.List(ownerID)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(infos), nil
}

// ReadSource returns an archived source payload by key.
func (s *Service) ReadSource(_ context.Context, ownerID, key string) ([]byte, error) {
	return s.blobs.Read(ownerID, key)
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	var out []string
	for _, x := range b {
		if _, ok := set[x]; ok {
			out = append(out, x)
		}
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
