package docservice

import (
	"context"

	"github.com/google/uuid"

	"github.com/starford/mimir/internal/chunker"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/parser"
	"github.com/starford/mimir/internal/vecindex"
)

// IngestOptions tunes one pipeline run. Zero values fall back to the
// service config, so an empty struct is the common case.
type IngestOptions struct {
	Format    parser.Format
	ChunkSize int
	Topics    []string
	// DryRun stops after chunking: the result carries the chunks that
	// would have been indexed and nothing is embedded or stored.
	DryRun bool
}

// IngestResult summarizes one pipeline run.
type IngestResult struct {
	DocumentID string           `json:"document_id"`
	ItemCount  int              `json:"item_count"`
	ChunkCount int              `json:"chunk_count"`
	Chunks     []chunker.Chunk  `json:"chunks,omitempty"`
	Report     *vecindex.Report `json:"report,omitempty"`
}

// Publish points the envelope at a version and, when the envelope is
// searchable, runs the indexing pipeline over that version's content. A nil
// result means the envelope is not searchable and nothing was indexed.
//
// Re-publishing is reconciliation, not append: chunks are upserted under
// deterministic IDs and rows from the previous version that no current
// chunk claims are removed.
func (s *Service) Publish(ctx context.Context, ownerID, envelopeID, versionID string, opts IngestOptions) (*IngestResult, error) {
	defer s.lock(envelopeID)()

	version, err := s.store.GetVersion(ownerID, envelopeID, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPublished(ownerID, envelopeID, versionID); err != nil {
		return nil, err
	}
	s.emit(ownerID, "published", envelopeID)
	env, err := s.store.GetEnvelope(ownerID, envelopeID)
	if err != nil {
		return nil, err
	}
	if !env.Searchable {
		return nil, nil
	}
	return s.runPipeline(ctx, ownerID, envelopeID, version.Content, opts)
}

// Unpublish clears the publish pointer and removes the document's chunks.
// The envelope and its versions stay.
func (s *Service) Unpublish(ctx context.Context, ownerID, envelopeID string) error {
	defer s.lock(envelopeID)()

	if _, err := s.store.GetEnvelope(ownerID, envelopeID); err != nil {
		return err
	}
	if err := s.store.SetPublished(ownerID, envelopeID, ""); err != nil {
		return err
	}
	s.emit(ownerID, "updated", envelopeID)
	s.clearIndex(ctx, ownerID, envelopeID)
	return nil
}

// Ingest runs the bare pipeline for a document ID without envelope
// bookkeeping: parse, chunk, embed, store. An empty documentID gets a fresh
// one. Callers that want versioning and the searchable gate should go
// through envelopes instead.
func (s *Service) Ingest(ctx context.Context, ownerID, documentID, content string, opts IngestOptions) (*IngestResult, error) {
	if documentID == "" {
		documentID = uuid.New().String()
	}
	defer s.lock(documentID)()
	return s.runPipeline(ctx, ownerID, documentID, content, opts)
}

// SourceResult describes an archived and ingested source payload.
type SourceResult struct {
	Envelope  *models.Envelope `json:"document"`
	VersionID string           `json:"version_id"`
	BlobKey   string           `json:"blob_key"`
	Ingest    *IngestResult    `json:"ingest"`
}

// IngestSource archives a raw payload and runs it through the whole chain:
// blob, raw-category envelope, version, publish, index. The original bytes
// stay recoverable from the archive no matter what the parser made of them.
func (s *Service) IngestSource(ctx context.Context, ownerID, name string, content []byte, opts IngestOptions) (*SourceResult, error) {
	// Reject unparsable payloads before creating anything.
	if _, err := parser.Parse(string(content), opts.Format); err != nil {
		return nil, err
	}

	key, err := s.blobs.Save(ownerID, name, content)
	if err != nil {
		return nil, err
	}

	env, err := s.CreateDocument(ctx, ownerID, CreateInput{Title: name, Category: models.CategoryRaw})
	if err != nil {
		return nil, err
	}
	defer s.lock(env.ID)()

	version, err := s.SaveVersion(ctx, ownerID, env.ID, string(content), map[string]string{
		"source": name,
		"blob":   key,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPublished(ownerID, env.ID, version.ID); err != nil {
		return nil, err
	}
	s.emit(ownerID, "published", env.ID)

	res, err := s.runPipeline(ctx, ownerID, env.ID, version.Content, opts)
	if err != nil {
		return nil, err
	}
	env, err = s.store.GetEnvelope(ownerID, env.ID)
	if err != nil {
		return nil, err
	}
	return &SourceResult{Envelope: env, VersionID: version.ID, BlobKey: key, Ingest: res}, nil
}

// RetryChunks re-runs the pipeline for a subset of the published version's
// chunks, identified by the IDs a previous report handed back. Chunk IDs
// are deterministic, so recomputing the chunks with the same options finds
// the same boundaries. An unsearchable envelope has nothing to retry.
func (s *Service) RetryChunks(ctx context.Context, ownerID, envelopeID string, chunkIDs []string, opts IngestOptions) (*IngestResult, error) {
	defer s.lock(envelopeID)()

	env, err := s.store.GetEnvelope(ownerID, envelopeID)
	if err != nil {
		return nil, err
	}
	if !env.Searchable {
		return &IngestResult{DocumentID: envelopeID}, nil
	}
	version, err := s.store.PublishedVersion(ownerID, envelopeID)
	if err != nil {
		return nil, err
	}

	items, err := parser.Parse(version.Content, opts.Format)
	if err != nil {
		return nil, err
	}
	chunks, err := s.splitChunks(envelopeID, items, opts)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		wanted[id] = struct{}{}
	}
	var subset []chunker.Chunk
	for _, c := range chunks {
		if _, ok := wanted[c.ID]; ok {
			subset = append(subset, c)
		}
	}

	res := &IngestResult{DocumentID: envelopeID, ItemCount: len(items), ChunkCount: len(subset)}
	if len(subset) == 0 {
		return res, nil
	}
	report, err := s.vectors.IndexChunks(ctx, ownerID, envelopeID, subset)
	if err != nil {
		return nil, err
	}
	res.Report = &report
	if report.Failed() {
		s.emit(ownerID, "partial", envelopeID)
	} else {
		s.emit(ownerID, "indexed", envelopeID)
	}
	return res, nil
}

// runPipeline is the parse-chunk-embed-store chain shared by every ingest
// path.
func (s *Service) runPipeline(ctx context.Context, ownerID, documentID, content string, opts IngestOptions) (*IngestResult, error) {
	items, err := parser.Parse(content, opts.Format)
	if err != nil {
		return nil, err
	}
	chunks, err := s.splitChunks(documentID, items, opts)
	if err != nil {
		return nil, err
	}

	res := &IngestResult{DocumentID: documentID, ItemCount: len(items), ChunkCount: len(chunks)}
	if opts.DryRun {
		res.Chunks = nonNilSlice(chunks)
		return res, nil
	}

	report, err := s.vectors.IndexDocument(ctx, ownerID, documentID, chunks)
	if err != nil {
		return nil, err
	}
	res.Report = &report
	if report.Failed() {
		s.emit(ownerID, "partial", documentID)
	} else {
		s.emit(ownerID, "indexed", documentID)
	}
	return res, nil
}

func (s *Service) splitChunks(documentID string, items []parser.Item, opts IngestOptions) ([]chunker.Chunk, error) {
	size := opts.ChunkSize
	if size <= 0 {
		size = s.cfg.ChunkSize
	}
	topics := opts.Topics
	if len(topics) == 0 {
		topics = s.cfg.Topics
	}
	return chunker.Split(documentID, items, topics, chunker.Options{Size: size, Classifier: s.classifier})
}
