package api

import (
	"github.com/starford/mimir/internal/blob"
	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/vecstore"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	WorkspaceID string `json:"workspace_id,omitempty" example:"ws-main"`
	Title       string `json:"title" example:"Weekly standup" validate:"required"`
	Category    string `json:"category,omitempty" example:"knowledge"`
	Searchable  *bool  `json:"searchable,omitempty" example:"true"`
}

// RenameDocumentRequest is the request body for renaming a document.
type RenameDocumentRequest struct {
	Title string `json:"title" example:"Weekly standup (archived)" validate:"required"`
}

// SaveVersionRequest is the request body for appending a version.
type SaveVersionRequest struct {
	Content  string            `json:"content" example:"[00:00] Alice: Hello" validate:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PublishRequest is the request body for publishing a version.
type PublishRequest struct {
	VersionID string `json:"version_id" example:"8f14e45f-..." validate:"required"`
}

// SearchableRequest is the request body for flipping the searchable gate.
type SearchableRequest struct {
	Searchable bool `json:"searchable" example:"false"`
}

// RetryChunksRequest is the request body for re-indexing failed chunks.
type RetryChunksRequest struct {
	ChunkIDs []string `json:"chunk_ids" example:"doc-1:0,doc-1:1" validate:"required"`
}

// PreviewRequest is the request body for a dry-run chunking preview.
type PreviewRequest struct {
	Content   string   `json:"content" validate:"required"`
	Format    string   `json:"format,omitempty" example:"transcript"`
	ChunkSize int      `json:"chunk_size,omitempty" example:"5"`
	Topics    []string `json:"topics,omitempty"`
}

// Document is the full document response type (aliased from the domain layer).
type Document = models.Envelope

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []models.Envelope `json:"documents" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// VersionListResponse wraps a document's version history.
type VersionListResponse struct {
	Versions []models.VersionMetadata `json:"versions" validate:"required"`
}

// IngestResult is the pipeline summary (aliased from the domain layer).
type IngestResult = docservice.IngestResult

// SourceResult is the archived-source summary (aliased from the domain layer).
type SourceResult = docservice.SourceResult

// SearchResponse wraps similarity search results.
type SearchResponse struct {
	Matches []vecstore.Match `json:"matches" validate:"required"`
}

// SourceListResponse wraps the owner's archived source files.
type SourceListResponse struct {
	Sources []blob.Info `json:"sources" validate:"required"`
}

// EraseResponse reports how many documents an account erase removed.
type EraseResponse struct {
	DeletedDocuments int `json:"deleted_documents" example:"3" validate:"required"`
}
