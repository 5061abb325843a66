// Package models defines the domain types for Mimir.
package models

import "time"

// Document categories. Knowledge documents are authored and edited in the app;
// raw documents wrap uploaded source material such as meeting transcripts.
const (
	CategoryKnowledge = "knowledge"
	CategoryRaw       = "raw"
)

// Envelope is the stable identity of a document. Content lives in immutable
// versions underneath it; the envelope itself carries only mutable metadata,
// the searchable gate, and the published pointer.
type Envelope struct {
	ID                 string    `json:"id"`
	WorkspaceID        string    `json:"workspace_id"`
	OwnerID            string    `json:"owner_id"`
	Title              string    `json:"title"`
	Category           string    `json:"category"`
	Searchable         bool      `json:"searchable"`
	PublishedVersionID string    `json:"published_version_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Published reports whether the envelope currently points at a version.
// An unpublished envelope is draft-only and never reaches the index.
func (e *Envelope) Published() bool { return e.PublishedVersionID != "" }

// Version is one immutable content snapshot under an envelope. Edits always
// append a new version; nothing ever rewrites an existing one.
type Version struct {
	ID         string            `json:"id"`
	EnvelopeID string            `json:"envelope_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Checksum   string            `json:"checksum"`
	CreatedAt  time.Time         `json:"created_at"`
}

// VersionMetadata is a lightweight representation returned by list operations.
type VersionMetadata struct {
	ID        string    `json:"id"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}
