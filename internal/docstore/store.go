package docstore

import "github.com/starford/mimir/internal/models"

// Store defines the document persistence contract. Every operation is
// scoped by owner: an ID from another owner's namespace behaves exactly
// like an ID that does not exist. Consumers should depend on this interface
// rather than the concrete *DB type to facilitate testing with mocks.
type Store interface {
	CreateEnvelope(env *models.Envelope) error
	GetEnvelope(ownerID, id string) (*models.Envelope, error)
	ListEnvelopes(ownerID string, limit, offset int, category string) ([]models.Envelope, int, error)
	UpdateTitle(ownerID, id, title string) error
	SetSearchable(ownerID, id string, searchable bool) error
	SetPublished(ownerID, envelopeID, versionID string) error
	DeleteEnvelope(ownerID, id string) error
	DeleteOwner(ownerID string) ([]string, error)

	CreateVersion(ownerID string, v *models.Version) error
	GetVersion(ownerID, envelopeID, versionID string) (*models.Version, error)
	PublishedVersion(ownerID, envelopeID string) (*models.Version, error)
	ListVersions(ownerID, envelopeID string) ([]models.VersionMetadata, error)

	SearchableEnvelopeIDs(ownerID string) ([]string, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
