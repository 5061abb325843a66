package docstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
)

// CreateVersion appends an immutable version to an envelope the owner
// holds. The envelope's updated_at moves so listings surface fresh work.
func (db *DB) CreateVersion(ownerID string, v *models.Version) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var one int
	err = tx.QueryRow(`SELECT 1 FROM envelopes WHERE owner_id = ? AND id = ?`, ownerID, v.EnvelopeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrEnvelopeNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: check envelope: %w", err)
	}

	metaJSON, _ := json.Marshal(v.Metadata)
	_, err = tx.Exec(`
		INSERT INTO versions (id, envelope_id, content, metadata, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.EnvelopeID, v.Content, string(metaJSON), v.Checksum, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("docstore: create version: %w", err)
	}

	if _, err := tx.Exec(`UPDATE envelopes SET updated_at = ? WHERE id = ?`, v.CreatedAt, v.EnvelopeID); err != nil {
		return fmt.Errorf("docstore: touch envelope: %w", err)
	}
	return tx.Commit()
}

// GetVersion returns one version, scoped through the envelope's owner.
func (db *DB) GetVersion(ownerID, envelopeID, versionID string) (*models.Version, error) {
	row := db.conn.QueryRow(`
		SELECT v.id, v.envelope_id, v.content, v.metadata, v.checksum, v.created_at
		FROM versions v
		JOIN envelopes e ON e.id = v.envelope_id
		WHERE e.owner_id = ? AND v.envelope_id = ? AND v.id = ?
	`, ownerID, envelopeID, versionID)
	return scanVersion(row)
}

// PublishedVersion returns the version the envelope's publish pointer
// currently names, or ErrVersionNotFound when the envelope is a draft.
func (db *DB) PublishedVersion(ownerID, envelopeID string) (*models.Version, error) {
	row := db.conn.QueryRow(`
		SELECT v.id, v.envelope_id, v.content, v.metadata, v.checksum, v.created_at
		FROM versions v
		JOIN envelopes e ON e.published_version_id = v.id
		WHERE e.owner_id = ? AND e.id = ?
	`, ownerID, envelopeID)
	return scanVersion(row)
}

// ListVersions returns version metadata newest first. Content stays out of
// listings; fetch a single version for that.
func (db *DB) ListVersions(ownerID, envelopeID string) ([]models.VersionMetadata, error) {
	if _, err := db.GetEnvelope(ownerID, envelopeID); err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(`
		SELECT id, checksum, created_at FROM versions
		WHERE envelope_id = ?
		ORDER BY created_at DESC, id
	`, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("docstore: list versions: %w", err)
	}
	defer rows.Close()

	var out []models.VersionMetadata
	for rows.Next() {
		var m models.VersionMetadata
		if err := rows.Scan(&m.ID, &m.Checksum, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("docstore: scan version: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanVersion(row *sql.Row) (*models.Version, error) {
	var v models.Version
	var metaJSON string
	err := row.Scan(&v.ID, &v.EnvelopeID, &v.Content, &metaJSON, &v.Checksum, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get version: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &v.Metadata); err != nil {
		return nil, fmt.Errorf("docstore: decode metadata: %w", err)
	}
	return &v, nil
}
