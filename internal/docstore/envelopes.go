package docstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
)

const envelopeColumns = `id, workspace_id, owner_id, title, category, searchable, published_version_id, created_at, updated_at`

// CreateEnvelope inserts a new envelope row.
func (db *DB) CreateEnvelope(env *models.Envelope) error {
	_, err := db.conn.Exec(`
		INSERT INTO envelopes (`+envelopeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, env.ID, env.WorkspaceID, env.OwnerID, env.Title, env.Category, env.Searchable, env.PublishedVersionID, env.CreatedAt, env.UpdatedAt)
	if err != nil {
		return fmt.Errorf("docstore: create envelope: %w", err)
	}
	return nil
}

// GetEnvelope returns one envelope in the owner's namespace.
func (db *DB) GetEnvelope(ownerID, id string) (*models.Envelope, error) {
	row := db.conn.QueryRow(`
		SELECT `+envelopeColumns+` FROM envelopes
		WHERE owner_id = ? AND id = ?
	`, ownerID, id)

	var e models.Envelope
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.OwnerID, &e.Title, &e.Category, &e.Searchable, &e.PublishedVersionID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrEnvelopeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get envelope: %w", err)
	}
	return &e, nil
}

// ListEnvelopes returns one page of the owner's envelopes, newest update
// first, plus the total count for that filter. An empty category matches
// all categories.
func (db *DB) ListEnvelopes(ownerID string, limit, offset int, category string) ([]models.Envelope, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := `owner_id = ?`
	args := []any{ownerID}
	if category != "" {
		where += ` AND category = ?`
		args = append(args, category)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM envelopes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("docstore: count envelopes: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT `+envelopeColumns+` FROM envelopes
		WHERE `+where+`
		ORDER BY updated_at DESC, id
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("docstore: list envelopes: %w", err)
	}
	defer rows.Close()

	var out []models.Envelope
	for rows.Next() {
		var e models.Envelope
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.OwnerID, &e.Title, &e.Category, &e.Searchable, &e.PublishedVersionID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("docstore: scan envelope: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// UpdateTitle renames an envelope.
func (db *DB) UpdateTitle(ownerID, id, title string) error {
	return db.updateEnvelope(ownerID, id, `title = ?`, title)
}

// SetSearchable flips the retrieval gate on an envelope.
func (db *DB) SetSearchable(ownerID, id string, searchable bool) error {
	return db.updateEnvelope(ownerID, id, `searchable = ?`, searchable)
}

func (db *DB) updateEnvelope(ownerID, id, set string, value any) error {
	res, err := db.conn.Exec(`
		UPDATE envelopes SET `+set+`, updated_at = ?
		WHERE owner_id = ? AND id = ?
	`, value, time.Now().UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("docstore: update envelope: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrEnvelopeNotFound
	}
	return nil
}

// SetPublished points an envelope at one of its own versions, or clears the
// pointer when versionID is empty. Pointing at a version of another envelope
// is refused.
func (db *DB) SetPublished(ownerID, envelopeID, versionID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if versionID != "" {
		var one int
		err := tx.QueryRow(`SELECT 1 FROM versions WHERE id = ? AND envelope_id = ?`, versionID, envelopeID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrVersionNotFound
		}
		if err != nil {
			return fmt.Errorf("docstore: check version: %w", err)
		}
	}

	res, err := tx.Exec(`
		UPDATE envelopes SET published_version_id = ?, updated_at = ?
		WHERE owner_id = ? AND id = ?
	`, versionID, time.Now().UTC(), ownerID, envelopeID)
	if err != nil {
		return fmt.Errorf("docstore: set published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrEnvelopeNotFound
	}
	return tx.Commit()
}

// DeleteEnvelope removes an envelope and all its versions.
func (db *DB) DeleteEnvelope(ownerID, id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var one int
	err = tx.QueryRow(`SELECT 1 FROM envelopes WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrEnvelopeNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: check envelope: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM versions WHERE envelope_id = ?`, id); err != nil {
		return fmt.Errorf("docstore: delete versions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM envelopes WHERE owner_id = ? AND id = ?`, ownerID, id); err != nil {
		return fmt.Errorf("docstore: delete envelope: %w", err)
	}
	return tx.Commit()
}

// DeleteOwner removes every envelope and version an owner has, returning
// the IDs of the removed envelopes.
func (db *DB) DeleteOwner(ownerID string) ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.Query(`SELECT id FROM envelopes WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("docstore: list owner envelopes: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("docstore: scan envelope id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: iterate envelopes: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM versions WHERE envelope_id IN (SELECT id FROM envelopes WHERE owner_id = ?)`, ownerID); err != nil {
		return nil, fmt.Errorf("docstore: delete owner versions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM envelopes WHERE owner_id = ?`, ownerID); err != nil {
		return nil, fmt.Errorf("docstore: delete owner envelopes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("docstore: commit: %w", err)
	}
	return ids, nil
}

// SearchableEnvelopeIDs lists the owner's envelopes that are currently
// allowed to appear in retrieval results.
func (db *DB) SearchableEnvelopeIDs(ownerID string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM envelopes WHERE owner_id = ? AND searchable = 1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("docstore: searchable envelopes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("docstore: scan envelope id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
