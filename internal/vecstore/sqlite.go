package vecstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mimir/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chunks (
	owner_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	topic       TEXT NOT NULL DEFAULT '',
	start_seq   INTEGER NOT NULL DEFAULT 0,
	end_seq     INTEGER NOT NULL DEFAULT 0,
	body        TEXT NOT NULL DEFAULT '',
	vector      BLOB NOT NULL,
	PRIMARY KEY (owner_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_chunks_owner_doc ON chunks(owner_id, document_id);
`

// DB is the SQLite-backed vector store. Vectors are float32 little-endian
// blobs and similarity is computed by scanning the owner's namespace, which
// holds up fine at personal-corpus scale.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// Open opens (or creates) the vector database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("vecstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vecstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vecstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Upsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return backendErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (owner_id, document_id, chunk_id, topic, start_seq, end_seq, body, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			topic       = excluded.topic,
			start_seq   = excluded.start_seq,
			end_seq     = excluded.end_seq,
			body        = excluded.body,
			vector      = excluded.vector
	`)
	if err != nil {
		return backendErr("prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		_, err := stmt.ExecContext(ctx, r.OwnerID, r.DocumentID, r.ChunkID, r.Topic, r.StartSeq, r.EndSeq, r.Text, encodeVector(r.Vector))
		if err != nil {
			return backendErr("upsert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return backendErr("commit", err)
	}
	return nil
}

func (db *DB) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM chunks WHERE owner_id = ? AND document_id = ?`, ownerID, documentID)
	if err != nil {
		return backendErr("delete document", err)
	}
	return nil
}

func (db *DB) DeleteChunks(ctx context.Context, ownerID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return backendErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE owner_id = ? AND chunk_id = ?`)
	if err != nil {
		return backendErr("prepare delete", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, ownerID, id); err != nil {
			return backendErr("delete chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return backendErr("commit", err)
	}
	return nil
}

func (db *DB) DeleteNamespace(ctx context.Context, ownerID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM chunks WHERE owner_id = ?`, ownerID)
	if err != nil {
		return backendErr("delete namespace", err)
	}
	return nil
}

func (db *DB) DocumentChunkIDs(ctx context.Context, ownerID, documentID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT chunk_id FROM chunks
		WHERE owner_id = ? AND document_id = ?
		ORDER BY chunk_id
	`, ownerID, documentID)
	if err != nil {
		return nil, backendErr("list chunk ids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, backendErr("scan chunk id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (db *DB) Query(ctx context.Context, q Query) ([]Match, error) {
	where := []string{"owner_id = ?"}
	args := []any{q.OwnerID}
	if q.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, q.Topic)
	}
	if len(q.Documents) > 0 {
		where = append(where, "document_id IN (?"+strings.Repeat(",?", len(q.Documents)-1)+")")
		for _, id := range q.Documents {
			args = append(args, id)
		}
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT owner_id, document_id, chunk_id, topic, start_seq, end_seq, body, vector
		FROM chunks WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, backendErr("query", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.OwnerID, &m.DocumentID, &m.ChunkID, &m.Topic, &m.StartSeq, &m.EndSeq, &m.Text, &blob); err != nil {
			return nil, backendErr("scan chunk", err)
		}
		m.Score = dot(decodeVector(blob), q.Vector)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("iterate chunks", err)
	}
	return rank(matches, q.TopK), nil
}

// rank sorts by descending score, breaking ties by chunk ID so results are
// stable, then truncates to topK.
func rank(matches []Match, topK int) []Match {
	if topK <= 0 {
		topK = DefaultTopK
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func backendErr(op string, err error) error {
	return fmt.Errorf("vecstore: %s: %v: %w", op, err, apperr.ErrIndexBackend)
}
