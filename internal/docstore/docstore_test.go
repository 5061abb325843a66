package docstore

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "mimir-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeEnvelope(t *testing.T, db *DB, owner, id string) *models.Envelope {
	t.Helper()
	now := time.Now().UTC()
	env := &models.Envelope{
		ID:         id,
		OwnerID:    owner,
		Title:      "Untitled",
		Category:   models.CategoryKnowledge,
		Searchable: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.CreateEnvelope(env); err != nil {
		t.Fatalf("CreateEnvelope: %v", err)
	}
	return env
}

func makeVersion(t *testing.T, db *DB, owner, envID, verID, content string) *models.Version {
	t.Helper()
	v := &models.Version{
		ID:         verID,
		EnvelopeID: envID,
		Content:    content,
		Metadata:   map[string]string{"source": "test"},
		Checksum:   "cs-" + verID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.CreateVersion(owner, v); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	return v
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM envelopes`).Scan(&count); err != nil {
		t.Fatalf("envelopes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM versions`).Scan(&count); err != nil {
		t.Fatalf("versions table missing: %v", err)
	}
}

func TestCreateAndGetEnvelope(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")

	got, err := db.GetEnvelope("alice", "e1")
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if got.Title != "Untitled" || got.Category != models.CategoryKnowledge || !got.Searchable {
		t.Errorf("envelope = %+v, want created fields back", got)
	}
	if got.Published() {
		t.Error("fresh envelope reports published")
	}
}

func TestGetEnvelope_OwnerScoped(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")

	if _, err := db.GetEnvelope("bob", "e1"); !errors.Is(err, apperr.ErrEnvelopeNotFound) {
		t.Errorf("err = %v, want ErrEnvelopeNotFound for foreign owner", err)
	}
}

func TestListEnvelopes_PagingAndFilter(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeEnvelope(t, db, "alice", "e2")
	now := time.Now().UTC()
	raw := &models.Envelope{ID: "e3", OwnerID: "alice", Category: models.CategoryRaw, CreatedAt: now, UpdatedAt: now}
	if err := db.CreateEnvelope(raw); err != nil {
		t.Fatalf("CreateEnvelope raw: %v", err)
	}
	makeEnvelope(t, db, "bob", "b1")

	got, total, err := db.ListEnvelopes("alice", 2, 0, "")
	if err != nil {
		t.Fatalf("ListEnvelopes: %v", err)
	}
	if total != 3 || len(got) != 2 {
		t.Errorf("total = %d len = %d, want 3 and 2", total, len(got))
	}

	got, total, err = db.ListEnvelopes("alice", 10, 0, models.CategoryRaw)
	if err != nil {
		t.Fatalf("ListEnvelopes(raw): %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].ID != "e3" {
		t.Errorf("raw filter: total = %d got = %+v, want only e3", total, got)
	}
}

func TestUpdateTitleAndSearchable(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")

	if err := db.UpdateTitle("alice", "e1", "Weekly Sync"); err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	if err := db.SetSearchable("alice", "e1", false); err != nil {
		t.Fatalf("SetSearchable: %v", err)
	}

	got, err := db.GetEnvelope("alice", "e1")
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if got.Title != "Weekly Sync" || got.Searchable {
		t.Errorf("envelope = %+v, want renamed and unsearchable", got)
	}

	if err := db.UpdateTitle("alice", "missing", "x"); !errors.Is(err, apperr.ErrEnvelopeNotFound) {
		t.Errorf("err = %v, want ErrEnvelopeNotFound", err)
	}
}

func TestVersionsAreAppendOnly(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeVersion(t, db, "alice", "e1", "v1", "first draft")
	makeVersion(t, db, "alice", "e1", "v2", "second draft")

	list, err := db.ListVersions("alice", "e1")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d versions, want 2", len(list))
	}

	got, err := db.GetVersion("alice", "e1", "v1")
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if got.Content != "first draft" || got.Metadata["source"] != "test" {
		t.Errorf("version = %+v, want original content and metadata", got)
	}
}

func TestCreateVersion_MissingEnvelope(t *testing.T) {
	db := testDB(t)
	v := &models.Version{ID: "v1", EnvelopeID: "ghost", CreatedAt: time.Now().UTC()}
	if err := db.CreateVersion("alice", v); !errors.Is(err, apperr.ErrEnvelopeNotFound) {
		t.Errorf("err = %v, want ErrEnvelopeNotFound", err)
	}
}

func TestGetVersion_OwnerScoped(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeVersion(t, db, "alice", "e1", "v1", "secret")

	if _, err := db.GetVersion("bob", "e1", "v1"); !errors.Is(err, apperr.ErrVersionNotFound) {
		t.Errorf("err = %v, want ErrVersionNotFound for foreign owner", err)
	}
}

func TestSetPublished(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeVersion(t, db, "alice", "e1", "v1", "live content")

	if err := db.SetPublished("alice", "e1", "v1"); err != nil {
		t.Fatalf("SetPublished: %v", err)
	}
	pub, err := db.PublishedVersion("alice", "e1")
	if err != nil {
		t.Fatalf("PublishedVersion: %v", err)
	}
	if pub.ID != "v1" || pub.Content != "live content" {
		t.Errorf("published = %+v, want v1", pub)
	}

	// Clearing the pointer puts the envelope back in draft.
	if err := db.SetPublished("alice", "e1", ""); err != nil {
		t.Fatalf("SetPublished(clear): %v", err)
	}
	if _, err := db.PublishedVersion("alice", "e1"); !errors.Is(err, apperr.ErrVersionNotFound) {
		t.Errorf("err = %v, want ErrVersionNotFound for draft", err)
	}
}

func TestSetPublished_ForeignVersionRefused(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeEnvelope(t, db, "alice", "e2")
	makeVersion(t, db, "alice", "e2", "v2", "other envelope")

	if err := db.SetPublished("alice", "e1", "v2"); !errors.Is(err, apperr.ErrVersionNotFound) {
		t.Errorf("err = %v, want ErrVersionNotFound for foreign version", err)
	}
}

func TestDeleteEnvelope_RemovesVersions(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeVersion(t, db, "alice", "e1", "v1", "content")

	if err := db.DeleteEnvelope("alice", "e1"); err != nil {
		t.Fatalf("DeleteEnvelope: %v", err)
	}
	if _, err := db.GetEnvelope("alice", "e1"); !errors.Is(err, apperr.ErrEnvelopeNotFound) {
		t.Errorf("envelope still readable: %v", err)
	}
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM versions WHERE envelope_id = 'e1'`).Scan(&count); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 0 {
		t.Errorf("%d orphan versions remain", count)
	}
}

func TestDeleteOwner(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeEnvelope(t, db, "alice", "e2")
	makeVersion(t, db, "alice", "e1", "v1", "content")
	makeEnvelope(t, db, "bob", "b1")

	ids, err := db.DeleteOwner("alice")
	if err != nil {
		t.Fatalf("DeleteOwner: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("deleted %d envelopes, want 2", len(ids))
	}
	if _, _, err := db.ListEnvelopes("alice", 10, 0, ""); err != nil {
		t.Fatalf("ListEnvelopes: %v", err)
	}
	if _, err := db.GetEnvelope("bob", "b1"); err != nil {
		t.Errorf("bob's envelope was touched: %v", err)
	}
}

func TestSearchableEnvelopeIDs(t *testing.T) {
	db := testDB(t)
	makeEnvelope(t, db, "alice", "e1")
	makeEnvelope(t, db, "alice", "e2")
	if err := db.SetSearchable("alice", "e2", false); err != nil {
		t.Fatalf("SetSearchable: %v", err)
	}

	ids, err := db.SearchableEnvelopeIDs("alice")
	if err != nil {
		t.Fatalf("SearchableEnvelopeIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "e1" {
		t.Errorf("ids = %v, want [e1]", ids)
	}
}
