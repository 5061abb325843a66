package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/embed"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/sse"
	"github.com/starford/mimir/internal/testutil"
	"github.com/starford/mimir/internal/vecindex"
	"github.com/starford/mimir/internal/vecstore"
)

const apiTranscript = `[00:00] Alice: The quarterly budget is our first topic.
[00:05] Bob: Budget numbers came in above forecast.
[00:10] Alice: Next item is the hiring plan.
[00:15] Bob: Two offers are out already.`

// testEnv sets up a temp store, vector index, blob archive, and router.
// tokens non-nil enables Bearer auth with the given token-to-owner map.
func testEnv(t *testing.T, tokens map[string]string) (*docservice.Service, http.Handler) {
	t.Helper()
	svc := testService(t)
	return svc, NewRouter(svc, tokens != nil, tokens, nil)
}

func testService(t *testing.T) *docservice.Service {
	t.Helper()

	db := testutil.TestStore(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mgr := vecindex.New(embed.NewLocal(16), vecstore.NewMemory(), logger, vecindex.Options{RetryDelay: time.Millisecond})
	return docservice.NewService(db, mgr, testutil.TestArchive(t), logger, docservice.Config{ChunkSize: 2})
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createDocument(t *testing.T, router http.Handler, title string) models.Envelope {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/documents", map[string]string{"title": title}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create document = %d, body = %s", w.Code, w.Body.String())
	}
	var doc models.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func saveVersion(t *testing.T, router http.Handler, docID, content string) models.Version {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/documents/"+docID+"/versions", map[string]string{"content": content}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("save version = %d, body = %s", w.Code, w.Body.String())
	}
	var v models.Version
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCreateAndGetDocument(t *testing.T) {
	_, router := testEnv(t, nil)

	doc := createDocument(t, router, "Handbook")
	if doc.Title != "Handbook" || !doc.Searchable {
		t.Errorf("created doc = %+v, want searchable Handbook", doc)
	}

	w := doJSON(t, router, http.MethodGet, "/documents/"+doc.ID, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != doc.ID || got.Title != "Handbook" {
		t.Errorf("got = %+v", got)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	_, router := testEnv(t, nil)

	w := doJSON(t, router, http.MethodGet, "/documents/nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestPublishFlow(t *testing.T) {
	_, router := testEnv(t, nil)
	doc := createDocument(t, router, "Standup")
	v := saveVersion(t, router, doc.ID, apiTranscript)

	// Draft only: nothing searchable yet.
	w := doJSON(t, router, http.MethodGet, "/search?q=budget", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var sr SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if len(sr.Matches) != 0 {
		t.Fatalf("draft leaked into search: %+v", sr.Matches)
	}

	// Publish and expect an ingest result.
	w = doJSON(t, router, http.MethodPost, "/documents/"+doc.ID+"/publish", map[string]string{"version_id": v.ID}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("publish = %d, body = %s", w.Code, w.Body.String())
	}
	var res IngestResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.ChunkCount != 2 || res.Report == nil || res.Report.Indexed != 2 {
		t.Fatalf("ingest result = %+v, want 2 indexed chunks", res)
	}

	// Now search hits.
	w = doJSON(t, router, http.MethodGet, "/search?q=quarterly+budget", nil, "")
	sr = SearchResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if len(sr.Matches) == 0 || sr.Matches[0].DocumentID != doc.ID {
		t.Fatalf("matches = %+v, want hits for %s", sr.Matches, doc.ID)
	}

	// Unpublish drops it again.
	w = doJSON(t, router, http.MethodDelete, "/documents/"+doc.ID+"/publish", nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("unpublish = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/search?q=budget", nil, "")
	sr = SearchResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if len(sr.Matches) != 0 {
		t.Errorf("matches after unpublish = %+v, want none", sr.Matches)
	}
}

func TestPublishUnknownVersion(t *testing.T) {
	_, router := testEnv(t, nil)
	doc := createDocument(t, router, "Standup")

	w := doJSON(t, router, http.MethodPost, "/documents/"+doc.ID+"/publish", map[string]string{"version_id": "ghost"}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("publish unknown version = %d, want 404", w.Code)
	}
}

func TestVersionHistory(t *testing.T) {
	_, router := testEnv(t, nil)
	doc := createDocument(t, router, "Notes")

	v1 := saveVersion(t, router, doc.ID, "first draft")
	v2 := saveVersion(t, router, doc.ID, "second draft")

	w := doJSON(t, router, http.MethodGet, "/documents/"+doc.ID+"/versions", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list versions = %d", w.Code)
	}
	var vl VersionListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &vl)
	if len(vl.Versions) != 2 || vl.Versions[0].ID != v2.ID {
		t.Errorf("versions = %+v, want newest first", vl.Versions)
	}

	w = doJSON(t, router, http.MethodGet, "/documents/"+doc.ID+"/versions/"+v1.ID, nil, "")
	var got models.Version
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Content != "first draft" {
		t.Errorf("version content = %q", got.Content)
	}

	// No publish pointer yet.
	w = doJSON(t, router, http.MethodGet, "/documents/"+doc.ID+"/published", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("published on draft = %d, want 404", w.Code)
	}
}

func TestRenameDocument(t *testing.T) {
	_, router := testEnv(t, nil)
	doc := createDocument(t, router, "Old name")

	w := doJSON(t, router, http.MethodPatch, "/documents/"+doc.ID, map[string]string{"title": "New name"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "New name" {
		t.Errorf("title = %q, want New name", got.Title)
	}
}

func TestSetSearchableRoundTrip(t *testing.T) {
	_, router := testEnv(t, nil)
	doc := createDocument(t, router, "Standup")
	v := saveVersion(t, router, doc.ID, apiTranscript)
	_ = doJSON(t, router, http.MethodPost, "/documents/"+doc.ID+"/publish", map[string]string{"version_id": v.ID}, "")

	w := doJSON(t, router, http.MethodPut, "/documents/"+doc.ID+"/searchable", map[string]bool{"searchable": false}, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("disable = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/search?q=budget", nil, "")
	var sr SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if len(sr.Matches) != 0 {
		t.Errorf("matches while unsearchable = %+v", sr.Matches)
	}

	w = doJSON(t, router, http.MethodPut, "/documents/"+doc.ID+"/searchable", map[string]bool{"searchable": true}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("enable = %d, body = %s", w.Code, w.Body.String())
	}
	var res IngestResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Report == nil || res.Report.Indexed != 2 {
		t.Errorf("re-enable result = %+v, want 2 indexed", res)
	}
}

func TestDeleteDocument(t *testing.T) {
	_, router := testEnv(t, nil)
	doc := createDocument(t, router, "Bye")

	w := doJSON(t, router, http.MethodDelete, "/documents/"+doc.ID, nil, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/documents/"+doc.ID, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListDocumentsPaging(t *testing.T) {
	_, router := testEnv(t, nil)
	for _, title := range []string{"a", "b", "c"} {
		createDocument(t, router, title)
	}

	w := doJSON(t, router, http.MethodGet, "/documents?limit=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Documents) != 2 || resp.Total != 3 {
		t.Errorf("page = %d docs, total %d, want 2 and 3", len(resp.Documents), resp.Total)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, nil)

	w := doJSON(t, router, http.MethodGet, "/search", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	_, router := testEnv(t, nil)

	w := doJSON(t, router, http.MethodPost, "/preview", map[string]any{"content": apiTranscript, "chunk_size": 2}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d, body = %s", w.Code, w.Body.String())
	}
	var res IngestResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Chunks) != 2 || res.Report != nil {
		t.Errorf("preview result = %+v, want 2 chunks and no report", res)
	}

	// Preview never hits the index.
	sw := doJSON(t, router, http.MethodGet, "/search?q=budget", nil, "")
	var sr SearchResponse
	_ = json.Unmarshal(sw.Body.Bytes(), &sr)
	if len(sr.Matches) != 0 {
		t.Errorf("preview leaked into search: %+v", sr.Matches)
	}
}

func TestEraseAccount(t *testing.T) {
	_, router := testEnv(t, nil)
	createDocument(t, router, "a")
	createDocument(t, router, "b")

	w := doJSON(t, router, http.MethodDelete, "/account", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("erase = %d", w.Code)
	}
	var resp EraseResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.DeletedDocuments != 2 {
		t.Errorf("deleted = %d, want 2", resp.DeletedDocuments)
	}

	w = doJSON(t, router, http.MethodGet, "/documents", nil, "")
	var list DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("total after erase = %d, want 0", list.Total)
	}
}

// Auth tests.

func TestAuth_TokenMapsToOwner(t *testing.T) {
	_, router := testEnv(t, map[string]string{"tok-alice": "alice", "tok-bob": "bob"})

	w := doJSON(t, router, http.MethodPost, "/documents", map[string]string{"title": "Alice's"}, "tok-alice")
	if w.Code != http.StatusCreated {
		t.Fatalf("authed create = %d, want 201", w.Code)
	}

	// Bob sees an empty namespace.
	w = doJSON(t, router, http.MethodGet, "/documents", nil, "tok-bob")
	if w.Code != http.StatusOK {
		t.Fatalf("bob list = %d", w.Code)
	}
	var resp DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 0 {
		t.Errorf("bob sees %d of alice's documents", resp.Total)
	}

	// Alice sees her own.
	w = doJSON(t, router, http.MethodGet, "/documents", nil, "tok-alice")
	resp = DocumentListResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("alice sees %d documents, want 1", resp.Total)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	_, router := testEnv(t, map[string]string{"secret123": "alice"})

	w := doJSON(t, router, http.MethodGet, "/documents", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuth_WrongToken(t *testing.T) {
	_, router := testEnv(t, map[string]string{"secret123": "alice"})

	w := doJSON(t, router, http.MethodGet, "/documents", nil, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuth_Disabled(t *testing.T) {
	_, router := testEnv(t, nil)

	w := doJSON(t, router, http.MethodGet, "/documents", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func testEnvWithSSE(t *testing.T, tokens map[string]string) http.Handler {
	t.Helper()
	svc := testService(t)
	broker := sse.NewBroker(time.Minute)
	t.Cleanup(broker.Close)
	return NewRouter(svc, tokens != nil, tokens, broker)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, map[string]string{"secret": "alice"})

	w := doJSON(t, router, http.MethodGet, "/events", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, map[string]string{"tok": "alice"})

	// The stream blocks until the request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// Source upload tests.

func uploadSource(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadListAndDownloadSource(t *testing.T) {
	_, router := testEnv(t, nil)

	w := uploadSource(t, router, "standup.txt", []byte(apiTranscript))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var res SourceResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Envelope == nil || res.BlobKey == "" {
		t.Fatalf("upload result = %s", w.Body.String())
	}
	if res.Envelope.Category != models.CategoryRaw {
		t.Errorf("category = %q, want raw", res.Envelope.Category)
	}

	w = doJSON(t, router, http.MethodGet, "/sources", nil, "")
	var list SourceListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Sources) != 1 || list.Sources[0].Key != res.BlobKey {
		t.Errorf("sources = %+v, want the uploaded key", list.Sources)
	}

	w = doJSON(t, router, http.MethodGet, "/sources/"+res.BlobKey, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("download = %d", w.Code)
	}
	if w.Body.String() != apiTranscript {
		t.Error("downloaded bytes differ from the upload")
	}
}

func TestDownloadSource_NotFound(t *testing.T) {
	_, router := testEnv(t, nil)

	w := doJSON(t, router, http.MethodGet, "/sources/nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing source = %d, want 404", w.Code)
	}
}

func TestUploadSource_MissingFileField(t *testing.T) {
	_, router := testEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestUploadSource_PinnedFormatRejected(t *testing.T) {
	_, router := testEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "notes.srt")
	_, _ = part.Write([]byte("prose, not cues"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sources?format=srt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("pinned mismatch = %d, want 400", w.Code)
	}
}
