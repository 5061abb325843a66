package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/parser"
)

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents with optional pagination and category filter
//	@Tags			documents
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			category	query		string	false	"Filter by category"	Enums(knowledge, raw)
//	@Success		200			{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	category := q.Get("category")

	docs, total, err := h.svc.ListDocuments(r.Context(), OwnerFromContext(r.Context()), limit, offset, category)
	if err != nil {
		writeDomainError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: total})
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a document envelope
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), OwnerFromContext(r.Context()), docservice.CreateInput{
		WorkspaceID: req.WorkspaceID,
		Title:       req.Title,
		Category:    req.Category,
		Searchable:  req.Searchable,
	})
	if err != nil {
		writeDomainError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GetDocument handles GET /api/documents/{id}.
//
//	@Summary		Get a single document envelope
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	Document
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.GetDocument(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// RenameDocument handles PATCH /api/documents/{id}.
//
//	@Summary		Rename a document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Document ID"
//	@Param			body	body		RenameDocumentRequest	true	"New title"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [patch]
func (h *Handler) RenameDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RenameDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	doc, err := h.svc.RenameDocument(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		writeDomainError(w, "rename document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/{id}.
//
//	@Summary		Delete a document with its versions and index entries
//	@Tags			documents
//	@Param			id	path	string	true	"Document ID"
//	@Success		204	"Document deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDocument(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveVersion handles POST /api/documents/{id}/versions.
//
//	@Summary		Append an immutable content version
//	@Tags			versions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Document ID"
//	@Param			body	body		SaveVersionRequest	true	"Version content"
//	@Success		201		{object}	models.Version
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/versions [post]
func (h *Handler) SaveVersion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req SaveVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	v, err := h.svc.SaveVersion(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.Content, req.Metadata)
	if err != nil {
		writeDomainError(w, "save version", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// ListVersions handles GET /api/documents/{id}/versions.
//
//	@Summary		List a document's version history, newest first
//	@Tags			versions
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	VersionListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/versions [get]
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ListVersions(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "list versions", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionListResponse{Versions: versions})
}

// GetVersion handles GET /api/documents/{id}/versions/{versionID}.
//
//	@Summary		Get one version with its full content
//	@Tags			versions
//	@Produce		json
//	@Param			id			path		string	true	"Document ID"
//	@Param			versionID	path		string	true	"Version ID"
//	@Success		200			{object}	models.Version
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/versions/{versionID} [get]
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVersion(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		writeDomainError(w, "get version", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetPublished handles GET /api/documents/{id}/published.
//
//	@Summary		Get the currently published version
//	@Tags			versions
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	models.Version
//	@Failure		404	{object}	errResponse	"Document missing or draft-only"
//	@Security		BearerAuth
//	@Router			/documents/{id}/published [get]
func (h *Handler) GetPublished(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.PublishedVersion(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "get published version", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Publish handles POST /api/documents/{id}/publish.
//
//	@Summary		Publish a version and index it when the document is searchable
//	@Tags			publishing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Document ID"
//	@Param			body	body		PublishRequest	true	"Version to publish"
//	@Success		200		{object}	IngestResult
//	@Success		204		"Published without indexing"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.VersionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("version_id is required"))
		return
	}
	res, err := h.svc.Publish(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.VersionID, docservice.IngestOptions{})
	if err != nil {
		writeDomainError(w, "publish", err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Unpublish handles DELETE /api/documents/{id}/publish.
//
//	@Summary		Clear the publish pointer and drop the document from the index
//	@Tags			publishing
//	@Param			id	path	string	true	"Document ID"
//	@Success		204	"Unpublished"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/publish [delete]
func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unpublish(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "unpublish", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSearchable handles PUT /api/documents/{id}/searchable.
//
//	@Summary		Flip the searchable gate, indexing or de-indexing as needed
//	@Tags			publishing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Document ID"
//	@Param			body	body		SearchableRequest	true	"New gate value"
//	@Success		200		{object}	IngestResult
//	@Success		204		"Gate updated without indexing"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/searchable [put]
func (h *Handler) SetSearchable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SearchableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.SetSearchable(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.Searchable)
	if err != nil {
		writeDomainError(w, "set searchable", err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RetryChunks handles POST /api/documents/{id}/retry.
//
//	@Summary		Re-index chunks a previous ingest report marked as failed
//	@Tags			publishing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Document ID"
//	@Param			body	body		RetryChunksRequest	true	"Chunk IDs to retry"
//	@Success		200		{object}	IngestResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/retry [post]
func (h *Handler) RetryChunks(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RetryChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.ChunkIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("chunk_ids is required"))
		return
	}
	res, err := h.svc.RetryChunks(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.ChunkIDs, docservice.IngestOptions{})
	if err != nil {
		writeDomainError(w, "retry chunks", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Similarity search across the owner's searchable documents
//	@Tags			search
//	@Produce		json
//	@Param			q			query		string	true	"Search query"
//	@Param			limit		query		int		false	"Max results"
//	@Param			topic		query		string	false	"Restrict to one topic"
//	@Param			documents	query		string	false	"Comma-separated document IDs to search in"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	opts := docservice.SearchOptions{
		TopK:  limit,
		Topic: r.URL.Query().Get("topic"),
	}
	if docs := r.URL.Query().Get("documents"); docs != "" {
		opts.Documents = strings.Split(docs, ",")
	}
	matches, err := h.svc.Search(r.Context(), OwnerFromContext(r.Context()), q, opts)
	if err != nil {
		writeDomainError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Matches: matches})
}

// Preview handles POST /api/preview.
//
//	@Summary		Dry-run the chunking pipeline without touching the index
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"Content to preview"
//	@Success		200		{object}	IngestResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	res, err := h.svc.Ingest(r.Context(), OwnerFromContext(r.Context()), "", req.Content, docservice.IngestOptions{
		Format:    parser.Format(req.Format),
		ChunkSize: req.ChunkSize,
		Topics:    req.Topics,
		DryRun:    true,
	})
	if err != nil {
		writeDomainError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EraseAccount handles DELETE /api/account.
//
//	@Summary		Erase everything the owner has stored
//	@Tags			account
//	@Produce		json
//	@Success		200	{object}	EraseResponse
//	@Security		BearerAuth
//	@Router			/account [delete]
func (h *Handler) EraseAccount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.EraseOwner(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, "erase account", err)
		return
	}
	writeJSON(w, http.StatusOK, EraseResponse{DeletedDocuments: n})
}
