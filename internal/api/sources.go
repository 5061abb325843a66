package api

import (
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/parser"
)

// maxSourceBytes caps uploaded source payloads at 50 MB.
const maxSourceBytes = 50 << 20

// UploadSource handles POST /api/sources (multipart/form-data, field "file").
//
//	@Summary		Upload a source file: archive it, version it, publish and index it
//	@Tags			sources
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Transcript or text file"
//	@Param			format	query		string	false	"Format pin"	Enums(vtt, srt, transcript, text)
//	@Success		201		{object}	SourceResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources [post]
func (h *Handler) UploadSource(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSourceBytes)

	if err := r.ParseMultipartForm(maxSourceBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	opts := docservice.IngestOptions{Format: parser.Format(r.URL.Query().Get("format"))}
	res, err := h.svc.IngestSource(r.Context(), OwnerFromContext(r.Context()), header.Filename, content, opts)
	if err != nil {
		writeDomainError(w, "upload source", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListSources handles GET /api/sources.
//
//	@Summary		List the owner's archived source files
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	SourceListResponse
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListSources(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, "list sources", err)
		return
	}
	writeJSON(w, http.StatusOK, SourceListResponse{Sources: infos})
}

// DownloadSource handles GET /api/sources/{key}.
//
//	@Summary		Download an archived source file
//	@Tags			sources
//	@Produce		octet-stream
//	@Param			key	path		string	true	"Blob key from the source list"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{key} [get]
func (h *Handler) DownloadSource(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, err := h.svc.ReadSource(r.Context(), OwnerFromContext(r.Context()), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorBody("source not found"))
			return
		}
		writeDomainError(w, "download source", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+key+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
