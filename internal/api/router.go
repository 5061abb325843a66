package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced; tokens maps
// each accepted token to the owner it acts as.
// broker, if non-nil, serves the owner-scoped event stream at GET /events.
func NewRouter(svc *docservice.Service, authEnabled bool, tokens map[string]string, broker *sse.Broker) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, tokens))

	// Documents CRUD.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/{id}", h.GetDocument)
	r.Patch("/documents/{id}", h.RenameDocument)
	r.Delete("/documents/{id}", h.DeleteDocument)

	// Versions.
	r.Post("/documents/{id}/versions", h.SaveVersion)
	r.Get("/documents/{id}/versions", h.ListVersions)
	r.Get("/documents/{id}/versions/{versionID}", h.GetVersion)
	r.Get("/documents/{id}/published", h.GetPublished)

	// Publishing and indexing.
	r.Post("/documents/{id}/publish", h.Publish)
	r.Delete("/documents/{id}/publish", h.Unpublish)
	r.Put("/documents/{id}/searchable", h.SetSearchable)
	r.Post("/documents/{id}/retry", h.RetryChunks)

	// Search.
	r.Get("/search", h.Search)
	r.Post("/preview", h.Preview)

	// Archived sources.
	r.Post("/sources", h.UploadSource)
	r.Get("/sources", h.ListSources)
	r.Get("/sources/{key}", h.DownloadSource)

	// Account.
	r.Delete("/account", h.EraseAccount)

	// SSE endpoint (protected by the same auth middleware).
	if broker != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			broker.Stream(OwnerFromContext(r.Context()), w, r)
		})
	}

	return r
}
