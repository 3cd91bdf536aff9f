// Package api exposes the documentation store, ingestion, search and
// credential relevance engine over HTTP and MCP.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/docstore"
	"github.com/kalambet/keydocs/internal/ingest"
	"github.com/kalambet/keydocs/internal/relevance"
	"github.com/kalambet/keydocs/internal/search"
)

type AppDeps struct {
	Store     *docstore.Store
	Ingest    *ingest.Service
	Relevance *relevance.Engine
	Token     string
	// SearchDefaults fill fields a search request leaves unset.
	SearchDefaults search.Params
	Logger         *slog.Logger
}

// NewAppHandler returns the HTTP API. Every route except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SearchDefaults.MaxResults == 0 {
		deps.SearchDefaults = search.DefaultParams()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger(deps.Logger))
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token, deps.Logger))

		r.Get("/libraries", handleListLibraries(deps))
		r.Post("/libraries", handleCreateLibrary(deps))
		r.Get("/libraries/{id}", handleGetLibrary(deps))
		r.Delete("/libraries/{id}", handleDeleteLibrary(deps))
		r.Get("/libraries/{id}/chunks", handleLibraryChunks(deps))

		r.Post("/ingest", handleIngest(deps))
		r.Post("/ingest/bulk", handleBulkIngest(deps))
		r.Post("/ingest/document", handleIngestDocument(deps))

		r.Post("/search", handleSearch(deps))
		r.Get("/stats", handleStats(deps))

		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Post("/sessions/{id}/messages", handleAddMessage(deps))
		r.Get("/sessions/{id}/messages", handleListMessages(deps))
		r.Post("/generations", handleStoreGeneration(deps))
		r.Get("/generations", handleListGenerations(deps))

		r.Post("/context/analyze", handleAnalyzeContext(deps))
		r.Post("/context/usage", handleRecordUsage(deps))
		r.Post("/context/security", handleAssessSecurity(deps))
	})

	return r
}

func handleListLibraries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var libs []docs.Library
		if provider := r.URL.Query().Get("provider"); provider != "" {
			libs = deps.Store.GetLibrariesByProvider(provider)
		} else {
			libs = deps.Store.ListLibraries()
		}
		if libs == nil {
			libs = []docs.Library{}
		}
		writeJSON(w, http.StatusOK, libs)
	}
}

func handleCreateLibrary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var lib docs.Library
		if !decodeBody(w, r, maxRequestBodySize, &lib) {
			return
		}
		id, err := deps.Store.AddLibrary(lib)
		if err != nil {
			storeError(w, err, "failed to create library")
			return
		}
		created, err := deps.Store.GetLibrary(id)
		if err != nil {
			storeError(w, err, "failed to read library")
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetLibrary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lib, err := deps.Store.GetLibrary(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "failed to get library")
			return
		}
		writeJSON(w, http.StatusOK, lib)
	}
}

func handleDeleteLibrary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteLibrary(chi.URLParam(r, "id")); err != nil {
			storeError(w, err, "failed to delete library")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleLibraryChunks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks, err := deps.Store.GetLibraryChunks(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "failed to list chunks")
			return
		}
		if chunks == nil {
			chunks = []docs.Chunk{}
		}
		writeJSON(w, http.StatusOK, chunks)
	}
}

// SearchRequest is the body of POST /search. Pointer fields distinguish
// "unset" from an explicit zero.
type SearchRequest struct {
	Query           string             `json:"query"`
	LibraryIDs      []string           `json:"library_ids,omitempty"`
	ContentTypes    []docs.ContentType `json:"content_types,omitempty"`
	SectionFilter   []string           `json:"section_filter,omitempty"`
	MinSimilarity   *float64           `json:"min_similarity,omitempty"`
	MaxResults      int                `json:"max_results,omitempty"`
	BoostRecent     *bool              `json:"boost_recent,omitempty"`
	IncludeMetadata *bool              `json:"include_metadata,omitempty"`
}

// Params merges the request over defaults.
func (req SearchRequest) Params(defaults search.Params) search.Params {
	p := defaults
	p.LibraryIDs = req.LibraryIDs
	p.ContentTypes = req.ContentTypes
	p.SectionFilter = req.SectionFilter
	if req.MinSimilarity != nil {
		p.MinSimilarity = *req.MinSimilarity
	}
	if req.MaxResults > 0 {
		p.MaxResults = req.MaxResults
	}
	if req.BoostRecent != nil {
		p.BoostRecent = *req.BoostRecent
	}
	if req.IncludeMetadata != nil {
		p.IncludeMetadata = *req.IncludeMetadata
	}
	return p
}

type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if req.MinSimilarity != nil && (*req.MinSimilarity < 0 || *req.MinSimilarity > 1) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "min_similarity must be in [0, 1]")
			return
		}

		results, err := deps.Ingest.Search(r.Context(), req.Query, req.Params(deps.SearchDefaults))
		if err != nil {
			storeError(w, err, "search failed")
			return
		}
		if results == nil {
			results = []search.Result{}
		}
		writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: results})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Store.GetLibraryStats())
	}
}
