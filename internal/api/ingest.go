package api

import (
	"encoding/base64"
	"net/http"

	"github.com/kalambet/keydocs/internal/ingest"
	"github.com/kalambet/keydocs/internal/segment"
)

const maxIngestBodySize = 10 << 20 // 10MB

// maxBulkEntries caps a single /ingest/bulk request.
const maxBulkEntries = 1000

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry ingest.Entry
		if !decodeBody(w, r, maxIngestBodySize, &entry) {
			return
		}
		id, err := deps.Ingest.IngestEntry(r.Context(), entry)
		if err != nil {
			storeError(w, err, "failed to ingest entry")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"chunk_id": id, "status": "indexed"})
	}
}

type BulkIngestRequest struct {
	Entries []ingest.Entry `json:"entries"`
}

type BulkIngestResponse struct {
	Ingested int `json:"ingested"`
	Total    int `json:"total"`
}

func handleBulkIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkIngestRequest
		if !decodeBody(w, r, maxIngestBodySize, &req) {
			return
		}
		if len(req.Entries) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "entries is required and must not be empty")
			return
		}
		if len(req.Entries) > maxBulkEntries {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at most %d entries per request", maxBulkEntries)
			return
		}

		n, err := deps.Ingest.BulkIngest(r.Context(), req.Entries)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "bulk ingest interrupted after %d entries: %v", n, err)
			return
		}
		writeJSON(w, http.StatusOK, BulkIngestResponse{Ingested: n, Total: len(req.Entries)})
	}
}

// DocumentRequest is the body of POST /ingest/document. Binary documents
// (PDF) are sent base64-encoded in ContentBase64 with a Filename whose
// extension selects the extractor; plain text may use Text directly.
type DocumentRequest struct {
	ingest.Document
	Filename      string `json:"filename,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
}

func handleIngestDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DocumentRequest
		if !decodeBody(w, r, maxIngestBodySize, &req) {
			return
		}

		doc := req.Document
		if req.ContentBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			text, err := segment.ExtractText(req.Filename, data)
			if err != nil {
				httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "failed to extract text from %s: %v", req.Filename, err)
				return
			}
			doc.Text = text
		}
		if doc.Name == "" {
			doc.Name = req.Filename
		}

		res, err := deps.Ingest.IngestDocument(r.Context(), doc)
		if err != nil {
			storeError(w, err, "failed to ingest document")
			return
		}
		if res.ChunkIDs == nil {
			res.ChunkIDs = []string{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}
