package api

import (
	"net/http"

	"github.com/kalambet/keydocs/internal/relevance"
)

type AnalyzeContextRequest struct {
	Context      relevance.Context `json:"context"`
	CandidateIDs []string          `json:"candidate_ids"`
}

type RecordUsageRequest struct {
	CredentialID string            `json:"credential_id"`
	Context      relevance.Context `json:"context"`
	Success      bool              `json:"success"`
}

type SecurityRequest struct {
	Context relevance.Context `json:"context"`
}

func handleAnalyzeContext(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeContextRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		writeJSON(w, http.StatusOK, deps.Relevance.AnalyzeContext(req.Context, req.CandidateIDs))
	}
}

func handleRecordUsage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordUsageRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if err := deps.Relevance.RecordUsage(req.CredentialID, req.Context, req.Success); err != nil {
			storeError(w, err, "failed to record usage")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

func handleAssessSecurity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SecurityRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		writeJSON(w, http.StatusOK, deps.Relevance.SecurityScore(req.Context))
	}
}
