package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/keydocs/internal/docs"
)

type CreateSessionRequest struct {
	UserID      string   `json:"user_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	LibraryIDs  []string `json:"library_ids,omitempty"`
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		id, err := deps.Store.CreateChatSession(req.UserID, req.Title, req.Description, req.LibraryIDs)
		if err != nil {
			storeError(w, err, "failed to create session")
			return
		}
		sess, err := deps.Store.GetChatSession(id)
		if err != nil {
			storeError(w, err, "failed to read session")
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user query parameter is required")
			return
		}
		sessions := deps.Store.GetUserChatSessions(user)
		if sessions == nil {
			sessions = []docs.ChatSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func handleAddMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg docs.ChatMessage
		if !decodeBody(w, r, maxRequestBodySize, &msg) {
			return
		}
		msg.SessionID = chi.URLParam(r, "id")
		id, err := deps.Store.AddChatMessage(msg)
		if err != nil {
			storeError(w, err, "failed to add message")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetChatSession(id); err != nil {
			storeError(w, err, "failed to get session")
			return
		}
		writeJSON(w, http.StatusOK, deps.Store.GetChatMessages(id))
	}
}

func handleStoreGeneration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec docs.IntegrationGeneration
		if !decodeBody(w, r, maxIngestBodySize, &rec) {
			return
		}
		id, err := deps.Store.StoreIntegrationGeneration(rec)
		if err != nil {
			storeError(w, err, "failed to store generation")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func handleListGenerations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gens := deps.Store.GetIntegrationGenerations(r.URL.Query().Get("user"))
		if gens == nil {
			gens = []docs.IntegrationGeneration{}
		}
		writeJSON(w, http.StatusOK, gens)
	}
}
