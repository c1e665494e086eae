package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skillhub/skillhub/internal/store"
)

type memoryRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Scope string `json:"scope"`
}

func (s *Server) handleUpsertMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		respondError(w, http.StatusBadRequest, "key is required")
		return
	}
	m, err := s.store.UpsertMemory(r.Context(), currentUser(r).ID, req.Key, req.Value, req.Scope)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "save memory")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListMemories(r.Context(), currentUser(r).ID, r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list memories")
		return
	}
	if items == nil {
		items = []store.MemoryItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": items})
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMemory(r.Context(), chi.URLParam(r, "memoryID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup memory")
		return
	}
	if m == nil || m.UserID != currentUser(r).ID {
		respondError(w, http.StatusNotFound, "memory not found")
		return
	}
	var req memoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := s.store.UpdateMemory(r.Context(), m.ID, req.Value, req.Scope)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "update memory")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
