package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skillhub/skillhub/internal/store"
)

type createChatRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.store.CreateChatSession(r.Context(), currentUser(r).ID, strings.TrimSpace(req.Title))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create session")
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListChatSessions(r.Context(), currentUser(r).ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list sessions")
		return
	}
	if sessions == nil {
		sessions = []store.ChatSession{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// loadOwnSession fetches a chat session and enforces ownership.
func (s *Server) loadOwnSession(w http.ResponseWriter, r *http.Request, sessionID string) *store.ChatSession {
	sess, err := s.store.GetChatSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup session")
		return nil
	}
	if sess == nil || sess.UserID != currentUser(r).ID {
		respondError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return sess
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	sess := s.loadOwnSession(w, r, chi.URLParam(r, "sessionID"))
	if sess == nil {
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sess := s.loadOwnSession(w, r, chi.URLParam(r, "sessionID"))
	if sess == nil {
		return
	}
	q := r.URL.Query()
	msgs, err := s.store.ListMessages(r.Context(), sess.ID, parseQueryInt(q.Get("limit"), 0), parseQueryInt(q.Get("offset"), 0))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list messages")
		return
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	SkillID string `json:"skill_id"`
}

// handleCreateMessage records a message without triggering a generation.
// Assistant messages are only ever written by the streaming pipeline.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	sess := s.loadOwnSession(w, r, chi.URLParam(r, "sessionID"))
	if sess == nil {
		return
	}
	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	role := store.ChatRole(req.Role)
	if req.Role == "" {
		role = store.ChatRoleUser
	}
	if role != store.ChatRoleUser && role != store.ChatRoleSystem {
		respondError(w, http.StatusBadRequest, "role must be user or system")
		return
	}
	msg, err := s.store.CreateMessage(r.Context(), sess.ID, role, req.Content, req.SkillID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create message")
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

type createSuggestionRequest struct {
	SkillID   string `json:"skill_id"`
	MessageID string `json:"message_id"`
}

func (s *Server) handleCreateSuggestion(w http.ResponseWriter, r *http.Request) {
	sess := s.loadOwnSession(w, r, chi.URLParam(r, "sessionID"))
	if sess == nil {
		return
	}
	var req createSuggestionRequest
	if err := decodeJSON(r, &req); err != nil || req.SkillID == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sk, err := s.store.GetSkill(r.Context(), req.SkillID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup skill")
		return
	}
	if sk == nil || sk.Deleted {
		respondError(w, http.StatusNotFound, "skill not found")
		return
	}

	// Once the user rejects a suggestion, the session stops suggesting.
	rejected, err := s.store.HasRejectedSuggestion(r.Context(), sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "check suggestions")
		return
	}
	if rejected {
		respondError(w, http.StatusConflict, "suggestions disabled for this session")
		return
	}

	sg, err := s.store.CreateSuggestion(r.Context(), sess.ID, req.SkillID, req.MessageID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create suggestion")
		return
	}
	respondJSON(w, http.StatusCreated, sg)
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	sess := s.loadOwnSession(w, r, chi.URLParam(r, "sessionID"))
	if sess == nil {
		return
	}
	suggestions, err := s.store.ListSuggestions(r.Context(), sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []store.SkillSuggestion{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type updateSuggestionRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, err := s.store.GetSuggestion(r.Context(), chi.URLParam(r, "suggestionID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup suggestion")
		return
	}
	if sg == nil {
		respondError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	sess := s.loadOwnSession(w, r, sg.SessionID)
	if sess == nil {
		return
	}
	var req updateSuggestionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := store.SuggestionStatus(req.Status)
	if status != store.SuggestionAccepted && status != store.SuggestionRejected {
		respondError(w, http.StatusBadRequest, "status must be accepted or rejected")
		return
	}
	if sg.Status != store.SuggestionPending {
		respondError(w, http.StatusConflict, "suggestion already resolved")
		return
	}

	updated, err := s.store.UpdateSuggestionStatus(r.Context(), sg.ID, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "update suggestion")
		return
	}
	if status == store.SuggestionAccepted {
		if sk, err := s.store.GetSkill(r.Context(), sg.SkillID); err == nil && sk != nil && sk.OwnerID != "" && sk.OwnerID != currentUser(r).ID {
			_, _ = s.store.CreateNotification(r.Context(), sk.OwnerID, "suggestion_accepted",
				fmt.Sprintf("%q was picked up in a chat", sk.Name))
		}
	}
	respondJSON(w, http.StatusOK, updated)
}
