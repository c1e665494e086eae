package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillhub/skillhub/internal/store"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	items, err := s.store.ListNotifications(r.Context(), currentUser(r).ID, unreadOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list notifications")
		return
	}
	if items == nil {
		items = []store.Notification{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

type updateNotificationRequest struct {
	Read bool `json:"read"`
}

func (s *Server) handleUpdateNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetNotification(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup notification")
		return
	}
	if n == nil || n.UserID != currentUser(r).ID {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	var req updateNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := s.store.SetNotificationRead(r.Context(), n.ID, req.Read)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "update notification")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
