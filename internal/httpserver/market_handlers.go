package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/skillhub/skillhub/internal/store"
)

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	fav, err := s.store.AddFavorite(r.Context(), currentUser(r).ID, sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "add favorite")
		return
	}
	respondJSON(w, http.StatusOK, fav)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	if err := s.store.RemoveFavorite(r.Context(), currentUser(r).ID, sk.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "remove favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := s.store.ListFavorites(r.Context(), currentUser(r).ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list favorites")
		return
	}
	if favs == nil {
		favs = []store.SkillFavorite{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"favorites": favs})
}

type ratingRequest struct {
	Rating int `json:"rating"`
}

type ratingResponse struct {
	Rating  *store.SkillRating  `json:"rating"`
	Summary store.RatingSummary `json:"summary"`
}

func (s *Server) handleUpsertRating(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	rating, err := s.store.UpsertRating(r.Context(), currentUser(r).ID, sk.ID, req.Rating)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "save rating")
		return
	}
	summary, err := s.store.RatingSummary(r.Context(), sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rating summary")
		return
	}
	respondJSON(w, http.StatusOK, ratingResponse{Rating: rating, Summary: summary})
}

func (s *Server) handleRatingSummary(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	summary, err := s.store.RatingSummary(r.Context(), sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rating summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type commentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	user := currentUser(r)
	comment, err := s.store.AddComment(r.Context(), user.ID, sk.ID, req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "add comment")
		return
	}
	if sk.OwnerID != "" && sk.OwnerID != user.ID {
		_, _ = s.store.CreateNotification(r.Context(), sk.OwnerID, "comment",
			fmt.Sprintf("New comment on %q", sk.Name))
	}
	respondJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	comments, err := s.store.ListComments(r.Context(), sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list comments")
		return
	}
	if comments == nil {
		comments = []store.SkillComment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"comments": comments})
}
