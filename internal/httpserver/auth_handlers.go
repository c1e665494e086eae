package httpserver

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/skillhub/skillhub/internal/auth"
	"github.com/skillhub/skillhub/internal/store"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	User         *store.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		respondError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "hash password")
		return
	}
	user, err := s.store.CreateUser(r.Context(), req.Email, hash, strings.TrimSpace(req.DisplayName))
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Printf("register: %v", err)
		respondError(w, http.StatusInternalServerError, "create user")
		return
	}

	s.issueTokens(w, r, user, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup user")
		return
	}
	if user == nil || !user.IsActive || !s.auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueTokens(w, r, user, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stored, err := s.store.GetRefreshToken(r.Context(), auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup token")
		return
	}
	if stored == nil || stored.Revoked || time.Now().After(stored.ExpiresAt) {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, err := s.store.GetUser(r.Context(), stored.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup user")
		return
	}
	if user == nil || !user.IsActive {
		respondError(w, http.StatusUnauthorized, "account unavailable")
		return
	}

	// Rotation: the presented token is retired with every use.
	if err := s.store.RevokeRefreshToken(r.Context(), stored.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "revoke token")
		return
	}
	s.issueTokens(w, r, user, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, user *store.User, status int) {
	access, err := s.auth.IssueToken(user.ID, s.cfg.AccessTokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "issue token")
		return
	}
	refresh, refreshHash, err := auth.NewRefreshToken()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "issue refresh token")
		return
	}
	if _, err := s.store.CreateRefreshToken(r.Context(), user.ID, refreshHash, time.Now().Add(s.cfg.RefreshTokenTTL)); err != nil {
		respondError(w, http.StatusInternalServerError, "persist refresh token")
		return
	}
	respondJSON(w, status, tokenResponse{User: user, AccessToken: access, RefreshToken: refresh})
}
