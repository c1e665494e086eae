// Package httpserver exposes the REST and SSE API of skillhubd.
package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillhub/skillhub/internal/aistream"
	"github.com/skillhub/skillhub/internal/auth"
	"github.com/skillhub/skillhub/internal/config"
	"github.com/skillhub/skillhub/internal/provider"
	"github.com/skillhub/skillhub/internal/store"
)

type contextKey string

const userKey contextKey = "user"

// Server wires the domain services into an http.Handler.
type Server struct {
	cfg     config.ServerConfig
	store   store.Store
	auth    *auth.Manager
	streams *aistream.Registry
	ai      provider.ChatStreamer
	logger  *log.Logger
	router  chi.Router

	// Shared prompt context, loaded once at startup.
	systemContext string

	// Optional JSONL trace of every generation; nil when disabled.
	aiDebug *aiDebugRecorder
}

// New assembles the server and its route table. systemContext is shared
// prompt text appended to every generation's prompt.
func New(cfg config.ServerConfig, st store.Store, authMgr *auth.Manager, streams *aistream.Registry, ai provider.ChatStreamer, systemContext string, logger *log.Logger) *Server {
	s := &Server{
		cfg:           cfg,
		store:         st,
		auth:          authMgr,
		streams:       streams,
		ai:            ai,
		logger:        logger,
		systemContext: systemContext,
		aiDebug:       newAIDebugRecorder(cfg.AIDebugLog),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/users/me", s.handleMe)
			r.Get("/users/me/favorites", s.handleListFavorites)

			r.Route("/skills", func(r chi.Router) {
				r.Post("/", s.handleCreateSkill)
				r.Get("/", s.handleListSkills)
				r.Post("/import", s.handleImportSkill)
				r.Route("/{skillID}", func(r chi.Router) {
					r.Get("/", s.handleGetSkill)
					r.Put("/", s.handleUpdateSkill)
					r.Delete("/", s.handleDeleteSkill)
					r.Get("/export", s.handleExportSkill)
					r.Get("/versions", s.handleListSkillVersions)
					r.Post("/versions", s.handleCreateSkillVersion)
					r.Get("/versions/{version}", s.handleGetSkillVersion)
					r.Put("/favorite", s.handleAddFavorite)
					r.Delete("/favorite", s.handleRemoveFavorite)
					r.Put("/rating", s.handleUpsertRating)
					r.Get("/rating", s.handleRatingSummary)
					r.Post("/comments", s.handleAddComment)
					r.Get("/comments", s.handleListComments)
				})
			})

			r.Route("/chats", func(r chi.Router) {
				r.Post("/", s.handleCreateChat)
				r.Get("/", s.handleListChats)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", s.handleGetChat)
					r.Get("/messages", s.handleListMessages)
					r.Post("/messages", s.handleCreateMessage)
					r.Post("/suggestions", s.handleCreateSuggestion)
					r.Get("/suggestions", s.handleListSuggestions)
				})
			})
			r.Patch("/suggestions/{suggestionID}", s.handleUpdateSuggestion)

			r.Get("/ai/models", s.handleListModels)
			r.Post("/ai/chat/stream", s.handleChatStream)
			r.Get("/ai/chat/stream/watch", s.handleChatStreamWatch)

			r.Put("/memories", s.handleUpsertMemory)
			r.Get("/memories", s.handleListMemories)
			r.Patch("/memories/{memoryID}", s.handleUpdateMemory)

			r.Get("/notifications", s.handleListNotifications)
			r.Patch("/notifications/{notificationID}", s.handleUpdateNotification)

			r.Post("/reports", s.handleCreateReport)
			r.Get("/reports", s.handleListReports)
			r.Get("/reports/{reportID}", s.handleGetReport)
			r.Patch("/reports/{reportID}", s.handleUpdateReport)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs one line per request through the server's logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

// requireUser authenticates the Bearer token and loads the account.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := s.store.GetUser(r.Context(), userID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "lookup user")
			return
		}
		if user == nil || !user.IsActive {
			respondError(w, http.StatusUnauthorized, "account unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// currentUser returns the authenticated account set by requireUser.
func currentUser(r *http.Request) *store.User {
	u, _ := r.Context().Value(userKey).(*store.User)
	return u
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}
