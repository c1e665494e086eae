package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillhub/skillhub/internal/skillfile"
	"github.com/skillhub/skillhub/internal/store"
)

type skillRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Visibility  string   `json:"visibility"`
	Content     string   `json:"content"`
}

type skillResponse struct {
	store.Skill
	LatestVersion int    `json:"latest_version"`
	Content       string `json:"content,omitempty"`
}

func validVisibility(v string) bool {
	switch store.Visibility(v) {
	case store.VisibilityPublic, store.VisibilityPrivate, store.VisibilityUnlisted:
		return true
	}
	return false
}

// loadSkill fetches a live skill and enforces visibility: private skills
// are only reachable by their owner.
func (s *Server) loadSkill(w http.ResponseWriter, r *http.Request) *store.Skill {
	sk, err := s.store.GetSkill(r.Context(), chi.URLParam(r, "skillID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup skill")
		return nil
	}
	if sk == nil || sk.Deleted {
		respondError(w, http.StatusNotFound, "skill not found")
		return nil
	}
	user := currentUser(r)
	if sk.Visibility == store.VisibilityPrivate && sk.OwnerID != user.ID && user.Role != store.RoleAdmin {
		respondError(w, http.StatusNotFound, "skill not found")
		return nil
	}
	return sk
}

func (s *Server) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	var req skillRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Visibility == "" {
		req.Visibility = string(store.VisibilityPublic)
	}
	if !validVisibility(req.Visibility) {
		respondError(w, http.StatusBadRequest, "invalid visibility")
		return
	}

	sk, err := s.store.CreateSkill(r.Context(), store.Skill{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     currentUser(r).ID,
		Tags:        req.Tags,
		Visibility:  store.Visibility(req.Visibility),
	})
	if err != nil {
		s.logger.Printf("create skill: %v", err)
		respondError(w, http.StatusInternalServerError, "create skill")
		return
	}
	v, err := s.store.CreateSkillVersion(r.Context(), sk.ID, req.Content, sk.OwnerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create skill version")
		return
	}
	respondJSON(w, http.StatusCreated, skillResponse{Skill: *sk, LatestVersion: v.Version, Content: v.Content})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SkillFilter{
		Query:  strings.TrimSpace(q.Get("q")),
		Limit:  parseQueryInt(q.Get("limit"), 50),
		Offset: parseQueryInt(q.Get("offset"), 0),
	}
	if q.Get("mine") == "true" {
		filter.OwnerID = currentUser(r).ID
	} else {
		filter.Visibility = store.VisibilityPublic
	}

	skills, err := s.store.ListSkills(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list skills")
		return
	}
	if skills == nil {
		skills = []store.Skill{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"skills": skills})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	resp := skillResponse{Skill: *sk}
	latest, err := s.latestVersion(r, sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list versions")
		return
	}
	if latest != nil {
		resp.LatestVersion = latest.Version
		resp.Content = latest.Content
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	if sk.OwnerID != currentUser(r).ID {
		respondError(w, http.StatusForbidden, "not the skill owner")
		return
	}
	var req skillRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		sk.Name = name
	}
	if req.Description != "" {
		sk.Description = req.Description
	}
	if req.Tags != nil {
		sk.Tags = req.Tags
	}
	if req.Visibility != "" {
		if !validVisibility(req.Visibility) {
			respondError(w, http.StatusBadRequest, "invalid visibility")
			return
		}
		sk.Visibility = store.Visibility(req.Visibility)
	}
	if err := s.store.UpdateSkill(r.Context(), sk); err != nil {
		respondError(w, http.StatusInternalServerError, "update skill")
		return
	}

	resp := skillResponse{Skill: *sk}
	latest, err := s.latestVersion(r, sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list versions")
		return
	}
	if latest != nil {
		resp.LatestVersion = latest.Version
		resp.Content = latest.Content
	}
	// New content creates a new immutable version rather than editing history.
	if req.Content != "" && (latest == nil || latest.Content != req.Content) {
		v, err := s.store.CreateSkillVersion(r.Context(), sk.ID, req.Content, currentUser(r).ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "create skill version")
			return
		}
		resp.LatestVersion = v.Version
		resp.Content = v.Content
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	user := currentUser(r)
	if sk.OwnerID != user.ID && user.Role != store.RoleAdmin {
		respondError(w, http.StatusForbidden, "not the skill owner")
		return
	}
	sk.Deleted = true
	now := time.Now().UTC()
	sk.UpdatedAt = now
	sk.DeletedAt = &now
	if err := s.store.UpdateSkill(r.Context(), sk); err != nil {
		respondError(w, http.StatusInternalServerError, "delete skill")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSkillVersions(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	versions, err := s.store.ListSkillVersions(r.Context(), sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list versions")
		return
	}
	if versions == nil {
		versions = []store.SkillVersion{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

type createVersionRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleCreateSkillVersion(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	if sk.OwnerID != currentUser(r).ID {
		respondError(w, http.StatusForbidden, "not the skill owner")
		return
	}
	var req createVersionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	v, err := s.store.CreateSkillVersion(r.Context(), sk.ID, req.Content, currentUser(r).ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create skill version")
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetSkillVersion(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		respondError(w, http.StatusBadRequest, "invalid version")
		return
	}
	v, err := s.store.GetSkillVersion(r.Context(), sk.ID, version)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup version")
		return
	}
	if v == nil {
		respondError(w, http.StatusNotFound, "version not found")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleExportSkill(w http.ResponseWriter, r *http.Request) {
	sk := s.loadSkill(w, r)
	if sk == nil {
		return
	}
	latest, err := s.latestVersion(r, sk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list versions")
		return
	}
	var content string
	var version int
	if latest != nil {
		content = latest.Content
		version = latest.Version
	}
	data, err := skillfile.Encode(skillfile.Meta{
		Name:        sk.Name,
		Description: sk.Description,
		Tags:        sk.Tags,
		Visibility:  string(sk.Visibility),
		Version:     version,
	}, content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode skill file")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(sk.Name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImportSkill(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read body")
		return
	}
	meta, content, err := skillfile.Decode(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if meta.Visibility == "" {
		meta.Visibility = string(store.VisibilityPublic)
	}
	if !validVisibility(meta.Visibility) {
		respondError(w, http.StatusBadRequest, "invalid visibility")
		return
	}
	sk, err := s.store.CreateSkill(r.Context(), store.Skill{
		Name:        meta.Name,
		Description: meta.Description,
		OwnerID:     currentUser(r).ID,
		Tags:        meta.Tags,
		Visibility:  store.Visibility(meta.Visibility),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create skill")
		return
	}
	// A file exported at version N keeps that number, so a re-import is
	// recognizably the same revision. Later versions continue from there.
	var v *store.SkillVersion
	if meta.Version > 0 {
		v, err = s.store.InsertSkillVersion(r.Context(), sk.ID, meta.Version, content, sk.OwnerID)
	} else {
		v, err = s.store.CreateSkillVersion(r.Context(), sk.ID, content, sk.OwnerID)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create skill version")
		return
	}
	respondJSON(w, http.StatusCreated, skillResponse{Skill: *sk, LatestVersion: v.Version, Content: v.Content})
}

// latestVersion returns the newest version, or nil when the skill has none.
func (s *Server) latestVersion(r *http.Request, skillID string) (*store.SkillVersion, error) {
	versions, err := s.store.ListSkillVersions(r.Context(), skillID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[len(versions)-1], nil
}

func exportFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "skill"
	}
	return strings.ToLower(cleaned) + ".skill"
}

func parseQueryInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
