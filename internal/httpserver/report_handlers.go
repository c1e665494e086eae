package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skillhub/skillhub/internal/store"
)

type reportRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	report, err := s.store.CreateReport(r.Context(), currentUser(r).ID, req.Title, req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create report")
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListReports(r.Context(), currentUser(r).ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list reports")
		return
	}
	if items == nil {
		items = []store.Report{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": items})
}

// loadReport enforces that only the filer or an admin can see a report.
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) *store.Report {
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup report")
		return nil
	}
	user := currentUser(r)
	if report == nil || (report.UserID != user.ID && user.Role != store.RoleAdmin) {
		respondError(w, http.StatusNotFound, "report not found")
		return nil
	}
	return report
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report := s.loadReport(w, r)
	if report == nil {
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type updateReportRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	if currentUser(r).Role != store.RoleAdmin {
		respondError(w, http.StatusForbidden, "admin only")
		return
	}
	report := s.loadReport(w, r)
	if report == nil {
		return
	}
	var req updateReportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := store.ReportStatus(req.Status)
	if status != store.ReportOpen && status != store.ReportResolved && status != store.ReportDismissed {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	updated, err := s.store.UpdateReportStatus(r.Context(), report.ID, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "update report")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
