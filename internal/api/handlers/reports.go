package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"scamguard/internal/infrastructure/database/repository"
	"scamguard/pkg/logger"
)

// ReportsHandler serves nightly report history.
type ReportsHandler struct {
	repos  *repository.Repositories
	logger *logger.Logger
}

func NewReportsHandler(repos *repository.Repositories, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{
		repos:  repos,
		logger: log.WithComponent("reports"),
	}
}

// List handles GET /api/v1/reports
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 365")
			return
		}
		limit = n
	}

	reports, err := h.repos.Reports.List(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list reports")
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  reports,
		"count": len(reports),
	})
}

// Get handles GET /api/v1/reports/{date}
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	report, err := h.repos.Reports.GetByDate(r.Context(), date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no report for date")
			return
		}
		h.logger.Error().Err(err).Str("date", date.Format("2006-01-02")).Msg("failed to get report")
		respondError(w, http.StatusInternalServerError, "failed to get report")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
