package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database/repository"
	"scamguard/pkg/logger"
)

// RunsHandler serves detection run history.
type RunsHandler struct {
	repos  *repository.Repositories
	logger *logger.Logger
}

func NewRunsHandler(repos *repository.Repositories, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		repos:  repos,
		logger: log.WithComponent("runs"),
	}
}

// List handles GET /api/v1/runs
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.RunFilter{Limit: 50}

	if v := q.Get("run_type"); v != "" {
		t := models.RunType(v)
		filter.RunType = &t
	}
	if v := q.Get("status"); v != "" {
		s := models.RunStatus(v)
		filter.Status = &s
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}

	runs, err := h.repos.Runs.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"count": len(runs),
	})
}

// Get handles GET /api/v1/runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.repos.Runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error().Err(err).Str("run_id", id.String()).Msg("failed to get run")
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}
