package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"scamguard/internal/domain/models"
	"scamguard/internal/infrastructure/database/repository"
	"scamguard/pkg/logger"
)

// FlagsHandler serves the review queue: listing flags and recording human
// review verdicts.
type FlagsHandler struct {
	repos  *repository.Repositories
	logger *logger.Logger
}

func NewFlagsHandler(repos *repository.Repositories, log *logger.Logger) *FlagsHandler {
	return &FlagsHandler{
		repos:  repos,
		logger: log.WithComponent("flags"),
	}
}

// List handles GET /api/v1/flags
func (h *FlagsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := flagFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flags, err := h.repos.Flags.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list flags")
		respondError(w, http.StatusInternalServerError, "failed to list flags")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":   flags,
		"count":  len(flags),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Get handles GET /api/v1/flags/{id}
func (h *FlagsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid flag id")
		return
	}

	flag, err := h.repos.Flags.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "flag not found")
			return
		}
		h.logger.Error().Err(err).Str("flag_id", id.String()).Msg("failed to get flag")
		respondError(w, http.StatusInternalServerError, "failed to get flag")
		return
	}

	respondJSON(w, http.StatusOK, flag)
}

// Review handles PATCH /api/v1/flags/{id}/review
func (h *FlagsHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid flag id")
		return
	}

	var update models.ReviewUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.Status != models.ReviewConfirmedScam && update.Status != models.ReviewFalsePositive {
		respondError(w, http.StatusBadRequest, "status must be confirmed_scam or false_positive")
		return
	}
	if update.ReviewedBy == "" {
		respondError(w, http.StatusBadRequest, "reviewed_by is required")
		return
	}

	flag, err := h.repos.Flags.UpdateReview(r.Context(), id, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "flag not found")
			return
		}
		h.logger.Error().Err(err).Str("flag_id", id.String()).Msg("failed to update review")
		respondError(w, http.StatusInternalServerError, "failed to update review")
		return
	}

	h.logger.Info().
		Str("flag_id", id.String()).
		Str("status", string(update.Status)).
		Str("reviewed_by", update.ReviewedBy).
		Msg("flag reviewed")
	respondJSON(w, http.StatusOK, flag)
}

func flagFilterFromQuery(r *http.Request) (models.FlagFilter, error) {
	q := r.URL.Query()
	filter := models.FlagFilter{Limit: 50}

	if v := q.Get("risk_level"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.RiskLevels = append(filter.RiskLevels, models.RiskLevel(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if v := q.Get("review_status"); v != "" {
		status := models.ReviewStatus(v)
		filter.ReviewStatus = &status
	}
	if q.Get("unreviewed") == "true" {
		filter.Unreviewed = true
	}
	if v := q.Get("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.New("invalid account_id")
		}
		filter.AccountID = &id
	}
	filter.FromNumber = q.Get("from_number")
	if v := q.Get("flagged_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("flagged_after must be RFC3339")
		}
		filter.FlaggedAfter = &t
	}
	if v := q.Get("flagged_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("flagged_before must be RFC3339")
		}
		filter.FlaggedBefore = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return filter, errors.New("limit must be between 1 and 500")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be >= 0")
		}
		filter.Offset = n
	}
	return filter, nil
}
