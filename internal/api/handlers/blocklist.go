package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scamguard/internal/infrastructure/cache"
	"scamguard/pkg/logger"
)

// BlocklistHandler manages the known-scam sender blocklist consulted by the
// behavioral detector.
type BlocklistHandler struct {
	cache  *cache.RedisCache
	logger *logger.Logger
}

func NewBlocklistHandler(c *cache.RedisCache, log *logger.Logger) *BlocklistHandler {
	return &BlocklistHandler{
		cache:  c,
		logger: log.WithComponent("blocklist"),
	}
}

type blocklistRequest struct {
	Number string `json:"number"`
}

// Check handles GET /api/v1/blocklist/{number}
func (h *BlocklistHandler) Check(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	blocked, err := h.cache.IsBlocked(r.Context(), number)
	if err != nil {
		h.logger.Error().Err(err).Msg("blocklist check failed")
		respondError(w, http.StatusInternalServerError, "blocklist check failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"number":  number,
		"blocked": blocked,
	})
}

// Add handles POST /api/v1/blocklist
func (h *BlocklistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req blocklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == "" {
		respondError(w, http.StatusBadRequest, "number is required")
		return
	}

	if err := h.cache.BlockSender(r.Context(), req.Number); err != nil {
		h.logger.Error().Err(err).Msg("failed to block sender")
		respondError(w, http.StatusInternalServerError, "failed to block sender")
		return
	}

	h.logger.Info().Str("number", req.Number).Msg("sender blocked")
	respondJSON(w, http.StatusCreated, map[string]any{
		"number":  req.Number,
		"blocked": true,
	})
}

// Remove handles DELETE /api/v1/blocklist/{number}
func (h *BlocklistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := h.cache.UnblockSender(r.Context(), number); err != nil {
		h.logger.Error().Err(err).Msg("failed to unblock sender")
		respondError(w, http.StatusInternalServerError, "failed to unblock sender")
		return
	}

	h.logger.Info().Str("number", number).Msg("sender unblocked")
	respondJSON(w, http.StatusOK, map[string]any{
		"number":  number,
		"blocked": false,
	})
}
