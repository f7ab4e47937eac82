package handlers

import (
	"encoding/json"
	"net/http"

	"scamguard/internal/detection"
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// RulesHandler manages the pattern rule set: inspecting active rules and
// promoting candidates mined by the nightly learner.
type RulesHandler struct {
	rules  *detection.RuleSet
	logger *logger.Logger
}

func NewRulesHandler(rules *detection.RuleSet, log *logger.Logger) *RulesHandler {
	return &RulesHandler{
		rules:  rules,
		logger: log.WithComponent("rules"),
	}
}

// List handles GET /api/v1/rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.Rules()
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  rules,
		"count": len(rules),
	})
}

// Promote handles POST /api/v1/rules/promote
func (h *RulesHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var candidate models.CandidateRule
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if candidate.Pattern == "" {
		respondError(w, http.StatusBadRequest, "pattern is required")
		return
	}

	rule, err := h.rules.Promote(candidate)
	if err != nil {
		h.logger.Warn().Err(err).Str("pattern", candidate.Pattern).Msg("rule promotion rejected")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.logger.Info().
		Str("rule_id", rule.ID).
		Str("category", string(rule.Category)).
		Msg("candidate rule promoted")
	respondJSON(w, http.StatusCreated, rule)
}
