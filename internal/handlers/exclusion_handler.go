package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// ExclusionHandler serves CRUD for the persistent exclusion rules that the
// admission filter applies to every crawl.
type ExclusionHandler struct {
	exclusions interfaces.ExclusionService
	logger     arbor.ILogger
}

// NewExclusionHandler creates the exclusion rules handler
func NewExclusionHandler(exclusions interfaces.ExclusionService, logger arbor.ILogger) *ExclusionHandler {
	return &ExclusionHandler{
		exclusions: exclusions,
		logger:     logger,
	}
}

// ListRulesHandler returns every rule, optionally filtered to one kind
// GET /api/exclusions?rule_type=country
func (h *ExclusionHandler) ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	var rules []*models.ExclusionRule
	var err error
	if ruleType := r.URL.Query().Get("rule_type"); ruleType != "" {
		rules, err = h.exclusions.ListRulesByType(r.Context(), models.RuleType(ruleType))
	} else {
		rules, err = h.exclusions.ListRules(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list exclusion rules")
		http.Error(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// GroupedRulesHandler returns rules keyed by type
// GET /api/exclusions/grouped
func (h *ExclusionHandler) GroupedRulesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	grouped, err := h.exclusions.GroupedRules(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to group exclusion rules")
		http.Error(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, grouped)
}

// AddRuleHandler creates a rule and activates it immediately
// POST /api/exclusions
func (h *ExclusionHandler) AddRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule models.ExclusionRule
	if r.Body != nil {
		defer r.Body.Close()
	}
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.exclusions.AddRule(r.Context(), &rule); err != nil {
		h.logger.Warn().Err(err).Str("rule_type", string(rule.RuleType)).Msg("Exclusion rule rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, &rule)
}

// DeleteRuleHandler removes a rule by id
// DELETE /api/exclusions/{id}
func (h *ExclusionHandler) DeleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Rule ID is required")
		return
	}
	ruleID := parts[2]

	if err := h.exclusions.DeleteRule(r.Context(), ruleID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.logger.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to delete exclusion rule")
		http.Error(w, "Failed to delete rule", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rule_id": ruleID,
		"message": "Rule deleted",
	})
}
