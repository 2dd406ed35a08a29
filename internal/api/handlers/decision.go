package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sora-lab/inga-quant/internal/store"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// DecisionHandler serves the latest pipeline decision and watchlist
// ⭐ SSOT: 판단 결과 API 핸들러는 이 구조체에서만
type DecisionHandler struct {
	runs       *store.RunRepository
	watchlists *store.WatchlistRepository
	logger     *logger.Logger
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(runs *store.RunRepository, watchlists *store.WatchlistRepository, log *logger.Logger) *DecisionHandler {
	return &DecisionHandler{
		runs:       runs,
		watchlists: watchlists,
		logger:     log,
	}
}

// GetLatestDecision returns the most recent run's decision
// GET /api/decision/latest
func (h *DecisionHandler) GetLatestDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := h.runs.Latest(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest decision")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "No pipeline runs recorded yet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":            rec.RunID,
		"trade_date":        rec.TradeDate.Format("2006-01-02"),
		"action":            rec.Action,
		"wf_ic":             rec.WFIC,
		"n_eligible":        rec.NEligible,
		"missing_rate":      rec.MissingRate,
		"rejection_reasons": rec.RejectionReasons,
		"created_at":        rec.CreatedAt,
	})
}

// GetLatestWatchlist returns the most recent watchlist in rank order
// GET /api/watchlist/latest
func (h *DecisionHandler) GetLatestWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, tradeDate, err := h.watchlists.Latest(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest watchlist")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest watchlist")
		return
	}
	if len(entries) == 0 {
		respondError(w, http.StatusNotFound, "No watchlist recorded yet")
		return
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for i, e := range entries {
		items = append(items, map[string]interface{}{
			"rank":             i + 1,
			"ticker":           e.Ticker,
			"name":             e.Name,
			"score":            e.Score,
			"reason_short":     e.ReasonShort,
			"is_new":           e.IsNew,
			"turnover_penalty": e.TurnoverPenalty,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trade_date": tradeDate.Format("2006-01-02"),
		"entries":    items,
	})
}

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
