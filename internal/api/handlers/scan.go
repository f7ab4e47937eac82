package handlers

import (
	"context"
	"net/http"
	"time"

	"scamguard/internal/scan"
	"scamguard/pkg/logger"
)

// ScanHandler exposes manual triggers for the two scan jobs. Triggers are
// asynchronous: the response acknowledges the request, the run record tracks
// the outcome. A trigger that races a scheduled run of the same type is
// skipped by the run tracker's mutual exclusion.
type ScanHandler struct {
	engine *scan.Engine
	// jobCtx outlives the request, so a triggered scan is only cancelled by
	// process shutdown.
	jobCtx context.Context
	logger *logger.Logger
}

func NewScanHandler(engine *scan.Engine, jobCtx context.Context, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		engine: engine,
		jobCtx: jobCtx,
		logger: log.WithComponent("scan"),
	}
}

// TriggerScan handles POST /api/v1/scan/periodic
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Msg("manual scan triggered")
	go func() {
		if err := h.engine.RunManualScan(h.jobCtx); err != nil {
			h.logger.Error().Err(err).Msg("manual scan failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"detail": "scan started; progress is tracked under /api/v1/runs",
	})
}

// TriggerNightly handles POST /api/v1/scan/nightly
func (h *ScanHandler) TriggerNightly(w http.ResponseWriter, r *http.Request) {
	// Default to the last completed day.
	date := time.Now().UTC().AddDate(0, 0, -1)
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	h.logger.Info().Str("date", date.Format("2006-01-02")).Msg("manual nightly aggregation triggered")
	go func() {
		if err := h.engine.RunNightlySummary(h.jobCtx, date); err != nil {
			h.logger.Error().Err(err).Msg("manual nightly aggregation failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"date":   date.Format("2006-01-02"),
	})
}
