package handlers

import (
	"context"

	"scamguard/internal/detection"
	"scamguard/internal/infrastructure/cache"
	"scamguard/internal/infrastructure/database"
	"scamguard/internal/infrastructure/database/repository"
	"scamguard/internal/scan"
	"scamguard/pkg/logger"
)

// Handlers bundles all HTTP handlers.
type Handlers struct {
	Health    *HealthHandler
	Flags     *FlagsHandler
	Runs      *RunsHandler
	Reports   *ReportsHandler
	Scan      *ScanHandler
	Rules     *RulesHandler
	Blocklist *BlocklistHandler
}

// NewHandlers wires every handler against the shared infrastructure. jobCtx
// bounds the lifetime of manually triggered scans.
func NewHandlers(
	jobCtx context.Context,
	db *database.PostgresDB,
	c *cache.RedisCache,
	repos *repository.Repositories,
	engine *scan.Engine,
	rules *detection.RuleSet,
	version string,
	log *logger.Logger,
) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(db, c, version, log),
		Flags:     NewFlagsHandler(repos, log),
		Runs:      NewRunsHandler(repos, log),
		Reports:   NewReportsHandler(repos, log),
		Scan:      NewScanHandler(engine, jobCtx, log),
		Rules:     NewRulesHandler(rules, log),
		Blocklist: NewBlocklistHandler(c, log),
	}
}
