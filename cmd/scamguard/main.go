package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"scamguard/internal/ai"
	"scamguard/internal/api"
	"scamguard/internal/api/handlers"
	"scamguard/internal/config"
	"scamguard/internal/detection"
	"scamguard/internal/infrastructure/cache"
	"scamguard/internal/infrastructure/database"
	"scamguard/internal/infrastructure/database/repository"
	"scamguard/internal/infrastructure/messagestore"
	"scamguard/internal/scan"
	"scamguard/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.NewDevelopment()
	}
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting ScamGuard")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisCache.Close()

	repos := repository.NewRepositories(db.Pool(), cfg.Scan.StaleRunTimeout)

	// Load the pattern rule set
	rules, err := detection.LoadRuleSet(cfg.Detection.RulesFile, cfg.Detection.LearnedRulesFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load detection rules")
	}
	log.Info().Int("rules", rules.Len()).Msg("detection rules loaded")

	// Wire the detection pipeline
	matcher := detection.NewPatternMatcher(rules, log)
	behavioral := detection.NewBehavioralDetector(cfg.Detection.Behavioral, redisCache, log)
	fusion := detection.NewFusion(cfg.Detection.Fusion)

	var reviewer *ai.Reviewer
	if cfg.AI.Enabled {
		provider := ai.NewClient(cfg.AI, log)
		quota := redisCache.NewAIQuota(cfg.AI.MaxReviewsDaily)
		reviewer = ai.NewReviewer(cfg.AI, provider, fusion, quota, log)
		log.Info().Str("model", cfg.AI.Model).Msg("AI reviewer enabled")
	} else {
		log.Info().Msg("AI reviewer disabled, running heuristics-only")
	}

	source := messagestore.NewClient(cfg.MessageStore, log)
	engine := scan.NewEngine(
		cfg.Scan,
		matcher, behavioral, fusion, reviewer, rules,
		source, repos.Flags, repos.Runs, repos.Reports,
		log,
	)

	// Start the scan scheduler
	scheduler := scan.NewScheduler(cfg.Scan, engine, log)
	go scheduler.Run(ctx)

	// Initialize handlers and router
	h := handlers.NewHandlers(ctx, db, redisCache, repos, engine, rules, cfg.App.Version, log)
	router := api.NewRouter(*cfg, h, redisCache, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
