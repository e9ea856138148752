package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/analyzer"
	"github.com/leadscout/leadscout/internal/api"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/dedup"
	"github.com/leadscout/leadscout/internal/jobs"
	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/notifications"
	"github.com/leadscout/leadscout/internal/pipeline"
	"github.com/leadscout/leadscout/internal/scheduler"
	"github.com/leadscout/leadscout/internal/searches"
	"github.com/leadscout/leadscout/internal/sources"
	"github.com/leadscout/leadscout/internal/storage"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting leadscout")

	ctx := context.Background()

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("Invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("Failed to connect to redis: %v", err)
	}

	// Stores
	searchStore := searches.NewPostgresStore(db)
	jobStore := jobs.NewPostgresStore(db)
	guard := jobs.NewRedisGuard(redisClient, jobs.MarkerTTL(cfg.JobTimeout))
	tracker := jobs.NewTracker(jobStore, guard, cfg.JobTimeout)

	// Jobs a crashed process left behind past their timeout can never finish
	if n, err := tracker.RecoverStale(ctx); err != nil {
		logrus.Warnf("Failed to close stale jobs: %v", err)
	} else if n > 0 {
		logrus.WithField("count", n).Warn("Marked stale jobs as failed")
	}

	if cfg.SearchesFile != "" {
		n, err := searches.Seed(ctx, searchStore, cfg.SearchesFile)
		if err != nil {
			logrus.Fatalf("Failed to seed searches: %v", err)
		}
		logrus.WithFields(logrus.Fields{
			"file":  cfg.SearchesFile,
			"count": n,
		}).Info("Seeded searches")
	}

	connectors := sources.NewRegistry(
		sources.NewRedditConnector(sources.RedditOptions{
			ClientID:           cfg.RedditClientID,
			ClientSecret:       cfg.RedditClientSecret,
			UserAgent:          cfg.RedditUserAgent,
			RequestsPerMinute:  cfg.RedditRequestsPerMinute,
			MaxPostsPerSearch:  cfg.RedditMaxPostsPerSearch,
			MaxCommentsPerPost: cfg.RedditMaxCommentsPerPost,
		}),
		sources.NewHackerNewsConnector(""),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	notificationService := notifications.NewService(cfg)

	deps := pipeline.Dependencies{
		Connectors: connectors,
		Dedup:      dedup.NewPostgresStore(db),
		Analyzer:   analyzer.NewLeadAnalyzer(newClassifier(cfg, redisClient), cfg.LeadMinConfidence),
		Leads:      leads.NewPostgresRepository(db),
		Tracker:    tracker,
		Searches:   searchStore,
		Notifier:   notificationService,
		Metrics:    pipeline.NewMetrics(registry),
	}

	var reports api.ReportReader
	if cfg.StorageAccount != "" {
		blobs, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive := storage.NewReportArchive(blobs)
		deps.Archive = archive
		reports = archive
	}

	runner := pipeline.NewRunner(deps, pipeline.OptionsFromConfig(cfg))
	jobService := pipeline.NewService(runner, tracker, searchStore)

	var schedulerService *scheduler.Service
	if cfg.SchedulerEnabled {
		schedulerService = scheduler.NewService(cfg, searchStore, jobService)
		if err := schedulerService.Start(); err != nil {
			logrus.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	router := api.NewRouter(api.Dependencies{
		Jobs:     jobService,
		Searches: searchStore,
		Leads:    deps.Leads,
		Reports:  reports,
		Gatherer: registry,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	if schedulerService != nil {
		schedulerService.Stop(shutdownCtx)
	}
	if err := jobService.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("Running jobs were cancelled: %v", err)
	}
	notificationService.Wait()

	logrus.Info("Server exited")
}

// newClassifier prefers the model when a key is configured and falls back to
// the rule classifier otherwise
func newClassifier(cfg *config.Config, client *redis.Client) analyzer.ClassifierInterface {
	var classifier analyzer.ClassifierInterface
	if cfg.AnthropicAPIKey != "" {
		classifier = analyzer.NewClaudeClassifier(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	} else {
		logrus.Warn("ANTHROPIC_API_KEY not set, using rule-based classification")
		classifier = analyzer.NewRuleClassifier()
	}

	if cfg.ClassificationCacheTTL > 0 {
		classifier = analyzer.NewCachedClassifier(classifier, client, cfg.ClassificationCacheTTL)
	}
	return classifier
}
