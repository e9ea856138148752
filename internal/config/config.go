package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port     string
	Debug    bool
	LogLevel string

	// Persistence
	DatabaseURL string
	RedisURL    string

	// Scheduler configuration
	SchedulerEnabled  bool
	SchedulerTick     time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	SearchesFile      string // optional YAML seed of search definitions

	// Retry policies
	ConnectorRetryAttempts int
	ConnectorRetryDelay    time.Duration
	ConnectorRetryMaxDelay time.Duration
	AnalyzerRetryAttempts  int
	AnalyzerRetryDelay     time.Duration

	// Reddit
	RedditClientID           string
	RedditClientSecret       string
	RedditUserAgent          string
	RedditRequestsPerMinute  int
	RedditMaxPostsPerSearch  int
	RedditMaxCommentsPerPost int

	// Analysis
	AnthropicAPIKey        string
	AnthropicModel         string
	LeadMinConfidence      float64
	ClassificationCacheTTL time.Duration // 0 disables the cache

	// Notification configuration
	WebhookSecret     string
	WebhookTimeout    time.Duration
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Azure Storage configuration (job report archive)
	StorageAccount   string
	StorageContainer string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Debug:    getBoolEnv("DEBUG", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		SchedulerEnabled:  getBoolEnv("SCHEDULER_ENABLED", true),
		SchedulerTick:     getDurationEnv("SCHEDULER_TICK", 60*time.Second),
		MaxConcurrentJobs: getIntEnv("SCHEDULER_MAX_CONCURRENT_JOBS", 4),
		JobTimeout:        getDurationEnv("JOB_TIMEOUT", 2*time.Hour),
		SearchesFile:      getEnv("SEARCHES_FILE", ""),

		ConnectorRetryAttempts: getIntEnv("CONNECTOR_RETRY_ATTEMPTS", 3),
		ConnectorRetryDelay:    getDurationEnv("CONNECTOR_RETRY_DELAY", 2*time.Second),
		ConnectorRetryMaxDelay: getDurationEnv("CONNECTOR_RETRY_MAX_DELAY", 30*time.Second),
		AnalyzerRetryAttempts:  getIntEnv("ANALYZER_RETRY_ATTEMPTS", 2),
		AnalyzerRetryDelay:     getDurationEnv("ANALYZER_RETRY_DELAY", time.Second),

		RedditClientID:           getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret:       getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:          getEnv("REDDIT_USER_AGENT", "leadscout/1.0"),
		RedditRequestsPerMinute:  getIntEnv("REDDIT_REQUESTS_PER_MINUTE", 60),
		RedditMaxPostsPerSearch:  getIntEnv("REDDIT_MAX_POSTS_PER_SEARCH", 1000),
		RedditMaxCommentsPerPost: getIntEnv("REDDIT_MAX_COMMENTS_PER_POST", 500),

		AnthropicAPIKey:        getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:         getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		LeadMinConfidence:      getFloatEnv("LEAD_MIN_CONFIDENCE", 0.5),
		ClassificationCacheTTL: getDurationEnv("CLASSIFICATION_CACHE_TTL", 24*time.Hour),

		WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout:    getDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "job-reports"),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.SchedulerTick < time.Second {
		return fmt.Errorf("SCHEDULER_TICK must be at least 1s")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("SCHEDULER_MAX_CONCURRENT_JOBS must be at least 1")
	}

	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive")
	}

	if c.ConnectorRetryAttempts < 1 || c.AnalyzerRetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}

	if c.LeadMinConfidence < 0 || c.LeadMinConfidence > 1 {
		return fmt.Errorf("LEAD_MIN_CONFIDENCE must be between 0 and 1")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("90s", "2h") or a bare number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
