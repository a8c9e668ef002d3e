package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultExcludedPrefixes are path prefixes that never enter the digest
// pipeline. Callers can extend the list via DIGEST_EXCLUDED_PREFIXES.
var DefaultExcludedPrefixes = []string{"app/", ".app/", ".git/", ".mnemo/", "node_modules/"}

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directory
	DataDir string

	// Database
	DatabasePath string

	// Digest pipeline
	DigestMaxAttempts        int
	DigestStartDelayMs       int
	DigestIdleSleepMs        int
	DigestFileDelayMs        int
	DigestFailureBaseDelayMs int
	DigestFailureMaxDelayMs  int
	DigestStaleThresholdMs   int
	DigestStaleSweepMs       int
	DigestExcludedPrefixes   []string

	// Task queue
	TaskPollIntervalMs int

	// External services
	MeiliHost   string
	MeiliAPIKey string
	MeiliIndex  string

	QdrantHost       string
	QdrantAPIKey     string
	QdrantCollection string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	HAIDBaseURL      string
	HAIDAPIKey       string
	HAIDChromeCDPURL string

	// Debug settings
	DBLogQueries bool
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	dataDir := getEnv("MNEMO_DATA_DIR", "./data")
	appDir := filepath.Join(dataDir, ".mnemo")

	return &Config{
		// Server
		Port: getEnvInt("PORT", 12345),
		Host: getEnv("HOST", "0.0.0.0"),
		Env:  getEnv("ENV", "development"),

		// Data
		DataDir:      dataDir,
		DatabasePath: filepath.Join(appDir, "database.sqlite"),

		// Digest pipeline
		DigestMaxAttempts:        getEnvInt("DIGEST_MAX_ATTEMPTS", 4),
		DigestStartDelayMs:       getEnvInt("DIGEST_START_DELAY_MS", 10000),
		DigestIdleSleepMs:        getEnvInt("DIGEST_IDLE_SLEEP_MS", 1000),
		DigestFileDelayMs:        getEnvInt("DIGEST_FILE_DELAY_MS", 1000),
		DigestFailureBaseDelayMs: getEnvInt("DIGEST_FAILURE_BASE_DELAY_MS", 5000),
		DigestFailureMaxDelayMs:  getEnvInt("DIGEST_FAILURE_MAX_DELAY_MS", 60000),
		DigestStaleThresholdMs:   getEnvInt("DIGEST_STALE_THRESHOLD_MS", 600000),
		DigestStaleSweepMs:       getEnvInt("DIGEST_STALE_SWEEP_INTERVAL_MS", 60000),
		DigestExcludedPrefixes:   loadExcludedPrefixes(),

		// Task queue
		TaskPollIntervalMs: getEnvInt("TASK_POLL_INTERVAL_MS", 2000),

		// Meilisearch
		MeiliHost:   getEnv("MEILI_HOST", ""),
		MeiliAPIKey: getEnv("MEILI_API_KEY", ""),
		MeiliIndex:  getEnv("MEILI_INDEX", "mnemo_files"),

		// Qdrant
		QdrantHost:       getEnv("QDRANT_HOST", ""),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "mnemo_vectors"),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		// HAID
		HAIDBaseURL:      getEnv("HAID_BASE_URL", ""),
		HAIDAPIKey:       getEnv("HAID_API_KEY", ""),
		HAIDChromeCDPURL: getEnv("HAID_CHROME_CDP_URL", ""),

		// Debug
		DBLogQueries: getEnv("DB_LOG_QUERIES", "") == "1",
	}
}

// loadExcludedPrefixes merges the defaults with DIGEST_EXCLUDED_PREFIXES
// (comma-separated). Duplicates are dropped.
func loadExcludedPrefixes() []string {
	prefixes := append([]string{}, DefaultExcludedPrefixes...)
	seen := make(map[string]bool, len(prefixes))
	for _, p := range prefixes {
		seen[p] = true
	}
	for _, p := range strings.Split(getEnv("DIGEST_EXCLUDED_PREFIXES", ""), ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		prefixes = append(prefixes, p)
	}
	return prefixes
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// GetDataRoot returns the MNEMO_DATA_DIR path
func (c *Config) GetDataRoot() string {
	return c.DataDir
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
