package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"adsio/internal/analysis"
)

// Config holds all environment-driven settings.
type Config struct {
	DBPath        string
	HTTPPort      string
	ReportsDir    string
	WatchlistPath string
	Environment   string

	OpenFDAEndpoint   string
	OpenFDATimeout    time.Duration
	OpenFDAMaxRetries int
	// OpenFDAMinInterval spaces requests to respect the published
	// unauthenticated quota of 40 requests per minute.
	OpenFDAMinInterval time.Duration

	GenAIAPIKey string
	UseGemini   bool
	GoogleModel string
	LLMTimeout  time.Duration

	Analysis analysis.Options

	DefaultLimit int
	MaxLimit     int

	WorkerCount   int
	QueueSize     int
	EnableWatcher bool

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	AlertWebhookURL string
}

// Load reads configuration from environment and optional .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		DBPath:        getenv("ADSIO_DB_PATH", "./data/adsio.db"),
		HTTPPort:      getenv("PORT", "8000"),
		ReportsDir:    getenv("REPORTS_DIR", "./reports"),
		WatchlistPath: getenv("ADSIO_WATCHLIST", ""),
		Environment:   getenv("ENVIRONMENT", "local"),

		OpenFDAEndpoint:    getenv("OPENFDA_ENDPOINT", "https://api.fda.gov/drug/event.json"),
		OpenFDATimeout:     time.Duration(getenvInt("OPENFDA_TIMEOUT", 20)) * time.Second,
		OpenFDAMaxRetries:  clampInt(getenvInt("OPENFDA_MAX_RETRIES", 3), 1, 10),
		OpenFDAMinInterval: 1500 * time.Millisecond,

		GenAIAPIKey: os.Getenv("GENAI_API_KEY"),
		UseGemini:   getenvBool("USE_GEMINI", false),
		GoogleModel: getenv("GOOGLE_MODEL", "gemini-2.0-flash-lite"),
		LLMTimeout:  time.Duration(getenvInt("LLM_TIMEOUT", 30)) * time.Second,

		Analysis: analysis.Options{
			MinWeeks:          getenvInt("MIN_WEEKS_FOR_ANALYSIS", 2),
			ZThreshold:        getenvFloat("Z_SCORE_THRESHOLD", 2.0),
			RelativeThreshold: getenvFloat("RELATIVE_THRESHOLD", 1.5),
		},

		DefaultLimit: 100,
		MaxLimit:     1000,

		WorkerCount:   clampInt(getenvInt("WORKER_COUNT", 2), 1, 16),
		QueueSize:     clampInt(getenvInt("QUEUE_SIZE", 64), 8, 1024),
		EnableWatcher: getenvBool("ENABLE_WATCHER", true),

		RateLimitEnabled:  getenvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: clampInt(getenvInt("RATE_LIMIT_REQUESTS", 100), 1, 10000),
		RateLimitWindow:   time.Duration(getenvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
	}

	log.Printf("config: db=%s port=%s reports=%s env=%s llm=%v", cfg.DBPath, cfg.HTTPPort, cfg.ReportsDir, cfg.Environment, cfg.UseGemini)
	return cfg
}

// Validate returns warnings for suspicious settings. The engine itself never
// validates thresholds, so misconfiguration is surfaced here at boot instead.
func (c Config) Validate() []string {
	var warnings []string
	if c.UseGemini && c.GenAIAPIKey == "" {
		warnings = append(warnings, "USE_GEMINI is enabled but GENAI_API_KEY is not set; LLM features will not work")
	}
	if c.Analysis.ZThreshold <= 0 {
		warnings = append(warnings, fmt.Sprintf("Z_SCORE_THRESHOLD should be positive, got %v", c.Analysis.ZThreshold))
	}
	if c.Analysis.RelativeThreshold <= 0 {
		warnings = append(warnings, fmt.Sprintf("RELATIVE_THRESHOLD should be positive, got %v", c.Analysis.RelativeThreshold))
	}
	if c.Analysis.MinWeeks < 2 {
		warnings = append(warnings, fmt.Sprintf("MIN_WEEKS_FOR_ANALYSIS below 2 disables baseline modeling, got %d", c.Analysis.MinWeeks))
	}
	return warnings
}

// Summary returns a loggable view of the configuration without secrets.
func (c Config) Summary() map[string]any {
	model := ""
	if c.UseGemini {
		model = c.GoogleModel
	}
	return map[string]any{
		"database":    c.DBPath,
		"llm_enabled": c.UseGemini,
		"llm_model":   model,
		"analysis": map[string]any{
			"min_weeks":          c.Analysis.MinWeeks,
			"z_threshold":        c.Analysis.ZThreshold,
			"relative_threshold": c.Analysis.RelativeThreshold,
		},
		"limits": map[string]any{
			"default": c.DefaultLimit,
			"max":     c.MaxLimit,
		},
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Now returns a UTC time truncated to seconds for deterministic timestamps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
