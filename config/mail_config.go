package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// Logging
	LogLevel  string
	LogFormat string
	LogDir    string

	// OpenAI
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	LLMModel         string
	LLMMaxTokens     int
	LLMTemperature   float64
	LLMTimeoutSec    int
	SummaryMaxLength int

	// IMAP
	IMAPTimeout    time.Duration
	IMAPClientName string
	IMAPClientVer  string
	IMAPVendor     string
	IMAPSupport    string

	// Attachments
	AttachmentDir string

	// Pipeline defaults (overridable per user via user_config rows)
	CheckIntervalMinutes int
	MaxEmailsPerAccount  int
	CheckDaysBack        int
	DuplicateCheckDays   int
	BodyMaxLength        int
	SubjectMaxLength     int

	// Scheduler
	SchedulerEnabled   bool
	MaxConcurrentUsers int
	ReleaseCooldown    time.Duration
	SummaryCallDelay   time.Duration

	// Shutdown
	DrainTimeout time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogDir:    getEnv("LOG_DIR", "logs"),

		// OpenAI
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:     getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:   getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeoutSec:    getEnvInt("LLM_TIMEOUT_SEC", 60),
		SummaryMaxLength: getEnvInt("SUMMARY_MAX_LENGTH", 200),

		// IMAP
		IMAPTimeout:    time.Duration(getEnvInt("IMAP_TIMEOUT_SEC", 30)) * time.Second,
		IMAPClientName: getEnv("IMAP_CLIENT_NAME", "maildigest"),
		IMAPClientVer:  getEnv("IMAP_CLIENT_VERSION", "1.0.0"),
		IMAPVendor:     getEnv("IMAP_CLIENT_VENDOR", "maildigest"),
		IMAPSupport:    getEnv("IMAP_CLIENT_SUPPORT_EMAIL", "support@maildigest.local"),

		// Attachments
		AttachmentDir: getEnv("ATTACHMENT_DIR", "attachments"),

		// Pipeline defaults
		CheckIntervalMinutes: getEnvInt("CHECK_INTERVAL_MINUTES", 30),
		MaxEmailsPerAccount:  getEnvInt("MAX_EMAILS_PER_ACCOUNT", 20),
		CheckDaysBack:        getEnvInt("CHECK_DAYS_BACK", 1),
		DuplicateCheckDays:   getEnvInt("DUPLICATE_CHECK_DAYS", 30),
		BodyMaxLength:        getEnvInt("EMAIL_BODY_MAX_LENGTH", 5000),
		SubjectMaxLength:     getEnvInt("EMAIL_SUBJECT_MAX_LENGTH", 500),

		// Scheduler
		SchedulerEnabled:   getEnvBool("SCHEDULER_ENABLED", true),
		MaxConcurrentUsers: getEnvInt("MAX_CONCURRENT_USERS", 3),
		ReleaseCooldown:    time.Duration(getEnvInt("RELEASE_COOLDOWN_MS", 1000)) * time.Millisecond,
		SummaryCallDelay:   time.Duration(getEnvInt("SUMMARY_CALL_DELAY_MS", 500)) * time.Millisecond,

		// Shutdown
		DrainTimeout: time.Duration(getEnvInt("DRAIN_TIMEOUT_SEC", 60)) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
