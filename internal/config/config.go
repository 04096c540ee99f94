package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	AppURL        string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// WhatsApp Cloud API
	AppSecret     string
	AccessToken   string
	VerifyToken   string
	GraphVersion  string
	PhoneNumberID string

	// Clinic identity and location
	Timezone          string
	BusinessName      string
	BusinessAddress   string
	BusinessLatitude  float64
	BusinessLongitude float64

	// Vacations seeded from env (comma-separated start dates + day counts)
	VacationStartDates string
	VacationDurations  string
	VacationMessage    string

	// Inbound queue
	QueueWorkers      int
	QueuePollInterval time.Duration
	QueueMaxAttempts  int
	QueueClaimTTL     time.Duration

	// LLM
	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	LLMRetryBudget  time.Duration
	LLMMaxTurns     int

	// Capacity per persona
	AgentMaxReservations     int
	SecretaryMaxReservations int

	SchedulerLockPath string
	ReminderHour      int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AppURL:        getEnv("APP_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		AppSecret:     getEnv("APP_SECRET", ""),
		AccessToken:   getEnv("ACCESS_TOKEN", ""),
		VerifyToken:   getEnv("VERIFY_TOKEN", ""),
		GraphVersion:  getEnv("VERSION", "v17.0"),
		PhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),

		Timezone:          getEnv("TIMEZONE", "Asia/Riyadh"),
		BusinessName:      getEnv("BUSINESS_NAME", ""),
		BusinessAddress:   getEnv("BUSINESS_ADDRESS", ""),
		BusinessLatitude:  getEnvAsFloat("BUSINESS_LATITUDE", 0),
		BusinessLongitude: getEnvAsFloat("BUSINESS_LONGITUDE", 0),

		VacationStartDates: getEnv("VACATION_START_DATES", ""),
		VacationDurations:  getEnv("VACATION_DURATIONS", ""),
		VacationMessage:    getEnv("VACATION_MESSAGE", ""),

		QueueWorkers:      getEnvAsInt("INBOUND_QUEUE_WORKERS", 2),
		QueuePollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		QueueMaxAttempts:  getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueClaimTTL:     getEnvAsDuration("CLAIM_STALE_TTL", 5*time.Minute),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "anthropic"))),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMRetryBudget:  getEnvAsDuration("LLM_RETRY_BUDGET", 3*time.Hour),
		LLMMaxTurns:     getEnvAsInt("LLM_MAX_TURNS", 10),

		AgentMaxReservations:     getEnvAsInt("AGENT_MAX_RESERVATIONS", 5),
		SecretaryMaxReservations: getEnvAsInt("SECRETARY_MAX_RESERVATIONS", 6),

		SchedulerLockPath: getEnv("SCHEDULER_LOCK_PATH", "/tmp/clinic-scheduler.lock"),
		ReminderHour:      getEnvAsInt("REMINDER_HOUR", 19),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
