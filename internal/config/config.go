package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxExternalTimeout bounds every call to an external capability.
const maxExternalTimeout = 30 * time.Second

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	UseMemoryQueue  bool
	WorkerCount     int
	InboundQueueURL string

	DatabaseURL   string
	DraftStore    string
	DraftsTable   string
	DraftCacheTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	DebounceWindow      time.Duration
	DebounceGuardMargin time.Duration
	DebounceScheduler   string
	DebounceWorkers     int

	OpeningTime      string
	ClosingTime      string
	BusinessTimezone string

	LLMProvider    string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string
	LLMTimeout     time.Duration
	LLMMaxRetries  int

	BookingAPIMode       string
	BookingAPIBaseURL    string
	BookingAPIKey        string
	BookingAPISecret     string
	BookingAPITimeout    time.Duration
	BookingAPIMaxRetries int

	WhatsAppBaseURL        string
	WhatsAppAPIVersion     string
	WhatsAppPhoneNumberID  string
	WhatsAppAccessToken    string
	WhatsAppAppSecret      string
	WhatsAppVerifyToken    string
	WhatsAppSendsPerSecond float64
	ReplyDelay             time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables, after merging an
// optional .env file from the working directory.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		InboundQueueURL: getEnv("INBOUND_QUEUE_URL", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DraftStore:    strings.ToLower(getEnv("DRAFT_STORE", "redis")),
		DraftsTable:   getEnv("DRAFTS_TABLE", "booking-drafts"),
		DraftCacheTTL: getEnvAsDuration("DRAFT_CACHE_TTL", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DebounceWindow:      getEnvAsDuration("DEBOUNCE_WINDOW", 10*time.Second),
		DebounceGuardMargin: getEnvAsDuration("DEBOUNCE_GUARD_MARGIN", time.Second),
		DebounceScheduler:   strings.ToLower(getEnv("DEBOUNCE_SCHEDULER", "timer")),
		DebounceWorkers:     getEnvAsInt("DEBOUNCE_WORKERS", 8),

		OpeningTime:      getEnv("OPENING_TIME", "11:00"),
		ClosingTime:      getEnv("CLOSING_TIME", "23:30"),
		BusinessTimezone: getEnv("BUSINESS_TIMEZONE", "Asia/Kuala_Lumpur"),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:     capTimeout(getEnvAsDuration("LLM_TIMEOUT", maxExternalTimeout)),
		LLMMaxRetries:  getEnvAsInt("LLM_MAX_RETRIES", 2),

		BookingAPIMode:       strings.ToLower(getEnv("BOOKING_API_MODE", "mock")),
		BookingAPIBaseURL:    getEnv("BOOKING_API_BASE_URL", ""),
		BookingAPIKey:        getEnv("BOOKING_API_KEY", ""),
		BookingAPISecret:     getEnv("BOOKING_API_SECRET", ""),
		BookingAPITimeout:    capTimeout(getEnvAsDuration("BOOKING_API_TIMEOUT", maxExternalTimeout)),
		BookingAPIMaxRetries: getEnvAsInt("BOOKING_API_MAX_RETRIES", 2),

		WhatsAppBaseURL:        getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:     getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppPhoneNumberID:  getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:    getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppAppSecret:      getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken:    getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppSendsPerSecond: getEnvAsFloat("WHATSAPP_SENDS_PER_SECOND", 20),
		ReplyDelay:             getEnvAsDuration("REPLY_DELAY", 0),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// GuardTTL is how long the scheduling guard outlives one debounce window.
func (c *Config) GuardTTL() time.Duration {
	return c.DebounceWindow + c.DebounceGuardMargin
}

func capTimeout(d time.Duration) time.Duration {
	if d <= 0 || d > maxExternalTimeout {
		return maxExternalTimeout
	}
	return d
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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
