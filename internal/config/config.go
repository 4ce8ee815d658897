package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	LogFile  string

	// Storage
	StoreDriver   string
	DatabaseURL   string
	SQLitePath    string
	StoreTimeout  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	HoursCacheTTL time.Duration

	// Slot calculation and natural-language defaults
	SlotStepMinutes       int
	DefaultServiceMinutes int
	LastSlotPolicy        string
	FallbackDayOffset     int
	FallbackTime          string
	DefaultPhoneRegion    string

	// HTTP surface
	AdminToken         string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Channels
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	TwilioWebhookURL     string
	TwilioSkipSignature  bool
	TwilioNumberMapJSON  string
	VapiSecret           string
	StripeWebhookSecret  string
	SquareWebhookKey     string
	SquareWebhookBaseURL string

	// Notifications
	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BreakerFailures     int
	BreakerTimeout      time.Duration

	// Events
	EventBus                string
	KafkaBrokers            []string
	KafkaTopic              string
	RabbitMQURL             string
	RabbitMQExchange        string
	OutboxPollInterval      time.Duration
	OutboxBatchSize         int
	CompletionSweepInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", "memory")),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "nailspa.db"),
		StoreTimeout:  getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		HoursCacheTTL: getEnvAsDuration("HOURS_CACHE_TTL", 10*time.Minute),

		SlotStepMinutes:       getEnvAsInt("SLOT_STEP_MINUTES", 60),
		DefaultServiceMinutes: getEnvAsInt("DEFAULT_SERVICE_MINUTES", 60),
		LastSlotPolicy:        strings.ToLower(getEnv("LAST_SLOT_POLICY", "strict")),
		FallbackDayOffset:     getEnvAsInt("FALLBACK_DAY_OFFSET", 1),
		FallbackTime:          getEnv("FALLBACK_TIME", "14:00"),
		DefaultPhoneRegion:    getEnv("DEFAULT_PHONE_REGION", "US"),

		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookURL:     getEnv("TWILIO_WEBHOOK_URL", ""),
		TwilioSkipSignature:  getEnvAsBool("TWILIO_SKIP_SIGNATURE", false),
		TwilioNumberMapJSON:  getEnv("TWILIO_NUMBER_MAP_JSON", ""),
		VapiSecret:           getEnv("VAPI_SECRET", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		SquareWebhookKey:     getEnv("SQUARE_WEBHOOK_SIGNATURE_KEY", ""),
		SquareWebhookBaseURL: getEnv("SQUARE_WEBHOOK_BASE_URL", ""),

		EmailProvider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", ""),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BreakerFailures:     getEnvAsInt("BREAKER_FAILURES", 5),
		BreakerTimeout:      getEnvAsDuration("BREAKER_TIMEOUT", 30*time.Second),

		EventBus:                strings.ToLower(getEnv("EVENT_BUS", "none")),
		KafkaBrokers:            getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:              getEnv("KAFKA_TOPIC", "appointments"),
		RabbitMQURL:             getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:        getEnv("RABBITMQ_EXCHANGE", "appointments"),
		OutboxPollInterval:      getEnvAsDuration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:         getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		CompletionSweepInterval: getEnvAsDuration("COMPLETION_SWEEP_INTERVAL", 5*time.Minute),
	}
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
