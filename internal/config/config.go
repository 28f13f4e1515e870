package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// Meta webhook (shared by WhatsApp and Instagram)
	MetaAppSecret      string
	WebhookVerifyToken string

	// WhatsApp Cloud API
	WhatsAppToken         string
	WhatsAppPhoneNumberID string

	// Instagram Graph API
	InstagramPageToken string

	// SimplyBook scheduling authority
	SimplyBookBaseURL      string
	SimplyBookCompanyLogin string
	SimplyBookAPIKey       string
	SimplyBookMockMode     bool
	BookingTimeout         time.Duration

	// Message dedup window
	DedupTTL time.Duration

	// Per-conversation lock acquisition bound
	LockTimeout time.Duration

	AdminJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	MessageQueueURL     string
	MessageJobsTable    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Operator notification on handoff
	EmailProvider     string
	SESFromEmail      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	OperatorEmail     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		MetaAppSecret:      getEnv("META_APP_SECRET", ""),
		WebhookVerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", ""),

		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),

		InstagramPageToken: getEnv("INSTAGRAM_PAGE_ACCESS_TOKEN", ""),

		SimplyBookBaseURL:      getEnv("SIMPLYBOOK_BASE_URL", "https://user-api.simplybook.me"),
		SimplyBookCompanyLogin: getEnv("SIMPLYBOOK_COMPANY_LOGIN", ""),
		SimplyBookAPIKey:       getEnv("SIMPLYBOOK_API_KEY", ""),
		SimplyBookMockMode:     getEnvAsBool("SIMPLYBOOK_MOCK_MODE", false),
		BookingTimeout:         getEnvAsDuration("BOOKING_TIMEOUT", 10*time.Second),

		DedupTTL: getEnvAsDuration("MESSAGE_DEDUP_TTL", 24*time.Hour),

		LockTimeout: getEnvAsDuration("CONVERSATION_LOCK_TIMEOUT", 30*time.Second),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MessageQueueURL:     getEnv("MESSAGE_QUEUE_URL", ""),
		MessageJobsTable:    getEnv("MESSAGE_JOBS_TABLE", "message_jobs"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "ses"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CitaFlow"),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),
	}
}

// IsProduction reports whether the app runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations that must never reach production.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.SimplyBookMockMode {
			return fmt.Errorf("config: SIMPLYBOOK_MOCK_MODE cannot be enabled in production")
		}
		if c.MetaAppSecret == "" {
			return fmt.Errorf("config: META_APP_SECRET is required in production")
		}
		if c.WebhookVerifyToken == "" {
			return fmt.Errorf("config: WEBHOOK_VERIFY_TOKEN is required in production")
		}
		if c.AdminJWTSecret == "" {
			return fmt.Errorf("config: ADMIN_JWT_SECRET is required in production")
		}
	}
	return nil
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
