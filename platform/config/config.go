// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetWebhookRateLimit() float64
	GetWebhookRateBurst() int
}

// SchedulerConfig provides settings for the asynq worker and periodic follow-up sweep.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetFollowupSweepInterval() time.Duration
}

// WhatsAppConfig provides settings for the WhatsApp Cloud API.
type WhatsAppConfig interface {
	GetWhatsAppVerifyToken() string
	GetWhatsAppPhoneNumberID() string
	GetWhatsAppAccessToken() string
	GetWhatsAppGraphVersion() string
	GetWhatsAppAppSecret() string
	GetWhatsAppProviderTemplateName() string
	GetWhatsAppProviderTemplateLang() string
	GetWhatsAppSendRate() float64
	IsWhatsAppConfigured() bool
}

// ClassifierConfig provides settings for the optional language-model intent classifier.
type ClassifierConfig interface {
	IsClassifierEnabled() bool
	GetClassifierAPIKey() string
	GetClassifierBaseURL() string
	GetClassifierModel() string
	GetClassifierTimeout() time.Duration
}

// FollowupConfig provides follow-up timing.
type FollowupConfig interface {
	GetFollowupContactAfter() time.Duration
	GetFollowupReminderEvery() time.Duration
	GetPracticalBlock() time.Duration
}

// MatchingConfig provides provider matching settings.
type MatchingConfig interface {
	GetTopProvidersLimit() int
}

// LocalityConfig provides locality normalization settings.
type LocalityConfig interface {
	GetLocalityAliases() map[string]string
	GetPhoneDefaultRegion() string
}

// IntentConfig provides intent catalog settings.
type IntentConfig interface {
	GetIntentCatalogPath() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	WebhookRateLimit float64
	WebhookRateBurst int

	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	FollowupSweepInterval time.Duration

	WhatsAppVerifyToken          string
	WhatsAppPhoneNumberID        string
	WhatsAppAccessToken          string
	WhatsAppGraphVersion         string
	WhatsAppAppSecret            string
	WhatsAppProviderTemplateName string
	WhatsAppProviderTemplateLang string
	WhatsAppSendRate             float64

	ClassifierEnabled bool
	ClassifierAPIKey  string
	ClassifierBaseURL string
	ClassifierModel   string
	ClassifierTimeout time.Duration

	FollowupContactAfter  time.Duration
	FollowupReminderEvery time.Duration
	PracticalBlockDays    int

	TopProvidersLimit int

	LocalityAliases    map[string]string
	PhoneDefaultRegion string
	IntentCatalogPath  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetWebhookRateLimit() float64 { return c.WebhookRateLimit }
func (c *Config) GetWebhookRateBurst() int     { return c.WebhookRateBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                     { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool               { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string               { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                { return c.AsynqConcurrency }
func (c *Config) GetFollowupSweepInterval() time.Duration { return c.FollowupSweepInterval }
func (c *Config) IsRedisEnabled() bool                    { return c.RedisURL != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppVerifyToken() string   { return c.WhatsAppVerifyToken }
func (c *Config) GetWhatsAppPhoneNumberID() string { return c.WhatsAppPhoneNumberID }
func (c *Config) GetWhatsAppAccessToken() string   { return c.WhatsAppAccessToken }
func (c *Config) GetWhatsAppGraphVersion() string  { return c.WhatsAppGraphVersion }
func (c *Config) GetWhatsAppAppSecret() string     { return c.WhatsAppAppSecret }
func (c *Config) GetWhatsAppProviderTemplateName() string {
	return c.WhatsAppProviderTemplateName
}
func (c *Config) GetWhatsAppProviderTemplateLang() string {
	return c.WhatsAppProviderTemplateLang
}
func (c *Config) GetWhatsAppSendRate() float64 { return c.WhatsAppSendRate }
func (c *Config) IsWhatsAppConfigured() bool {
	return c.WhatsAppPhoneNumberID != "" && c.WhatsAppAccessToken != ""
}

// ClassifierConfig implementation
func (c *Config) IsClassifierEnabled() bool {
	return c.ClassifierEnabled && c.ClassifierAPIKey != ""
}
func (c *Config) GetClassifierAPIKey() string         { return c.ClassifierAPIKey }
func (c *Config) GetClassifierBaseURL() string        { return c.ClassifierBaseURL }
func (c *Config) GetClassifierModel() string          { return c.ClassifierModel }
func (c *Config) GetClassifierTimeout() time.Duration { return c.ClassifierTimeout }

// FollowupConfig implementation
func (c *Config) GetFollowupContactAfter() time.Duration  { return c.FollowupContactAfter }
func (c *Config) GetFollowupReminderEvery() time.Duration { return c.FollowupReminderEvery }
func (c *Config) GetPracticalBlock() time.Duration {
	return time.Duration(c.PracticalBlockDays) * 24 * time.Hour
}

// MatchingConfig implementation
func (c *Config) GetTopProvidersLimit() int { return c.TopProvidersLimit }

// LocalityConfig implementation
func (c *Config) GetLocalityAliases() map[string]string { return c.LocalityAliases }
func (c *Config) GetPhoneDefaultRegion() string         { return c.PhoneDefaultRegion }

// IntentConfig implementation
func (c *Config) GetIntentCatalogPath() string { return c.IntentCatalogPath }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		WebhookRateLimit: mustFloat(getEnv("WEBHOOK_RATE_LIMIT", "50")),
		WebhookRateBurst: mustInt(getEnv("WEBHOOK_RATE_BURST", "100")),

		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		FollowupSweepInterval: mustDuration(getEnv("FOLLOWUP_SWEEP_INTERVAL", "30s")),

		WhatsAppVerifyToken:          getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppPhoneNumberID:        getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:          getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppGraphVersion:         getEnv("WHATSAPP_GRAPH_VERSION", "v20.0"),
		WhatsAppAppSecret:            getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppProviderTemplateName: getEnv("WHATSAPP_PROVIDER_TEMPLATE_NAME", ""),
		WhatsAppProviderTemplateLang: getEnv("WHATSAPP_PROVIDER_TEMPLATE_LANG", "es_ES"),
		WhatsAppSendRate:             mustFloat(getEnv("WHATSAPP_SEND_RATE", "20")),

		ClassifierEnabled: strings.EqualFold(getEnv("CLASSIFIER_ENABLED", "false"), "true"),
		ClassifierAPIKey:  getEnv("CLASSIFIER_API_KEY", ""),
		ClassifierBaseURL: getEnv("CLASSIFIER_BASE_URL", "https://api.openai.com/v1"),
		ClassifierModel:   getEnv("CLASSIFIER_MODEL", "gpt-4.1-mini"),
		ClassifierTimeout: mustDuration(getEnv("CLASSIFIER_TIMEOUT", "20s")),

		FollowupContactAfter:  mustDuration(getEnv("FOLLOWUP_CONTACT_AFTER", "24h")),
		FollowupReminderEvery: mustDuration(getEnv("FOLLOWUP_REMINDER_EVERY", "24h")),
		PracticalBlockDays:    mustInt(getEnv("PRACTICAL_BLOCK_DAYS", "7")),

		TopProvidersLimit: mustInt(getEnv("TOP_PROVIDERS_LIMIT", "3")),

		LocalityAliases:    parseAliases(getEnv("LOCALITY_ALIASES", "")),
		PhoneDefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "CL")),
		IntentCatalogPath:  getEnv("INTENT_CATALOG_PATH", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TopProvidersLimit <= 0 {
		return nil, fmt.Errorf("TOP_PROVIDERS_LIMIT must be positive")
	}
	if cfg.FollowupSweepInterval <= 0 {
		return nil, fmt.Errorf("FOLLOWUP_SWEEP_INTERVAL must be a positive duration")
	}
	if cfg.FollowupContactAfter <= 0 || cfg.FollowupReminderEvery <= 0 {
		return nil, fmt.Errorf("FOLLOWUP_CONTACT_AFTER and FOLLOWUP_REMINDER_EVERY must be positive durations")
	}
	if cfg.PracticalBlockDays < 0 {
		return nil, fmt.Errorf("PRACTICAL_BLOCK_DAYS cannot be negative")
	}
	if cfg.ClassifierEnabled && cfg.ClassifierAPIKey == "" {
		return nil, fmt.Errorf("CLASSIFIER_API_KEY is required when CLASSIFIER_ENABLED is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

// parseAliases reads "alias=canonical" pairs separated by commas.
func parseAliases(value string) map[string]string {
	aliases := make(map[string]string)
	for _, pair := range splitCSV(value) {
		alias, canonical, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		alias = strings.TrimSpace(alias)
		canonical = strings.TrimSpace(canonical)
		if alias == "" || canonical == "" {
			continue
		}
		aliases[alias] = canonical
	}
	return aliases
}
