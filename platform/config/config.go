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

// RedisConfig provides settings for the Redis index client.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetFollowUpSweepInterval() time.Duration
}

// CompletionConfig provides settings for the external completion service.
type CompletionConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetCompletionTimeout() time.Duration
	GetCompletionRPS() float64
	IsCompletionEnabled() bool
}

// EmailConfig provides settings for the SMTP notification channel.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// WhatsAppConfig provides settings for the WhatsApp gateway channel.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// BusinessHoursConfig provides the business-hour window used by scoring
// and the do-not-disturb window honored by the follow-up scheduler.
type BusinessHoursConfig interface {
	GetBusinessHourStart() int
	GetBusinessHourEnd() int
	GetQuietHourStart() int
	GetQuietHourEnd() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	DatabaseURL           string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	FollowUpSweepInterval time.Duration
	GeminiAPIKey          string
	GeminiModel           string
	CompletionTimeout     time.Duration
	CompletionRPS         float64
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	EmailFromName         string
	EmailFromAddress      string
	WhatsAppURL           string
	WhatsAppKey           string
	WhatsAppDeviceID      string
	BusinessHourStart     int
	BusinessHourEnd       int
	QuietHourStart        int
	QuietHourEnd          int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string               { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                { return c.AsynqConcurrency }
func (c *Config) GetFollowUpSweepInterval() time.Duration { return c.FollowUpSweepInterval }

// CompletionConfig implementation
func (c *Config) GetGeminiAPIKey() string             { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string              { return c.GeminiModel }
func (c *Config) GetCompletionTimeout() time.Duration { return c.CompletionTimeout }
func (c *Config) GetCompletionRPS() float64           { return c.CompletionRPS }
func (c *Config) IsCompletionEnabled() bool           { return c.GeminiAPIKey != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.SMTPHost != "" && c.EmailFromAddress != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// BusinessHoursConfig implementation
func (c *Config) GetBusinessHourStart() int { return c.BusinessHourStart }
func (c *Config) GetBusinessHourEnd() int   { return c.BusinessHourEnd }
func (c *Config) GetQuietHourStart() int    { return c.QuietHourStart }
func (c *Config) GetQuietHourEnd() int      { return c.QuietHourEnd }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "leads"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		FollowUpSweepInterval: mustDuration(getEnv("FOLLOWUP_SWEEP_INTERVAL", "30s")),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		CompletionTimeout:     mustDuration(getEnv("COMPLETION_TIMEOUT", "12s")),
		CompletionRPS:         mustFloat(getEnv("COMPLETION_RPS", "2")),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "LeadPilot"),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		WhatsAppURL:           getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:           getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:      getEnv("WHATSAPP_DEVICE_ID", ""),
		BusinessHourStart:     mustInt(getEnv("BUSINESS_HOUR_START", "9")),
		BusinessHourEnd:       mustInt(getEnv("BUSINESS_HOUR_END", "19")),
		QuietHourStart:        mustInt(getEnv("QUIET_HOUR_START", "21")),
		QuietHourEnd:          mustInt(getEnv("QUIET_HOUR_END", "8")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.BusinessHourStart < 0 || cfg.BusinessHourEnd > 24 || cfg.BusinessHourStart >= cfg.BusinessHourEnd {
		return nil, fmt.Errorf("invalid business hour window %d-%d", cfg.BusinessHourStart, cfg.BusinessHourEnd)
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
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}
