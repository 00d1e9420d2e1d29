// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"encoding/hex"
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

// RedisConfig provides redis connection settings for the state store and queues.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq worker and client.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqConcurrency() int
	GetCallInitiateRate() float64
	GetCallInitiateBurst() int
}

// VapiConfig provides settings for the voice provider.
type VapiConfig interface {
	GetVapiBaseURL() string
	GetVapiAPIKey() string
	GetVapiPhoneNumberID() string
	GetVapiAssistantID() string
	GetWebhookBaseURL() string
	GetWebhookSecret() string
}

// WebhookConfig provides settings for the inbound turn-handler endpoint.
type WebhookConfig interface {
	GetWebhookSecret() string
}

// NegotiationConfig provides the negotiation policy tunables and state TTL.
type NegotiationConfig interface {
	GetNegotiationMaxAttempts() int
	GetClarificationMaxAttempts() int
	GetNegotiationToleranceBps() int
	GetCallStateTTL() time.Duration
}

// RetryConfig provides the retry/fallback policy for failed call attempts.
type RetryConfig interface {
	GetMaxCallAttempts() int
	GetRetryBaseDelay() time.Duration
	GetRetryMaxDelay() time.Duration
	GetEmailFallbackDelay() time.Duration
}

// EmailConfig provides settings for the fallback email channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetOpsEmailAddress() string
}

// StorageConfig provides settings for MinIO recording archival.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetRecordingsBucket() string
	IsStorageEnabled() bool
}

// SecretsConfig provides the key used to decrypt BYOK credentials.
type SecretsConfig interface {
	GetCredentialEncryptionKey() []byte
}

// InterpreterConfig provides settings for the utterance interpreter.
type InterpreterConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	IsLLMInterpreterEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	RedisURL                 string
	RedisTLSInsecure         bool
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	AsynqConcurrency         int
	CallInitiateRate         float64
	CallInitiateBurst        int
	VapiBaseURL              string
	VapiAPIKey               string
	VapiPhoneNumberID        string
	VapiAssistantID          string
	WebhookBaseURL           string
	WebhookSecret            string
	NegotiationMaxAttempts   int
	ClarificationMaxAttempts int
	NegotiationToleranceBps  int
	CallStateTTL             time.Duration
	MaxCallAttempts          int
	RetryBaseDelay           time.Duration
	RetryMaxDelay            time.Duration
	EmailFallbackDelay       time.Duration
	EmailEnabled             bool
	SMTPHost                 string
	SMTPPort                 int
	SMTPUsername             string
	SMTPPassword             string
	EmailFromName            string
	EmailFromAddress         string
	OpsEmailAddress          string
	MinIOEndpoint            string
	MinIOAccessKey           string
	MinIOSecretKey           string
	MinIOUseSSL              bool
	RecordingsBucket         string
	CredentialEncryptionKey  []byte
	GeminiAPIKey             string
	GeminiModel              string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetAsynqConcurrency() int     { return c.AsynqConcurrency }
func (c *Config) GetCallInitiateRate() float64 { return c.CallInitiateRate }
func (c *Config) GetCallInitiateBurst() int    { return c.CallInitiateBurst }

// VapiConfig implementation
func (c *Config) GetVapiBaseURL() string       { return c.VapiBaseURL }
func (c *Config) GetVapiAPIKey() string        { return c.VapiAPIKey }
func (c *Config) GetVapiPhoneNumberID() string { return c.VapiPhoneNumberID }
func (c *Config) GetVapiAssistantID() string   { return c.VapiAssistantID }
func (c *Config) GetWebhookBaseURL() string    { return c.WebhookBaseURL }
func (c *Config) GetWebhookSecret() string     { return c.WebhookSecret }

// NegotiationConfig implementation
func (c *Config) GetNegotiationMaxAttempts() int   { return c.NegotiationMaxAttempts }
func (c *Config) GetClarificationMaxAttempts() int { return c.ClarificationMaxAttempts }
func (c *Config) GetNegotiationToleranceBps() int  { return c.NegotiationToleranceBps }
func (c *Config) GetCallStateTTL() time.Duration   { return c.CallStateTTL }

// RetryConfig implementation
func (c *Config) GetMaxCallAttempts() int             { return c.MaxCallAttempts }
func (c *Config) GetRetryBaseDelay() time.Duration    { return c.RetryBaseDelay }
func (c *Config) GetRetryMaxDelay() time.Duration     { return c.RetryMaxDelay }
func (c *Config) GetEmailFallbackDelay() time.Duration { return c.EmailFallbackDelay }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetOpsEmailAddress() string  { return c.OpsEmailAddress }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetRecordingsBucket() string { return c.RecordingsBucket }
func (c *Config) IsStorageEnabled() bool      { return c.MinIOEndpoint != "" }

// SecretsConfig implementation
func (c *Config) GetCredentialEncryptionKey() []byte { return c.CredentialEncryptionKey }

// InterpreterConfig implementation
func (c *Config) GetGeminiAPIKey() string      { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string       { return c.GeminiModel }
func (c *Config) IsLLMInterpreterEnabled() bool { return c.GeminiAPIKey != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "")

	var encKey []byte
	if raw := getEnv("CREDENTIAL_ENCRYPTION_KEY", ""); raw != "" {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be hex-encoded: %w", err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must decode to 32 bytes")
		}
		encKey = decoded
	}

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AsynqConcurrency:         mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CallInitiateRate:         mustFloat(getEnv("CALL_INITIATE_RATE", "0.5")),
		CallInitiateBurst:        mustInt(getEnv("CALL_INITIATE_BURST", "2")),
		VapiBaseURL:              getEnv("VAPI_BASE_URL", "https://api.vapi.ai"),
		VapiAPIKey:               getEnv("VAPI_API_KEY", ""),
		VapiPhoneNumberID:        getEnv("VAPI_PHONE_NUMBER_ID", ""),
		VapiAssistantID:          getEnv("VAPI_ASSISTANT_ID", ""),
		WebhookBaseURL:           getEnv("WEBHOOK_BASE_URL", ""),
		WebhookSecret:            getEnv("WEBHOOK_SECRET", ""),
		NegotiationMaxAttempts:   mustInt(getEnv("NEGOTIATION_MAX_ATTEMPTS", "2")),
		ClarificationMaxAttempts: mustInt(getEnv("CLARIFICATION_MAX_ATTEMPTS", "3")),
		NegotiationToleranceBps:  mustInt(getEnv("NEGOTIATION_TOLERANCE_BPS", "1000")),
		CallStateTTL:             mustDuration(getEnv("CALL_STATE_TTL", "4h")),
		MaxCallAttempts:          mustInt(getEnv("MAX_CALL_ATTEMPTS", "3")),
		RetryBaseDelay:           mustDuration(getEnv("RETRY_BASE_DELAY", "2m")),
		RetryMaxDelay:            mustDuration(getEnv("RETRY_MAX_DELAY", "5m")),
		EmailFallbackDelay:       mustDuration(getEnv("EMAIL_FALLBACK_DELAY", "30s")),
		EmailEnabled:             emailEnabled && smtpHost != "",
		SMTPHost:                 smtpHost,
		SMTPPort:                 mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:             getEnv("SMTP_USERNAME", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		EmailFromName:            getEnv("EMAIL_FROM_NAME", "PartsIQ"),
		EmailFromAddress:         getEnv("EMAIL_FROM_ADDRESS", ""),
		OpsEmailAddress:          getEnv("OPS_EMAIL_ADDRESS", ""),
		MinIOEndpoint:            getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:           getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:           getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:              strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		RecordingsBucket:         getEnv("MINIO_BUCKET_CALL_RECORDINGS", "call-recordings"),
		CredentialEncryptionKey:  encKey,
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModel:              getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if emailEnabled && cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
