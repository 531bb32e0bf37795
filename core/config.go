package core

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Mirror provider names accepted in MIRROR_PROVIDER.
const (
	MirrorProviderGemini = "gemini"
	MirrorProviderOpenAI = "openai"
)

// Defaults for values that have no sensible zero.
const (
	DefaultHTTPHost             = "0.0.0.0"
	DefaultHTTPPort             = 8080
	DefaultDatabasePath         = "./data/toolbox.db"
	DefaultLogFile              = "./logs/toolbox.log"
	DefaultDailyImageCredits    = 30
	DefaultCreditsTimezone      = "Asia/Seoul"
	DefaultGeminiModel          = "gemini-2.5-flash-image-preview"
	DefaultOpenAIImageModel     = "dall-e-2"
	DefaultMaxUploadMB          = 20
	DefaultMaxSourceMegapixels  = 24
	MaxSourceMegapixelsLimit    = 100
	DefaultMaxVariants          = 10
	DefaultVariantCount         = 5
	DefaultMaxConcurrentBatches = 2
	DefaultHistoryRetentionDays = 30
	MinAdminPasswordLength      = 8
)

// Config holds every setting the backend reads from the environment.
type Config struct {
	// Process
	DevMode  bool
	LogLevel string
	LogFile  string

	// HTTP
	HTTPHost       string
	HTTPPort       int
	SecureCookies  bool
	SessionTTL     time.Duration
	RedisURL       string
	MaxUploadBytes int64
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// Storage
	DatabasePath         string
	HistoryRetentionDays int

	// Credits
	DailyImageCredits int
	CreditsTimezone   string
	CreditsLocation   *time.Location

	// Mirror
	MirrorProvider   string
	GeminiAPIKey     string
	GeminiModel      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIImageModel string
	MirrorTimeout    time.Duration

	// Variation pipeline
	MaxVariants          int
	DefaultVariantCount  int
	MaxConcurrentBatches int
	VariationConfigFile  string
	// MaxSourcePixels bounds the decoded source, width times height
	MaxSourcePixels int64

	// Bootstrap admin, created or promoted at startup when both are set.
	AdminEmail    string
	AdminPassword string
}

// LoadConfig reads the environment and validates the result. Call
// godotenv.Load first if a .env file should be honoured.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DevMode:  ParseBoolEnv("DEV_MODE", false),
		LogLevel: GetEnvOrDefault("LOG_LEVEL", ""),
		LogFile:  GetEnvOrDefault("LOG_FILE", DefaultLogFile),

		HTTPHost:       GetEnvOrDefault("HTTP_HOST", DefaultHTTPHost),
		HTTPPort:       ParseIntEnv("HTTP_PORT", DefaultHTTPPort),
		SecureCookies:  ParseBoolEnv("SECURE_COOKIES", true),
		SessionTTL:     time.Duration(ParseIntEnv("SESSION_TTL_HOURS", 24)) * time.Hour,
		RedisURL:       GetEnvOrDefault("REDIS_URL", ""),
		MaxUploadBytes: ParseInt64Env("MAX_UPLOAD_MB", DefaultMaxUploadMB) << 20,

		TrustProxyHeaders: ParseBoolEnv("TRUST_PROXY_HEADERS", false),

		DatabasePath:         GetEnvOrDefault("DATABASE_PATH", DefaultDatabasePath),
		HistoryRetentionDays: ParseIntEnv("HISTORY_RETENTION_DAYS", DefaultHistoryRetentionDays),

		DailyImageCredits: ParseIntEnv("DAILY_IMAGE_CREDITS", DefaultDailyImageCredits),
		CreditsTimezone:   GetEnvOrDefault("CREDITS_TIMEZONE", DefaultCreditsTimezone),

		MirrorProvider:   strings.ToLower(GetEnvOrDefault("MIRROR_PROVIDER", MirrorProviderGemini)),
		GeminiAPIKey:     GetEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:      GetEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		OpenAIAPIKey:     GetEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    GetEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAIImageModel: GetEnvOrDefault("OPENAI_IMAGE_MODEL", DefaultOpenAIImageModel),
		MirrorTimeout:    ParseDurationEnv("MIRROR_TIMEOUT", 120),

		MaxVariants:          ParseIntEnv("MAX_VARIANTS", DefaultMaxVariants),
		DefaultVariantCount:  ParseIntEnv("DEFAULT_VARIANT_COUNT", DefaultVariantCount),
		MaxConcurrentBatches: ParseIntEnv("MAX_CONCURRENT_BATCHES", DefaultMaxConcurrentBatches),
		VariationConfigFile:  GetEnvOrDefault("VARIATION_CONFIG_FILE", ""),
		MaxSourcePixels:      ParseInt64Env("MAX_SOURCE_MEGAPIXELS", DefaultMaxSourceMegapixels) * 1_000_000,

		AdminEmail:    strings.TrimSpace(GetEnvOrDefault("ADMIN_EMAIL", "")),
		AdminPassword: GetEnvOrDefault("ADMIN_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field rules and resolves the credits
// timezone. The first problem found is returned as a *ConfigError.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return ErrInvalidValue("HTTP_PORT", fmt.Sprint(c.HTTPPort), "must be between 1 and 65535")
	}
	if c.SessionTTL <= 0 {
		return ErrInvalidValue("SESSION_TTL_HOURS", c.SessionTTL.String(), "must be at least 1")
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidValue("MAX_UPLOAD_MB", fmt.Sprint(c.MaxUploadBytes>>20), "must be positive")
	}
	if c.MaxSourcePixels < 1_000_000 || c.MaxSourcePixels > MaxSourceMegapixelsLimit*1_000_000 {
		return ErrInvalidValue("MAX_SOURCE_MEGAPIXELS", fmt.Sprint(c.MaxSourcePixels/1_000_000),
			fmt.Sprintf("must be between 1 and %d", MaxSourceMegapixelsLimit))
	}
	if c.DatabasePath == "" {
		return ErrMissingConfig("DATABASE_PATH")
	}
	if c.HistoryRetentionDays < 1 {
		return ErrInvalidValue("HISTORY_RETENTION_DAYS", fmt.Sprint(c.HistoryRetentionDays), "must be at least 1")
	}
	if c.DailyImageCredits < 0 {
		return ErrInvalidValue("DAILY_IMAGE_CREDITS", fmt.Sprint(c.DailyImageCredits), "must not be negative")
	}

	loc, err := time.LoadLocation(c.CreditsTimezone)
	if err != nil {
		return ErrInvalidTimezone(c.CreditsTimezone, err)
	}
	c.CreditsLocation = loc

	switch c.MirrorProvider {
	case MirrorProviderGemini, MirrorProviderOpenAI:
	default:
		return ErrInvalidValue("MIRROR_PROVIDER", c.MirrorProvider, "must be gemini or openai")
	}
	if c.MirrorTimeout <= 0 {
		return ErrInvalidValue("MIRROR_TIMEOUT", c.MirrorTimeout.String(), "must be positive")
	}

	if c.MaxVariants < 1 || c.MaxVariants > 50 {
		return ErrInvalidValue("MAX_VARIANTS", fmt.Sprint(c.MaxVariants), "must be between 1 and 50")
	}
	if c.DefaultVariantCount < 1 || c.DefaultVariantCount > c.MaxVariants {
		return ErrInvalidValue("DEFAULT_VARIANT_COUNT", fmt.Sprint(c.DefaultVariantCount),
			fmt.Sprintf("must be between 1 and MAX_VARIANTS (%d)", c.MaxVariants))
	}
	if c.MaxConcurrentBatches < 1 {
		return ErrInvalidValue("MAX_CONCURRENT_BATCHES", fmt.Sprint(c.MaxConcurrentBatches), "must be at least 1")
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return ErrMissingConfig("ADMIN_EMAIL and ADMIN_PASSWORD (set both or neither)")
	}
	if c.AdminEmail != "" {
		if _, err := mail.ParseAddress(c.AdminEmail); err != nil {
			return ErrInvalidValue("ADMIN_EMAIL", c.AdminEmail, "must be an email address")
		}
		if len(c.AdminPassword) < MinAdminPasswordLength {
			return ErrInvalidValue("ADMIN_PASSWORD", "", fmt.Sprintf("must be at least %d characters", MinAdminPasswordLength))
		}
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// MirrorAPIKey returns the key for the selected mirror provider.
func (c *Config) MirrorAPIKey() string {
	if c.MirrorProvider == MirrorProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// MirrorEnabled reports whether the selected provider has a key.
func (c *Config) MirrorEnabled() bool {
	return c.MirrorAPIKey() != ""
}

// HasBootstrapAdmin reports whether ADMIN_EMAIL / ADMIN_PASSWORD are set.
func (c *Config) HasBootstrapAdmin() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}
