package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Docling    DoclingConfig
	Uploads    UploadsConfig
	Processing ProcessingConfig
	RateLimits RateLimitsConfig
	Health     HealthConfig
	Analytics  AnalyticsConfig
	Exports    ExportsConfig
	Mail       MailConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DoclingConfig locates the external document processor and tunes its invocation.
type DoclingConfig struct {
	PythonBin     string
	ScriptPath    string
	WorkDir       string
	Timeout       time.Duration
	OCREnabled    bool
	VLMEnabled    bool
	VLMModel      string
	CodeEnrich    bool
	FormulaEnrich bool
}

// UploadsConfig controls upload storage and validation limits.
type UploadsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ProcessingConfig governs the PDF processing job queue.
type ProcessingConfig struct {
	WorkerConcurrency int
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// RateLimitsConfig declares per-action fixed windows and the upload burst bucket.
type RateLimitsConfig struct {
	UploadWindow      time.Duration
	UploadMax         int
	ProcessingWindow  time.Duration
	ProcessingMax     int
	InviteWindow      time.Duration
	InviteMax         int
	BurstCapacity     int
	BurstRefillPerSec float64
}

// HealthConfig tunes probe thresholds and the background check interval.
type HealthConfig struct {
	Interval          time.Duration
	ProbeTimeout      time.Duration
	DegradedThreshold time.Duration
	AlertLogSize      int
}

// AnalyticsConfig governs cache behaviour for dashboard aggregates and the
// daily stats rollup job.
type AnalyticsConfig struct {
	CacheTTL      time.Duration
	StatsInterval time.Duration
}

// ExportsConfig configures progress report exports.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// MailConfig configures the SMTP mailer used for invitations.
type MailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Sender   string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Docling = DoclingConfig{
		PythonBin:     v.GetString("DOCLING_PYTHON_BIN"),
		ScriptPath:    v.GetString("DOCLING_SCRIPT_PATH"),
		WorkDir:       v.GetString("DOCLING_WORK_DIR"),
		Timeout:       parseDuration(v.GetString("DOCLING_TIMEOUT"), 10*time.Minute),
		OCREnabled:    v.GetBool("DOCLING_OCR_ENABLED"),
		VLMEnabled:    v.GetBool("DOCLING_VLM_ENABLED"),
		VLMModel:      v.GetString("DOCLING_VLM_MODEL"),
		CodeEnrich:    v.GetBool("DOCLING_CODE_ENRICHMENT"),
		FormulaEnrich: v.GetBool("DOCLING_FORMULA_ENRICHMENT"),
	}

	maxUploadSize := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 50 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:       v.GetString("UPLOADS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), 15*time.Minute),
		MaxFileSizeBytes: maxUploadSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOADS_ALLOWED_MIME_TYPES")),
	}

	cfg.Processing = ProcessingConfig{
		WorkerConcurrency: v.GetInt("PROCESSING_WORKER_CONCURRENCY"),
		MaxRetries:        v.GetInt("PROCESSING_MAX_RETRIES"),
		RetryBaseDelay:    parseDuration(v.GetString("PROCESSING_RETRY_BASE_DELAY"), 5*time.Second),
	}

	cfg.RateLimits = RateLimitsConfig{
		UploadWindow:      parseDuration(v.GetString("RATE_LIMIT_UPLOAD_WINDOW"), time.Minute),
		UploadMax:         v.GetInt("RATE_LIMIT_UPLOAD_MAX"),
		ProcessingWindow:  parseDuration(v.GetString("RATE_LIMIT_PROCESSING_WINDOW"), time.Hour),
		ProcessingMax:     v.GetInt("RATE_LIMIT_PROCESSING_MAX"),
		InviteWindow:      parseDuration(v.GetString("RATE_LIMIT_INVITE_WINDOW"), 24*time.Hour),
		InviteMax:         v.GetInt("RATE_LIMIT_INVITE_MAX"),
		BurstCapacity:     v.GetInt("RATE_LIMIT_BURST_CAPACITY"),
		BurstRefillPerSec: v.GetFloat64("RATE_LIMIT_BURST_REFILL_PER_SEC"),
	}

	cfg.Health = HealthConfig{
		Interval:          parseDuration(v.GetString("HEALTH_CHECK_INTERVAL"), 5*time.Minute),
		ProbeTimeout:      parseDuration(v.GetString("HEALTH_PROBE_TIMEOUT"), 5*time.Second),
		DegradedThreshold: parseDuration(v.GetString("HEALTH_DEGRADED_THRESHOLD"), time.Second),
		AlertLogSize:      v.GetInt("HEALTH_ALERT_LOG_SIZE"),
	}

	cfg.Analytics = AnalyticsConfig{
		CacheTTL:      parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		StatsInterval: parseDuration(v.GetString("DAILY_STATS_INTERVAL"), time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Mail = MailConfig{
		Enabled:  v.GetBool("MAIL_ENABLED"),
		Host:     v.GetString("MAIL_SMTP_HOST"),
		Port:     v.GetInt("MAIL_SMTP_PORT"),
		Sender:   v.GetString("MAIL_SENDER"),
		Password: v.GetString("MAIL_PASSWORD"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "modulearn")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DOCLING_PYTHON_BIN", "python3")
	v.SetDefault("DOCLING_SCRIPT_PATH", "./scripts/docling_processor.py")
	v.SetDefault("DOCLING_WORK_DIR", "/tmp/modulearn-docling")
	v.SetDefault("DOCLING_TIMEOUT", "10m")
	v.SetDefault("DOCLING_OCR_ENABLED", true)
	v.SetDefault("DOCLING_VLM_ENABLED", true)
	v.SetDefault("DOCLING_VLM_MODEL", "SmolDocling")
	v.SetDefault("DOCLING_CODE_ENRICHMENT", false)
	v.SetDefault("DOCLING_FORMULA_ENRICHMENT", false)

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_SIGNED_URL_SECRET", "dev_uploads_secret")
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "15m")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 50*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_MIME_TYPES", "application/pdf")

	v.SetDefault("PROCESSING_WORKER_CONCURRENCY", 2)
	v.SetDefault("PROCESSING_MAX_RETRIES", 3)
	v.SetDefault("PROCESSING_RETRY_BASE_DELAY", "5s")

	v.SetDefault("RATE_LIMIT_UPLOAD_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_UPLOAD_MAX", 5)
	v.SetDefault("RATE_LIMIT_PROCESSING_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_PROCESSING_MAX", 10)
	v.SetDefault("RATE_LIMIT_INVITE_WINDOW", "24h")
	v.SetDefault("RATE_LIMIT_INVITE_MAX", 20)
	v.SetDefault("RATE_LIMIT_BURST_CAPACITY", 3)
	v.SetDefault("RATE_LIMIT_BURST_REFILL_PER_SEC", 0.1)

	v.SetDefault("HEALTH_CHECK_INTERVAL", "5m")
	v.SetDefault("HEALTH_PROBE_TIMEOUT", "5s")
	v.SetDefault("HEALTH_DEGRADED_THRESHOLD", "1s")
	v.SetDefault("HEALTH_ALERT_LOG_SIZE", 100)

	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("DAILY_STATS_INTERVAL", "1h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("MAIL_SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("MAIL_SMTP_PORT", 587)
	v.SetDefault("MAIL_SENDER", "")
	v.SetDefault("MAIL_PASSWORD", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
