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
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Certificates CertificatesConfig
	Verification VerificationConfig
	Batches      BatchesConfig
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

// CertificatesConfig governs document rendering and issuance.
type CertificatesConfig struct {
	InstitutionName  string
	FrontendBaseURL  string
	TemplatePath     string
	DefaultThreshold int
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	CleanupInterval  time.Duration
}

// VerificationConfig tunes the public verification endpoint.
type VerificationConfig struct {
	CacheTTL time.Duration
}

// BatchesConfig configures asynchronous bulk certificate rendering.
type BatchesConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
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

	threshold := v.GetInt("CERT_DEFAULT_COMPLETION_THRESHOLD")
	if threshold < 1 || threshold > 100 {
		threshold = 95
	}
	cfg.Certificates = CertificatesConfig{
		InstitutionName:  v.GetString("CERT_INSTITUTION_NAME"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("CERT_FRONTEND_BASE_URL"), "/"),
		TemplatePath:     v.GetString("CERT_TEMPLATE_PATH"),
		DefaultThreshold: threshold,
		StorageDir:       v.GetString("CERT_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("CERT_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("CERT_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:  parseDuration(v.GetString("CERT_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Verification = VerificationConfig{
		CacheTTL: parseDuration(v.GetString("VERIFY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Batches = BatchesConfig{
		Enabled:           v.GetBool("ENABLE_CERT_BATCHES"),
		WorkerConcurrency: v.GetInt("CERT_BATCH_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("CERT_BATCH_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lms_certify")
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

	v.SetDefault("CERT_INSTITUTION_NAME", "Online Learning Academy")
	v.SetDefault("CERT_FRONTEND_BASE_URL", "http://localhost:3000")
	v.SetDefault("CERT_TEMPLATE_PATH", "./assets/certificate_template.png")
	v.SetDefault("CERT_DEFAULT_COMPLETION_THRESHOLD", 95)
	v.SetDefault("CERT_STORAGE_DIR", "./certificates")
	v.SetDefault("CERT_SIGNED_URL_SECRET", "dev_cert_secret")
	v.SetDefault("CERT_SIGNED_URL_TTL", "24h")
	v.SetDefault("CERT_CLEANUP_INTERVAL", "1h")

	v.SetDefault("VERIFY_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_CERT_BATCHES", false)
	v.SetDefault("CERT_BATCH_WORKER_CONCURRENCY", 1)
	v.SetDefault("CERT_BATCH_WORKER_RETRIES", 3)
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
