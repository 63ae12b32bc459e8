package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	DB       DBConfig
	Provider ProviderConfig
	Cache    CacheConfig
	Ingest   IngestConfig
	Query    QueryConfig
	OTel     OTelConfig
	Worker   WorkerConfig
}

type DBConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
	MinConns int
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the discrete fields.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	EmbedModel     string
	ChatModel      string
	Concurrency    int
	TimeoutMs      int
	EmbedTimeoutMs int
	EmbedBatch     int
	MaxAttempts    int
	MaxTokens      int
	RatePerSec     float64
}

type CacheConfig struct {
	Size     int
	TTLMin   int
	RedisURL string
}

type IngestConfig struct {
	MaxWords int
	TopN     int
}

type QueryConfig struct {
	DefaultLimit       int
	SQLMaxTokens       int
	SummaryMaxTokens   int
	SummaryTimeoutMs   int
	StatementTimeoutMs int
}

type OTelConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRatio float64
	Environment string
	Version     string
}

type WorkerConfig struct {
	Enabled bool
}

// Load reads configuration from the environment, after merging any .env file found in
// the working directory. Variables already set in the process win over the file.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv_load_failed", slog.String("error", err.Error()))
	}

	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9030"),
		DB: DBConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "writing-db"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "writing_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "writing_password"),
			Name:     getEnv("DB_NAME", "writing_db"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Provider: ProviderConfig{
			BaseURL:        strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:         getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
			EmbedModel:     getEnvWithAlt("OPENAI_EMBED_MODEL", "OPENAI_MODEL", "text-embedding-3-small"),
			ChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			Concurrency:    getEnvInt("OPENAI_CONCURRENCY", 4),
			TimeoutMs:      getEnvInt("OPENAI_REQ_TIMEOUT_MS", 20000),
			EmbedTimeoutMs: getEnvInt("OPENAI_EMBED_TIMEOUT_MS", 15000),
			EmbedBatch:     getEnvInt("OPENAI_EMBED_BATCH", 1),
			MaxAttempts:    getEnvInt("OPENAI_MAX_ATTEMPTS", 4),
			MaxTokens:      getEnvInt("OPENAI_MAX_TOKENS", 800),
			RatePerSec:     getEnvFloat("OPENAI_RATE_PER_SEC", 0),
		},
		Cache: CacheConfig{
			Size:     getEnvInt("EMBED_CACHE_SIZE", 256),
			TTLMin:   getEnvInt("EMBED_CACHE_TTL_MIN", 30),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		Ingest: IngestConfig{
			MaxWords: getEnvInt("INGEST_MAX_WORDS", 300),
			TopN:     getEnvInt("THEME_TOP_N", 8),
		},
		Query: QueryConfig{
			DefaultLimit:       getEnvInt("QUERY_DEFAULT_LIMIT", 20),
			SQLMaxTokens:       getEnvInt("QUERY_SQL_MAX_TOKENS", 4000),
			SummaryMaxTokens:   getEnvInt("QUERY_SUMMARY_MAX_TOKENS", 800),
			SummaryTimeoutMs:   getEnvInt("QUERY_SUMMARY_TIMEOUT_MS", 40000),
			StatementTimeoutMs: getEnvInt("QUERY_STATEMENT_TIMEOUT_MS", 15000),
		},
		OTel: OTelConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "writing-comparator"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			SampleRatio: getEnvFloat("OTEL_TRACE_SAMPLE_RATIO", 0.1),
			Environment: getEnv("DEPLOYMENT_ENV", "development"),
			Version:     getEnv("SERVICE_VERSION", "0.0.0"),
		},
		Worker: WorkerConfig{
			Enabled: getEnvBool("WORKER_ENABLED", true),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
		slog.Warn("secret_file_unreadable", slog.String("key", fileEnvKey), slog.String("error", err.Error()))
	}

	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
