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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cache      CacheConfig
	Outbox     OutboxConfig
	Holds      HoldsConfig
	Statements StatementsConfig
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

// JWTConfig guards the operational endpoints. Authorization decisions
// for student-facing operations stay with the upstream gateway.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig tunes the read-side balance cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// OutboxConfig tunes the event publisher daemon. Backoff is realized as
// "wait for the next poll interval", not per-row exponential delay.
type OutboxConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxRetries    int
	RetryWindow   time.Duration
	RetentionDays int
	LockKey       int64
}

// HoldsConfig tunes the stale-hold sweeper.
type HoldsConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// StatementsConfig configures asynchronous ledger statement exports.
type StatementsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
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
		Secret: v.GetString("OPS_JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_BALANCE_CACHE"),
		TTL:     parseDuration(v.GetString("BALANCE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Outbox = OutboxConfig{
		PollInterval:  parseDuration(v.GetString("OUTBOX_POLL_INTERVAL"), 30*time.Second),
		BatchSize:     v.GetInt("OUTBOX_BATCH_SIZE"),
		MaxRetries:    v.GetInt("OUTBOX_MAX_RETRIES"),
		RetryWindow:   parseDuration(v.GetString("OUTBOX_RETRY_WINDOW"), 24*time.Hour),
		RetentionDays: v.GetInt("OUTBOX_RETENTION_DAYS"),
		LockKey:       v.GetInt64("OUTBOX_LOCK_KEY"),
	}

	cfg.Holds = HoldsConfig{
		TTL:           parseDuration(v.GetString("HOLD_TTL"), 72*time.Hour),
		SweepInterval: parseDuration(v.GetString("HOLD_SWEEP_INTERVAL"), 10*time.Minute),
	}

	cfg.Statements = StatementsConfig{
		Enabled:           v.GetBool("ENABLE_STATEMENTS"),
		StorageDir:        v.GetString("STATEMENTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("STATEMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("STATEMENTS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("STATEMENTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("STATEMENTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "entitlement_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("OPS_JWT_SECRET", "dev_secret")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_BALANCE_CACHE", false)
	v.SetDefault("BALANCE_CACHE_TTL", "5m")

	v.SetDefault("OUTBOX_POLL_INTERVAL", "30s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_MAX_RETRIES", 3)
	v.SetDefault("OUTBOX_RETRY_WINDOW", "24h")
	v.SetDefault("OUTBOX_RETENTION_DAYS", 30)
	v.SetDefault("OUTBOX_LOCK_KEY", 823471)

	v.SetDefault("HOLD_TTL", "72h")
	v.SetDefault("HOLD_SWEEP_INTERVAL", "10m")

	v.SetDefault("ENABLE_STATEMENTS", false)
	v.SetDefault("STATEMENTS_STORAGE_DIR", "./statements")
	v.SetDefault("STATEMENTS_SIGNED_URL_SECRET", "dev_statements_secret")
	v.SetDefault("STATEMENTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("STATEMENTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("STATEMENTS_WORKER_RETRIES", 3)
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
