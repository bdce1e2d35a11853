package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Pipeline  PipelineConfig
	Aggregate AggregateConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// PipelineConfig tunes the compliance pipeline.
type PipelineConfig struct {
	// VelocityLookback bounds how far back recent-transaction timestamps
	// are fetched for velocity rules. Every velocity rule window must fit
	// inside it.
	VelocityLookback time.Duration
	// SubmissionQueue is the redis list the transaction-entry surface
	// pushes submissions onto.
	SubmissionQueue string
	// ResultKeyPrefix prefixes the redis key results are published under.
	ResultKeyPrefix string
	// ResultTTL bounds how long results stay readable.
	ResultTTL time.Duration
	// Workers is the number of concurrent queue consumers.
	Workers int
}

// AggregateConfig tunes the monthly aggregation engine.
type AggregateConfig struct {
	// Interval between scheduler sweeps; zero disables the in-process
	// scheduler (an external cron calls cmd/aggregate instead).
	Interval time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Pipeline: PipelineConfig{
			VelocityLookback: getDurationEnv("PIPELINE_VELOCITY_LOOKBACK", time.Hour),
			SubmissionQueue:  getEnv("PIPELINE_SUBMISSION_QUEUE", "cardguard:submissions"),
			ResultKeyPrefix:  getEnv("PIPELINE_RESULT_KEY_PREFIX", "cardguard:result:"),
			ResultTTL:        getDurationEnv("PIPELINE_RESULT_TTL", 24*time.Hour),
			Workers:          getIntEnv("PIPELINE_WORKERS", 4),
		},
		Aggregate: AggregateConfig{
			Interval: getDurationEnv("AGGREGATE_INTERVAL", 0),
		},
	}
}

// Validate checks settings the services cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1")
	}
	if c.Pipeline.VelocityLookback <= 0 {
		return fmt.Errorf("PIPELINE_VELOCITY_LOOKBACK must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
