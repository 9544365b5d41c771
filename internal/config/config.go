package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backend selectors
const (
	BackendUpstream = "upstream"
	BackendPostgres = "postgres"
)

type Config struct {
	ServerPort string
	InstanceID string

	// Backend is BackendUpstream (forum REST API) or BackendPostgres.
	Backend         string
	UpstreamURL     string
	UpstreamTimeout time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	ViewerID   string

	// RedisURL is optional. Without it notices are kept in memory and live
	// updates between instances are off.
	RedisURL     string
	StreamMaxLen int64
	WorkerCount  int

	MorePageSize int
	RootLimit    int
	ChildLimit   int
	NoticeTTL    time.Duration
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		InstanceID: os.Getenv("INSTANCE_ID"),

		Backend:         getEnv("BACKEND", BackendUpstream),
		UpstreamURL:     os.Getenv("UPSTREAM_URL"),
		UpstreamTimeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT_MS", 10000)) * time.Millisecond,

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),
		ViewerID:   os.Getenv("VIEWER_ID"),

		RedisURL:     os.Getenv("REDIS_URL"),
		StreamMaxLen: int64(getEnvInt("STREAM_MAX_LEN", 10000)),
		WorkerCount:  getEnvInt("WORKER_COUNT", 2),

		MorePageSize: getEnvInt("MORE_PAGE_SIZE", 20),
		RootLimit:    getEnvInt("ROOT_LIMIT", 50),
		ChildLimit:   getEnvInt("CHILD_LIMIT", 5),
		NoticeTTL:    time.Duration(getEnvInt("NOTICE_TTL_SECONDS", 600)) * time.Second,
	}

	if cfg.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "front"
		}
		cfg.InstanceID = host
	}

	switch cfg.Backend {
	case BackendUpstream:
		if cfg.UpstreamURL == "" {
			return nil, fmt.Errorf("UPSTREAM_URL is required when BACKEND=%s", BackendUpstream)
		}
	case BackendPostgres:
		if cfg.DBHost == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("DB_HOST and DB_NAME are required when BACKEND=%s", BackendPostgres)
		}
		if cfg.ViewerID == "" {
			return nil, fmt.Errorf("VIEWER_ID is required when BACKEND=%s", BackendPostgres)
		}
	default:
		return nil, fmt.Errorf("unknown BACKEND %q", cfg.Backend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns fallback for unset, malformed or non-positive values.
func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
