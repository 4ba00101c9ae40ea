package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB      DBConfig
	MinIO   MinIOConfig
	JWT     JWTConfig
	Server  ServerConfig
	Webhook WebhookConfig
	Worker  WorkerConfig
	Lock    LockConfig
	Tree    TreeConfig
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
	MaxConns   int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
}

// WebhookConfig guards the bucket notification endpoint. An empty token disables the check.
type WebhookConfig struct {
	AuthToken string
}

type WorkerConfig struct {
	Count           int
	QueueBufferSize int
}

// LockConfig bounds the transactional sessions used by the path resolver.
type LockConfig struct {
	Timeout     time.Duration
	MaxSessions int
}

type TreeConfig struct {
	MaxDepth int
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "conduit"),
			Password:   getEnv("DB_PASSWORD", "conduit_secret"),
			Name:       getEnv("DB_NAME", "conduit"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "conduit.db"),
			MaxConns:   getEnvAsInt("DB_MAX_CONNS", 20),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "conduit"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "conduit_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "conduit"),
			Region:    getEnv("MINIO_REGION", ""),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Webhook: WebhookConfig{
			AuthToken: getEnv("WEBHOOK_AUTH_TOKEN", ""),
		},
		Worker: WorkerConfig{
			Count:           getEnvAsInt("WORKER_COUNT", 4),
			QueueBufferSize: getEnvAsInt("WORKER_QUEUE_BUFFER_SIZE", 256),
		},
		Lock: LockConfig{
			Timeout:     getEnvAsDuration("LOCK_TIMEOUT", 30*time.Second),
			MaxSessions: getEnvAsInt("LOCK_MAX_SESSIONS", 8),
		},
		Tree: TreeConfig{
			MaxDepth: getEnvAsInt("TREE_MAX_DEPTH", 64),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
