package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Agent    AgentConfig
	Turn     TurnConfig
	Store    StoreConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	JwtSecret          string // empty disables auth
	NatsURL            string // empty disables diagnostics
	RedisURL           string // empty disables cluster fan-out
}

type DatabaseConfig struct {
	Connection string
}

type AgentConfig struct {
	BaseURL string
	Path    string
	AgentId string
	Timeout time.Duration
}

type TurnConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
}

type StoreConfig struct {
	Driver string // "memory", "redis" or "postgres"
	Key    string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Agent: AgentConfig{
			BaseURL: getEnv("AGENT_BASE_URL", "http://localhost:8000"),
			Path:    getEnv("AGENT_PATH", "/api/agent"),
			AgentId: getEnv("AGENT_ID", "69a2771fcc44e0dcaf39e887"),
			Timeout: getEnvAsDuration("AGENT_TIMEOUT", 120*time.Second),
		},
		Turn: TurnConfig{
			MaxRetries:  getEnvAsInt("TURN_MAX_RETRIES", 2),
			BackoffBase: getEnvAsDuration("TURN_BACKOFF_BASE", 2*time.Second),
		},
		Store: StoreConfig{
			Driver: getEnv("SESSION_STORE_DRIVER", "memory"),
			Key:    getEnv("SESSION_STORE_KEY", "product-rec-sessions"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
