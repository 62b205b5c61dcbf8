package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	QueueName   string
	OllamaURL   string
	EmbedModel  string
	GenModel    string
	Port        string
	UploadDir   string

	MaxConcurrentJobs int
	MaxJobRetries     int
	EmbedTimeout      time.Duration
	EmbedMaxRetries   int
	EmbedRetryDelay   time.Duration
	MonitorInterval   time.Duration
	StuckThreshold    time.Duration
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:         getEnv("QUEUE_NAME", "document-processing"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:        getEnv("EMBED_MODEL", "nomic-embed-text"),
		GenModel:          getEnv("GEN_MODEL", "llama3.1"),
		Port:              getEnv("PORT", "8080"),
		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 3),
		MaxJobRetries:     getEnvInt("MAX_JOB_RETRIES", 3),
		EmbedTimeout:      getEnvDuration("EMBED_TIMEOUT", 60*time.Second),
		EmbedMaxRetries:   getEnvInt("EMBED_MAX_RETRIES", 3),
		EmbedRetryDelay:   getEnvDuration("EMBED_RETRY_DELAY", time.Second),
		MonitorInterval:   getEnvDuration("MONITOR_INTERVAL", 15*time.Minute),
		StuckThreshold:    getEnvDuration("STUCK_THRESHOLD", 15*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
