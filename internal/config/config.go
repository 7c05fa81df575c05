package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	// SQLite Configuration
	SQLitePath string
	// JWT Configuration
	JWTSecret string
	JWTTTL    time.Duration
	// Kafka Configuration
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaTopicOrders string
	KafkaTopicStock  string
	KafkaClientID    string
	KafkaAcks        string
	KafkaRetries     int
	// Redis Configuration
	RedisHost            string
	RedisPort            string
	RedisPassword        string
	RedisDB              int
	AvailabilityCacheTTL time.Duration
	// HTTP behaviour
	IdempotencyTTL time.Duration
	MetricsEnabled bool
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/settlement.db"),
		// JWT Configuration
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production-min-32-chars"),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 10*time.Minute),
		// Kafka Configuration
		KafkaEnabled:     getEnvAsBool("KAFKA_ENABLED", false),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9093")),
		KafkaTopicOrders: getEnv("KAFKA_TOPIC_ORDERS", "sales.orders"),
		KafkaTopicStock:  getEnv("KAFKA_TOPIC_STOCK", "sales.stock"),
		KafkaClientID:    getEnv("KAFKA_CLIENT_ID", "settlement-service"),
		KafkaAcks:        getEnv("KAFKA_ACKS", "all"),
		KafkaRetries:     getEnvAsInt("KAFKA_RETRIES", 3),
		// Redis Configuration
		RedisHost:            getEnv("REDIS_HOST", "localhost"),
		RedisPort:            getEnv("REDIS_PORT", "6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		AvailabilityCacheTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 30*time.Second),
		IdempotencyTTL:       getEnvAsDuration("IDEMPOTENCY_TTL", 5*time.Minute),
		MetricsEnabled:       getEnvAsBool("METRICS_ENABLED", true),
	}
}

// splitList parses a comma-separated value, dropping blanks
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
