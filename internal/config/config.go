package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port           int
	JWTSecret      string
	DatabaseURL    string
	RedisURL       string
	EncryptionKey  string
	GatewayBaseURL string
	GatewayAPIKey  string
	WebhookSecret  string
	CORSOrigins    []string
	AdminEmail     string
	AdminPassword  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "4010"))

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required (must be exactly 32 bytes)")
	}
	if len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,https://app.shuleplus.co.tz"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:           port,
		JWTSecret:      jwtSecret,
		DatabaseURL:    dbURL,
		RedisURL:       getEnv("REDIS_URL", ""),
		EncryptionKey:  encKey,
		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:  getEnv("GATEWAY_API_KEY", ""),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		CORSOrigins:    origins,
		AdminEmail:     getEnv("ADMIN_EMAIL", "admin@shuleplus.co.tz"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", "admin123"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
