package config

import (
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Matching  MatchingConfig
	SMS       SMSConfig
	Assistant AssistantConfig
}

type ServerConfig struct {
	SessionSecret string // secret for signing session tokens
	CORSOrigins   string // comma-separated list of allowed origins
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL            string // face embedding server base URL, defaults to http://localhost:8000
	Dim            int    // embedding dimensionality, defaults to 128
	TimeoutSeconds int    // detection call timeout, defaults to 30
}

// MatchingConfig holds the recognition thresholds shared by the capture
// pipeline and the access policy surface.
type MatchingConfig struct {
	Tolerance float64 // maximum embedding distance to accept a match, defaults to 0.6
}

type SMSConfig struct {
	GatewayURL string // SMS gateway endpoint; empty means log-only delivery
	SenderID   string
}

type AssistantConfig struct {
	Provider     string // "gemini" or "openai", empty disables the assistant
	GeminiAPIKey string
	OpenAIToken  string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			SessionSecret: os.Getenv("SESSION_SECRET"),
			CORSOrigins:   os.Getenv("CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:            os.Getenv("EMBEDDING_URL"),
			Dim:            envInt("EMBEDDING_DIM", 128),
			TimeoutSeconds: envInt("EMBEDDING_TIMEOUT", 30),
		},
		Matching: MatchingConfig{
			Tolerance: envFloat("MATCH_TOLERANCE", 0.6),
		},
		SMS: SMSConfig{
			GatewayURL: os.Getenv("SMS_GATEWAY_URL"),
			SenderID:   os.Getenv("SMS_SENDER_ID"),
		},
		Assistant: AssistantConfig{
			Provider:     os.Getenv("ASSISTANT_PROVIDER"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			OpenAIToken:  os.Getenv("OPENAI_TOKEN"),
		},
	}
}
