// Package config loads all runtime configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. It is loaded once
// at startup and passed to the components that need it; nothing mutates
// it afterwards.
type Config struct {
	// Server configuration
	Port string

	// LLM service configuration
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMMaxRetries  int
	LLMTimeout     time.Duration

	// Prompt assets
	PromptsDir string

	// Rule matcher
	RulesFile string // optional YAML override for the built-in pattern tables

	// Safety policy
	ConfirmDangerous bool

	// Execution
	DryRun          bool
	ActuatorTimeout time.Duration

	// Session transcripts
	SessionDBPath      string
	SessionMaxHistory  int
	SessionExpiryHours int
}

// Load reads configuration from environment variables, applying defaults
// for everything except the API key, which is only required when the
// generative parser is actually used.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://openai.qiniu.com/v1"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "deepseek/deepseek-v3.1-terminus"),
		LLMMaxTokens:       getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:     getEnvFloat("LLM_TEMPERATURE", 0.2),
		LLMMaxRetries:      getEnvInt("LLM_MAX_RETRIES", 2),
		LLMTimeout:         time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		PromptsDir:         getEnv("PROMPTS_DIR", "./prompts"),
		RulesFile:          getEnv("RULES_FILE", ""),
		ConfirmDangerous:   getEnvBool("CONFIRM_DANGEROUS", true),
		DryRun:             getEnvBool("DRY_RUN", false),
		ActuatorTimeout:    time.Duration(getEnvInt("ACTUATOR_TIMEOUT_SECONDS", 30)) * time.Second,
		SessionDBPath:      getEnv("SESSION_DB_PATH", "./data/sessions.db"),
		SessionMaxHistory:  getEnvInt("SESSION_MAX_HISTORY", 50),
		SessionExpiryHours: getEnvInt("SESSION_EXPIRY_HOURS", 72),
	}

	if cfg.LLMMaxRetries < 1 {
		return nil, fmt.Errorf("LLM_MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

// Validate checks the parts of the configuration that are only required
// when the generative parser is enabled.
func (c *Config) Validate() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	return nil
}

// Helper functions for getting environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
