package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the X-ray diagnosis service
type Config struct {
	// Server configuration
	Port string

	// Provider API keys
	OpenAIAPIKey string
	GeminiAPIKey string
	GroqAPIKey   string

	// Provider model identifiers
	OpenAIModel      string
	GeminiModel      string
	GroqVisionModel  string
	GroqWhisperModel string

	// Provider ordering (fallback chains)
	VisionProviderOrder []string
	AudioProviderOrder  []string

	// Provider call behavior
	ProviderTimeout time.Duration
	MaxRetries      int

	// Fine-tuned classifier inference endpoint (fast mode)
	ClassifierURL string

	// Upload handling
	UploadDir         string
	MaxUploadBytes    int64
	AllowedExtensions []string

	// Image encoding
	MaxImageDimension int
	JPEGQuality       int

	// Result cache
	CacheTTL time.Duration
	RedisURL string

	// Rate limiting
	RateLimit  int
	RateWindow time.Duration

	// Body region safety gate profile overrides (optional YAML file)
	BodyRegionProfiles string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Provider keys (no defaults; adapters without keys report
		// themselves unavailable rather than failing startup)
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GroqAPIKey:   getEnv("GROQ_API_KEY", ""),

		// Model defaults
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GroqVisionModel:  getEnv("GROQ_VISION_MODEL", "llama-3.2-11b-vision-preview"),
		GroqWhisperModel: getEnv("GROQ_WHISPER_MODEL", "whisper-large-v3"),

		// Fallback chains
		VisionProviderOrder: getStringSliceEnv("VISION_PROVIDER_ORDER", "openai,gemini"),
		AudioProviderOrder:  getStringSliceEnv("AUDIO_PROVIDER_ORDER", "groq,openai"),

		// Provider call behavior
		ProviderTimeout: getDurationEnv("PROVIDER_TIMEOUT", 45*time.Second),
		MaxRetries:      getIntEnv("MAX_RETRIES", 3),

		// Classifier endpoint
		ClassifierURL: getEnv("CLASSIFIER_URL", ""),

		// Upload defaults
		UploadDir:         getEnv("UPLOAD_DIR", os.TempDir()),
		MaxUploadBytes:    getInt64Env("MAX_UPLOAD_BYTES", 10<<20),
		AllowedExtensions: getStringSliceEnv("ALLOWED_EXTENSIONS", "jpg,jpeg,png"),

		// Image encoding defaults shared by every provider attempt
		MaxImageDimension: getIntEnv("MAX_IMAGE_DIMENSION", 1024),
		JPEGQuality:       getIntEnv("JPEG_QUALITY", 85),

		// Cache defaults
		CacheTTL: getDurationEnv("CACHE_TTL", 2*time.Minute),
		RedisURL: getEnv("REDIS_URL", ""),

		// Rate limiting defaults
		RateLimit:  getIntEnv("RATE_LIMIT", 30),
		RateWindow: getDurationEnv("RATE_WINDOW", time.Minute),

		// Safety gate profile overrides
		BodyRegionProfiles: getEnv("BODY_REGION_PROFILES", ""),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getStringSliceEnv gets a comma-separated environment variable as a
// lowercased, trimmed string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env gets an int64 environment variable or returns a default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
