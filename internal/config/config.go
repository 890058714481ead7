package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	GinMode       string
	CORSOrigins   []string
	PublicBaseURL string
	OutputDir     string
	MaxUploadSize int64

	// Generation defaults
	DefaultPrompt   string
	DefaultStrength float64
	NegativePrompt  string
	MaxPromptLength int

	// Generator backend
	GeneratorProvider      string // "sdapi"
	SDAPIURL               string
	SDAPICheckpoint        string
	SDAPISteps             int
	SDAPICFGScale          float64
	SDAPISampler           string
	GeneratorRPM           int
	GeneratorMaxConcurrent int64
	GenerationTimeout      time.Duration

	// Redis Configuration (rate limiting, optional)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
	OTelServiceName string

	// Output retention; zero keeps files forever
	OutputRetention        time.Duration
	RetentionSweepInterval time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:          getEnv("PORT", "5000"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		OutputDir:     getEnv("OUTPUT_DIR", "./static"),
		MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 20971520), // 20MB

		DefaultPrompt:   getEnv("DEFAULT_PROMPT", "a beautiful interior design"),
		DefaultStrength: getEnvFloat64("DEFAULT_STRENGTH", 0.7),
		NegativePrompt:  getEnv("NEGATIVE_PROMPT", ""),
		MaxPromptLength: getEnvInt("MAX_PROMPT_LENGTH", 1000),

		GeneratorProvider:      getEnv("GENERATOR_PROVIDER", "sdapi"),
		SDAPIURL:               strings.TrimRight(getEnv("SDAPI_URL", "http://127.0.0.1:7860"), "/"),
		SDAPICheckpoint:        getEnv("SDAPI_CHECKPOINT", "512-depth-ema"),
		SDAPISteps:             getEnvInt("SDAPI_STEPS", 30),
		SDAPICFGScale:          getEnvFloat64("SDAPI_CFG_SCALE", 7.5),
		SDAPISampler:           getEnv("SDAPI_SAMPLER", "DPM++ 2M"),
		GeneratorRPM:           getEnvInt("GENERATOR_RPM", 60),
		GeneratorMaxConcurrent: getEnvInt64("GENERATOR_MAX_CONCURRENT", 1),
		GenerationTimeout:      getEnvDuration("GENERATION_TIMEOUT", 5*time.Minute),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 0.1),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "depth-studio-backend"),

		OutputRetention:        getEnvDuration("OUTPUT_RETENTION", 0),
		RetentionSweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	if c.DefaultStrength <= 0 || c.DefaultStrength > 1 {
		return fmt.Errorf("DEFAULT_STRENGTH must be in (0, 1], got %v", c.DefaultStrength)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.GeneratorProvider != "sdapi" {
		return fmt.Errorf("unsupported GENERATOR_PROVIDER: %s", c.GeneratorProvider)
	}
	if c.SDAPIURL == "" {
		return fmt.Errorf("SDAPI_URL is required - set it in .env file")
	}
	if c.GeneratorMaxConcurrent < 1 {
		return fmt.Errorf("GENERATOR_MAX_CONCURRENT must be at least 1")
	}
	if c.GeneratorRPM < 1 {
		return fmt.Errorf("GENERATOR_RPM must be at least 1")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.RateLimitWindow < 1 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1 second")
	}
	if c.OutputRetention < 0 {
		return fmt.Errorf("OUTPUT_RETENTION must not be negative")
	}
	if c.OutputRetention > 0 && c.RetentionSweepInterval <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must be positive when OUTPUT_RETENTION is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
