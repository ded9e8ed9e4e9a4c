package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// StageConfig holds the generation knobs for one text stage
type StageConfig struct {
	Model           string  `envconfig:"MODEL"`
	Temperature     float32 `envconfig:"TEMPERATURE"`
	MaxOutputTokens int32   `envconfig:"MAX_OUTPUT_TOKENS"`
	ReasoningBudget int32   `envconfig:"REASONING_BUDGET"` // 0 disables extended reasoning
}

// Config holds all configuration for the podcast studio service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"8081"` // Empty disables the gRPC health server

	// Gemini generation backend
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`                   // Required unless only the speech engine is used
	SafetyPermissive bool   `envconfig:"SAFETY_PERMISSIVE" default:"true"` // Source documents are not pre-filtered

	Summary   StageConfig `envconfig:"SUMMARY"`
	Script    StageConfig `envconfig:"SCRIPT"`
	Structure StageConfig `envconfig:"STRUCTURE"`

	// Speech engine (VOICEVOX compatible)
	SpeechEngineURL  string        `envconfig:"SPEECH_ENGINE_URL" default:"http://127.0.0.1:50021"`
	SpeechSpeedScale float64       `envconfig:"SPEECH_SPEED_SCALE" default:"1.1"`
	SpeechTimeout    time.Duration `envconfig:"SPEECH_TIMEOUT" default:"120s"`
	JoinMode         string        `envconfig:"JOIN_MODE" default:"engine"` // engine, local

	// Synthesis fan-out
	SynthesisMaxConcurrent int     `envconfig:"SYNTHESIS_MAX_CONCURRENT" default:"0"` // 0 means one request per turn at once
	SynthesisRateLimit     float64 `envconfig:"SYNTHESIS_RATE_LIMIT" default:"0"`     // Requests per second, 0 disables pacing

	// Document source
	DocumentTimeout  time.Duration `envconfig:"DOCUMENT_TIMEOUT" default:"60s"`
	DocumentMaxBytes int64         `envconfig:"DOCUMENT_MAX_BYTES" default:"52428800"`

	// Episode store
	StoreBackend    string `envconfig:"STORE_BACKEND" default:"memory"` // memory, mongo, postgres
	MongoURI        string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE" default:"podcast_studio"`
	MongoCollection string `envconfig:"MONGO_COLLECTION" default:"episodes"`
	PostgresDSN     string `envconfig:"POSTGRES_DSN" default:""`

	// Resilience configuration (transport level only)
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum attempts per transport call
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"200"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

const defaultModel = "gemini-2.5-flash"

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSpeechOnly loads configuration for tools that never call the
// generation backend, so GEMINI_API_KEY may be absent
func LoadSpeechOnly() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := process()
	if err != nil {
		return nil, err
	}

	if err := cfg.validateSpeech(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.applyStageDefaults()
	return &cfg, nil
}

// applyStageDefaults fills stage knobs left unset. Nested struct fields have
// no envconfig defaults of their own, so zero values are replaced here.
func (c *Config) applyStageDefaults() {
	fill := func(s *StageConfig, temperature float32, maxTokens, budget int32, budgetSet bool) {
		if s.Model == "" {
			s.Model = defaultModel
		}
		if s.Temperature == 0 {
			s.Temperature = temperature
		}
		if s.MaxOutputTokens == 0 {
			s.MaxOutputTokens = maxTokens
		}
		if s.ReasoningBudget == 0 && !budgetSet {
			s.ReasoningBudget = budget
		}
	}

	_, summaryBudgetSet := os.LookupEnv("SUMMARY_REASONING_BUDGET")
	_, scriptBudgetSet := os.LookupEnv("SCRIPT_REASONING_BUDGET")

	fill(&c.Summary, 1.0, 4096, 1024, summaryBudgetSet)
	fill(&c.Script, 1.0, 4096, 1024, scriptBudgetSet)
	fill(&c.Structure, 0.1, 12288, 0, true)
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}

	switch c.StoreBackend {
	case "memory":
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be memory, mongo or postgres, got %q", c.StoreBackend)
	}

	return nil
}

func (c *Config) validateSpeech() error {
	if c.SpeechEngineURL == "" {
		return fmt.Errorf("SPEECH_ENGINE_URL is required")
	}
	if c.SpeechSpeedScale <= 0 {
		return fmt.Errorf("SPEECH_SPEED_SCALE must be positive, got %v", c.SpeechSpeedScale)
	}

	switch c.JoinMode {
	case "engine", "local":
	default:
		return fmt.Errorf("JOIN_MODE must be engine or local, got %q", c.JoinMode)
	}

	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
