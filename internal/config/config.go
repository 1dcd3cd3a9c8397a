// Package config reads service settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `validate:"required,numeric"`
	Environment string `validate:"required"`
	LogLevel    string `validate:"oneof=debug info warn error"`

	ScorerBackend  string `validate:"oneof=heuristic llm"`
	ScorerFallback bool

	LLMProvider        string `validate:"oneof=openai gemini"`
	LLMModel           string
	OpenAIAPIKey       string
	OpenAIBaseURL      string `validate:"omitempty,url"`
	GeminiAPIKey       string
	LLMTimeout         time.Duration `validate:"gt=0"`
	LLMMaxRetryElapsed time.Duration `validate:"gte=0"`

	StoreDriver string `validate:"oneof=postgres sqlite"`
	DatabaseURL string
	SQLitePath  string `validate:"required_if=StoreDriver sqlite"`

	InputDir            string
	CalibratorPath      string
	PipelineConcurrency int `validate:"min=1,max=64"`
	ProcessInterval     time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string `validate:"required_if=KafkaEnabled true"`

	TranscribeURL     string `validate:"omitempty,url"`
	UseMockTranscribe bool
}

var validate = validator.New()

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "local"),
		LogLevel:    strings.ToLower(envOr("LOG_LEVEL", "info")),

		ScorerBackend:  strings.ToLower(envOr("SCORER_BACKEND", "heuristic")),
		ScorerFallback: envBool("SCORER_FALLBACK", true),

		LLMProvider:   strings.ToLower(envOr("LLM_PROVIDER", "openai")),
		LLMModel:      os.Getenv("LLM_MODEL"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),

		StoreDriver: strings.ToLower(envOr("STORE_DRIVER", "sqlite")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  envOr("SQLITE_PATH", "data/cxqa.db"),

		InputDir:       envOr("INPUT_DIR", "data/incoming"),
		CalibratorPath: envOr("CALIBRATOR_PATH", "models/calibrator.json"),

		KafkaEnabled: envBool("KAFKA_ENABLED", false),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOr("KAFKA_TOPIC", "cxqa.scored"),

		TranscribeURL:     os.Getenv("TRANSCRIBE_URL"),
		UseMockTranscribe: envBool("USE_MOCK_TRANSCRIBE", false),
	}

	var err error
	if cfg.LLMTimeout, err = envDuration("LLM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LLMMaxRetryElapsed, err = envDuration("LLM_MAX_RETRY_ELAPSED", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProcessInterval, err = envDuration("PROCESS_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.PipelineConcurrency, err = envInt("PIPELINE_CONCURRENCY", 4); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config: %s failed %q check (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.ScorerBackend == "llm" && c.LLMAPIKey() == "" {
		return fmt.Errorf("config: SCORER_BACKEND=llm needs an API key for provider %s", c.LLMProvider)
	}
	if c.StoreDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("config: STORE_DRIVER=postgres needs DATABASE_URL")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("config: KAFKA_ENABLED needs KAFKA_BROKERS")
	}
	return nil
}

// LLMAPIKey returns the key for the configured provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("45s") or a bare number of seconds.
func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
