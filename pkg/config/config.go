package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration. Values come from environment
// variables with defaults that make a local sqlite + openai setup work out of
// the box; zero values are re-normalized in rag.NewService so programmatic
// construction (tests, embedding) gets identical behavior.
type Config struct {
	LogLevel string `env:"CHATRAG_LOG_LEVEL" envDefault:"info"`

	Store     StoreConfig
	Model     ModelConfig
	Retrieval RetrievalConfig
	Fallback  FallbackConfig
}

type StoreConfig struct {
	// Path of the sqlite database holding chunk metadata and content.
	Path string `env:"CHATRAG_STORE_PATH" envDefault:"workspace/chatrag.db"`
}

type ModelConfig struct {
	Provider       string `env:"CHATRAG_MODEL_PROVIDER" envDefault:"openai"`
	ModelID        string `env:"CHATRAG_MODEL_ID"`
	APIKey         string `env:"CHATRAG_API_KEY"`
	APIBase        string `env:"CHATRAG_API_BASE"`
	TimeoutSeconds int    `env:"CHATRAG_MODEL_TIMEOUT_SECONDS" envDefault:"60"`
	// Requests per minute allowed against the provider; 0 disables limiting.
	RequestsPerMinute int `env:"CHATRAG_MODEL_RPM" envDefault:"60"`

	// Classification and grounded answering favor precision; persona chat
	// without retrieved context runs hotter.
	ClassifyTemperature float64 `env:"CHATRAG_CLASSIFY_TEMPERATURE" envDefault:"0.1"`
	AnswerTemperature   float64 `env:"CHATRAG_ANSWER_TEMPERATURE" envDefault:"0.2"`
	ChatTemperature     float64 `env:"CHATRAG_CHAT_TEMPERATURE" envDefault:"0.8"`
}

type RetrievalConfig struct {
	CacheTTLMinutes int `env:"CHATRAG_CACHE_TTL_MINUTES" envDefault:"60"`
	// Cron schedule for sweeping expired cache entries. The sweep only frees
	// memory; expiry itself is checked on every Get.
	SweepSchedule string `env:"CHATRAG_CACHE_SWEEP_SCHEDULE" envDefault:"*/10 * * * *"`

	MaxSelectedChunks   int     `env:"CHATRAG_MAX_SELECTED_CHUNKS" envDefault:"10"`
	MaxPromptChunks     int     `env:"CHATRAG_MAX_PROMPT_CHUNKS" envDefault:"200"`
	ConfidenceThreshold float64 `env:"CHATRAG_CONFIDENCE_THRESHOLD" envDefault:"0.7"`
	MaxNeighborScan     int     `env:"CHATRAG_MAX_NEIGHBOR_SCAN" envDefault:"500"`
	PreviewChars        int     `env:"CHATRAG_PREVIEW_CHARS" envDefault:"160"`
}

type FallbackConfig struct {
	// Categories known to be outside every tenant's mandate. Each maps to a
	// built-in trigger keyword set in the domain classifier.
	OutOfDomainCategories []string `env:"CHATRAG_OUT_OF_DOMAIN" envSeparator:"," envDefault:"weather,news,sports,stocks,lottery"`
	SuggestionLimit       int      `env:"CHATRAG_SUGGESTION_LIMIT" envDefault:"5"`
	// Score above which free-form output for an out-of-domain query counts as
	// an answer attempt and is replaced by the boundary statement.
	AnswerAttemptThreshold float64 `env:"CHATRAG_ANSWER_ATTEMPT_THRESHOLD" envDefault:"0.5"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
