package config

import (
	"os"
	"strconv"
)

// Config carries all pipeline settings. Everything comes from env vars so
// the stage commands stay flag-light; a .env file is loaded in main.
type Config struct {
	DataDir string

	LLMGatewayURL string
	LLMAPIKey     string
	LLMModel      string
	LLMRPS        float64

	EmbeddingURL    string
	EmbeddingAPIKey string
	EmbeddingModel  string

	BatchSize           int
	SimilarityThreshold float64
	MaxWorkers          int

	UseMockLLM bool
}

func Load() Config {
	return Config{
		DataDir: envOr("KB_DATA_DIR", "data"),

		LLMGatewayURL: os.Getenv("LLM_GATEWAY_URL"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMModel:      envOr("LLM_MODEL", "gpt-4o-mini"),
		LLMRPS:        envFloat("LLM_RPS", 2.0),

		EmbeddingURL:    os.Getenv("EMBEDDING_URL"),
		EmbeddingAPIKey: os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:  envOr("EMBEDDING_MODEL", "text-embedding-3-small"),

		BatchSize:           envInt("BATCH_SIZE", 15),
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.85),
		MaxWorkers:          envInt("MAX_WORKERS", 4),

		UseMockLLM: os.Getenv("USE_MOCK_LLM") == "true",
	}
}

// Stage output directories under DataDir.

func (c Config) InsightsDir() string { return c.DataDir + "/insights_per_call" }
func (c Config) RollupsDir() string  { return c.DataDir + "/rollups" }
func (c Config) GlobalDir() string   { return c.DataDir + "/global" }
func (c Config) KBDir() string       { return c.DataDir + "/knowledge_base" }
func (c Config) NLUDir() string      { return c.DataDir + "/nlu_output" }
func (c Config) LedgerDir() string   { return c.DataDir + "/corrections" }

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
