// Package config assembles runtime configuration from the environment and
// loads the question config document.
package config

import (
	"time"

	"github.com/survey-wizard/backend/internal/llm"
	"github.com/survey-wizard/backend/internal/utils"
)

// Config is everything the server needs at startup. All values are
// env-driven; the defaults match a local single-node deployment with the
// generation backend on port 8003.
type Config struct {
	Addr          string
	DBPath        string
	QuestionsPath string

	LLM llm.Config

	// Startup gate: how long to wait for the generation backend.
	HealthAttempts int
	HealthInterval time.Duration
}

// FromEnv reads the configuration. The LLM read timeout is deliberately long;
// the backend may need most of a minute to warm a cold model shard.
func FromEnv() Config {
	return Config{
		Addr:          utils.SafeEnv("SURVEY_ADDR", ":8000"),
		DBPath:        utils.SafeEnv("SURVEY_DB_PATH", "survey.db"),
		QuestionsPath: utils.SafeEnv("SURVEY_QUESTIONS_CONFIG", "questions_config.json"),
		LLM: llm.Config{
			BaseURL:        utils.SafeEnv("LLM_API_BASE", "http://127.0.0.1:8003"),
			ConnectTimeout: utils.SafeEnvSeconds("LLM_API_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:    utils.SafeEnvSeconds("LLM_API_TIMEOUT", 90*time.Second),
			WriteTimeout:   utils.SafeEnvSeconds("LLM_API_WRITE_TIMEOUT", 20*time.Second),
			PoolTimeout:    utils.SafeEnvSeconds("LLM_API_POOL_TIMEOUT", 10*time.Second),
			Retries:        utils.SafeEnvInt("LLM_API_RETRIES", 2),
			Backoff:        utils.SafeEnvSeconds("LLM_API_BACKOFF_S", 2*time.Second),
		},
		HealthAttempts: utils.SafeEnvInt("LLM_HEALTH_RETRIES", 24),
		HealthInterval: utils.SafeEnvSeconds("LLM_HEALTH_INTERVAL_S", 5*time.Second),
	}
}
