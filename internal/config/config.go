// Package config loads configuration from an optional YAML file and
// environment variables. Env vars always win over file values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Redis (event bus + work queue)
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisEventsDB int    `yaml:"redis_events_db"`
	RedisWorkerDB int    `yaml:"redis_worker_db"`
	WorkerChannel string `yaml:"worker_channel"`

	// LLM provider
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// Court-decision index
	DecisionAPIURL     string        `yaml:"decision_api_url"`
	DecisionAPITimeout time.Duration `yaml:"decision_api_timeout"`

	// HTTP API
	ListenAddr     string  `yaml:"listen_addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// Pipeline tuning
	MaxTurns       int `yaml:"max_turns"`
	SearchLimit    int `yaml:"search_limit"`
	AnalysisFanout int `yaml:"analysis_fanout"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// LLM provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Load reads configuration from the file named by PRECEDENT_CONFIG (if set)
// and then applies environment variable overrides.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("PRECEDENT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "precedent",
		SurrealDBDatabase:  "research",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		RedisAddr:     "localhost:6379",
		RedisEventsDB: 10,
		RedisWorkerDB: 11,
		WorkerChannel: "worker:new_research",

		LLMProvider: ProviderOllama,
		LLMModel:    "llama3.1",
		OllamaHost:  "http://localhost:11434",

		DecisionAPIURL:     "http://localhost:9200",
		DecisionAPITimeout: 30 * time.Second,

		ListenAddr:     ":8090",
		RateLimitRPS:   20,
		RateLimitBurst: 40,

		MaxTurns:       40,
		SearchLimit:    50,
		AnalysisFanout: 4,

		LogFile:  "/tmp/precedent.log",
		LogLevel: slog.LevelInfo,
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.SurrealDBURL, "SURREALDB_URL")
	setString(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setString(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setString(&cfg.SurrealDBUser, "SURREALDB_USER")
	setString(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setString(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisEventsDB, "REDIS_EVENTS_PUBSUB_DB")
	setInt(&cfg.RedisWorkerDB, "REDIS_WORKER_PUBSUB_DB")
	setString(&cfg.WorkerChannel, "REDIS_WORKER_PUBSUB_CHANNEL")

	setString(&cfg.LLMProvider, "PRECEDENT_LLM_PROVIDER")
	setString(&cfg.LLMModel, "PRECEDENT_LLM_MODEL")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setString(&cfg.DecisionAPIURL, "DECISION_API_URL")
	setDuration(&cfg.DecisionAPITimeout, "DECISION_API_TIMEOUT")

	setString(&cfg.ListenAddr, "PRECEDENT_LISTEN_ADDR")
	setFloat(&cfg.RateLimitRPS, "PRECEDENT_RATE_LIMIT_RPS")
	setInt(&cfg.RateLimitBurst, "PRECEDENT_RATE_LIMIT_BURST")

	setInt(&cfg.MaxTurns, "PRECEDENT_MAX_TURNS")
	setInt(&cfg.SearchLimit, "PRECEDENT_SEARCH_LIMIT")
	setInt(&cfg.AnalysisFanout, "PRECEDENT_ANALYSIS_FANOUT")

	setString(&cfg.LogFile, "PRECEDENT_LOG_FILE")
	if v := os.Getenv("PRECEDENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
