package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Auth     AuthConfig     `toml:"auth"`
	Session  SessionConfig  `toml:"session"`
	LLM      LLMConfig      `toml:"llm"`
	RAG      RAGConfig      `toml:"rag"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type SessionConfig struct {
	DataDir              string `toml:"data_dir"`
	TTLHours             int    `toml:"ttl_hours"`
	SweepIntervalMinutes int    `toml:"sweep_interval_minutes"`
}

// LLMConfig covers the OpenAI-compatible provider endpoints. There is no
// api_key field: keys are supplied per session and live only in memory.
type LLMConfig struct {
	BaseURL                string `toml:"base_url"`
	Model                  string `toml:"model"`
	EmbeddingModel         string `toml:"embedding_model"`
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`
	ValidateTimeoutSeconds int    `toml:"validate_timeout_seconds"`
	EmbedTimeoutSeconds    int    `toml:"embed_timeout_seconds"`
}

type RAGConfig struct {
	ChunkSize          int  `toml:"chunk_size"`
	ChunkOverlap       int  `toml:"chunk_overlap"`
	TopK               int  `toml:"top_k"`
	Streaming          bool `toml:"streaming"`
	MaxContextChars    int  `toml:"max_context_chars"`
	EmbeddingBatchSize int  `toml:"embedding_batch_size"`
	MaxHistoryMessages int  `toml:"max_history_messages"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig is optional; an empty addr disables the history cache.
type RedisConfig struct {
	Addr              string `toml:"addr"`
	Password          string `toml:"password"`
	DB                int    `toml:"db"`
	HistoryTTLSeconds int    `toml:"history_ttl_seconds"`
	DirtyTTLSeconds   int    `toml:"dirty_ttl_seconds"`
}

// RabbitMQConfig is optional; an empty URL keeps history persistence
// synchronous in-process.
type RabbitMQConfig struct {
	URL          string `toml:"url"`
	HistoryQueue string `toml:"history_queue"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalMinutes) * time.Minute
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "askthedocs",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Auth: AuthConfig{
			JWTSecret: "change-me-in-production",
		},
		Session: SessionConfig{
			DataDir:              "temp_user_data",
			TTLHours:             24,
			SweepIntervalMinutes: 30,
		},
		LLM: LLMConfig{
			BaseURL:                "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:                  "gemini-2.0-flash",
			EmbeddingModel:         "text-embedding-004",
			RequestTimeoutSeconds:  90,
			ValidateTimeoutSeconds: 10,
			EmbedTimeoutSeconds:    60,
		},
		RAG: RAGConfig{
			ChunkSize:          512,
			ChunkOverlap:       64,
			TopK:               4,
			Streaming:          true,
			MaxContextChars:    6000,
			EmbeddingBatchSize: 10,
			MaxHistoryMessages: 20,
		},
		SQLite: SQLiteConfig{
			Path: "temp_user_data/askthedocs.db",
		},
		Redis: RedisConfig{
			Addr:              "",
			Password:          "",
			DB:                0,
			HistoryTTLSeconds: 60,
			DirtyTTLSeconds:   5,
		},
		RabbitMQ: RabbitMQConfig{
			URL:          "",
			HistoryQueue: "chat.history.persist",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.Session.DataDir = getEnv("SESSION_DATA_DIR", cfg.Session.DataDir)
	cfg.Session.TTLHours = getEnvAsInt("SESSION_TTL_HOURS", cfg.Session.TTLHours)
	cfg.Session.SweepIntervalMinutes = getEnvAsInt("SESSION_SWEEP_INTERVAL_MINUTES", cfg.Session.SweepIntervalMinutes)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.EmbeddingModel = getEnv("LLM_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.RequestTimeoutSeconds = getEnvAsInt("LLM_REQUEST_TIMEOUT_SECONDS", cfg.LLM.RequestTimeoutSeconds)
	cfg.LLM.ValidateTimeoutSeconds = getEnvAsInt("LLM_VALIDATE_TIMEOUT_SECONDS", cfg.LLM.ValidateTimeoutSeconds)
	cfg.LLM.EmbedTimeoutSeconds = getEnvAsInt("LLM_EMBED_TIMEOUT_SECONDS", cfg.LLM.EmbedTimeoutSeconds)

	cfg.RAG.ChunkSize = getEnvAsInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.TopK = getEnvAsInt("RAG_TOP_K", cfg.RAG.TopK)
	cfg.RAG.MaxContextChars = getEnvAsInt("RAG_MAX_CONTEXT_CHARS", cfg.RAG.MaxContextChars)
	cfg.RAG.EmbeddingBatchSize = getEnvAsInt("RAG_EMBEDDING_BATCH_SIZE", cfg.RAG.EmbeddingBatchSize)
	cfg.RAG.MaxHistoryMessages = getEnvAsInt("RAG_MAX_HISTORY_MESSAGES", cfg.RAG.MaxHistoryMessages)

	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.DirtyTTLSeconds = getEnvAsInt("REDIS_DIRTY_TTL_SECONDS", cfg.Redis.DirtyTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.HistoryQueue = getEnv("RABBITMQ_HISTORY_QUEUE", cfg.RabbitMQ.HistoryQueue)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
